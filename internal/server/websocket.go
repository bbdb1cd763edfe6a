package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

// Client streams the payloads delivered on one topic to a WebSocket
// connection
type Client struct {
	conn      *websocket.Conn
	topic     api.TopicName
	outgoing  chan api.Payload
	done      chan struct{}
	closeOnce sync.Once
}

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 512
	wsBufferSize       = 1024
	outgoingBufferSize = 64
)

var ErrClientBehind = errors.New("websocket client is not keeping up")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleWebSocket(c *gin.Context) {
	name := api.TopicName(c.Param("topic"))
	if _, ok := s.topics.TopicDef(c.Request.Context(), name); !ok {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  api.ErrUnknownTopic.Error() + ": " + string(name),
			Status: http.StatusNotFound,
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed",
			log.Topic(name),
			log.Error(err))
		return
	}

	client := &Client{
		conn:     conn,
		topic:    name,
		outgoing: make(chan api.Payload, outgoingBufferSize),
		done:     make(chan struct{}),
	}
	s.registerWebSocket(client)

	if !client.send(api.TopicEvent{
		Type:      api.TopicEventSubscribed,
		Topic:     name,
		Timestamp: time.Now().UnixMilli(),
	}) {
		s.unregisterWebSocket(client)
		client.Close()
		_ = conn.Close()
		return
	}
	unsubscribe := s.router.Subscribe(name, client.deliver)

	go func() {
		defer func() {
			unsubscribe()
			s.unregisterWebSocket(client)
			client.Close()
			_ = conn.Close()
		}()
		client.run()
	}()
}

// Close stops the client's stream. The connection is closed by the
// client's own goroutine once it notices
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) deliver(_ context.Context, p api.Payload) error {
	select {
	case c.outgoing <- p.Clone():
		return nil
	case <-c.done:
		return nil
	default:
		return ErrClientBehind
	}
}

func (c *Client) run() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	closed := make(chan struct{})
	go c.readMessages(closed)

	for {
		select {
		case <-closed:
			return
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case p := <-c.outgoing:
			if !c.send(api.TopicEvent{
				Type:      api.TopicEventPayload,
				Topic:     c.topic,
				Payload:   p,
				Timestamp: time.Now().UnixMilli(),
			}) {
				return
			}
		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

// readMessages discards client input; it exists to process control frames
// and notice when the peer goes away
func (c *Client) readMessages(closed chan struct{}) {
	defer close(closed)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) send(ev api.TopicEvent) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		slog.Error("WebSocket write failed",
			log.Topic(c.topic),
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.PingMessage, nil)
	return err == nil
}
