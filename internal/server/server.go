package server

import (
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/kode4food/cadence/internal/mounts"
	"github.com/kode4food/cadence/internal/router"
	"github.com/kode4food/cadence/internal/topics"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/util"
)

type (
	// Server implements the HTTP API in front of the router
	Server struct {
		router  *router.Router
		topics  *topics.Registry
		mounts  *mounts.Registry
		ready   Readiness
		service string
		sockets util.Set[*Client]
		mu      sync.Mutex
	}

	// Dependencies are the collaborators a Server exposes over HTTP
	Dependencies struct {
		Router  *router.Router
		Topics  *topics.Registry
		Mounts  *mounts.Registry
		Ready   Readiness
		Service string
	}

	// Readiness reports registration progress
	Readiness interface {
		IsReady() bool
		Info() (api.ReadyInfo, bool)
	}
)

const defaultService = "cadence"

// NewServer creates a new HTTP API server
func NewServer(deps Dependencies) *Server {
	service := deps.Service
	if service == "" {
		service = defaultService
	}
	reg := deps.Mounts
	if reg == nil {
		reg = mounts.NewRegistry()
	}
	return &Server{
		router:  deps.Router,
		topics:  deps.Topics,
		mounts:  reg,
		ready:   deps.Ready,
		service: service,
		sockets: util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/stats", s.handleStats)

	r.GET("/topics", s.listTopics)
	r.GET("/topics/:topic", s.getTopic)
	r.DELETE("/topics/:topic/pending", s.cancelPending)
	r.POST("/publish/:topic", s.publish)

	r.GET("/sequences", s.listSequences)

	r.GET("/ws/:topic", s.handleWebSocket)
	return r
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

// CloseWebSockets closes all active WebSocket connections.
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
