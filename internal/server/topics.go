package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

var ErrInvalidPayloadJSON = errors.New("payload must be a JSON object")

func (s *Server) listTopics(c *gin.Context) {
	ctx := c.Request.Context()
	names := s.topics.Names(ctx)
	st := s.topics.Stats(ctx)
	c.JSON(http.StatusOK, api.TopicsResponse{
		Source: st.Source,
		Topics: names,
		Count:  len(names),
		Loaded: st.Loaded,
	})
}

func (s *Server) getTopic(c *gin.Context) {
	name := api.TopicName(c.Param("topic"))
	def, ok := s.topics.TopicDef(c.Request.Context(), name)
	if !ok {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %s", api.ErrUnknownTopic, name),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, api.TopicResponse{
		Name:        name,
		Definition:  def,
		Subscribers: s.router.SubscriberCount(name),
	})
}

func (s *Server) publish(c *gin.Context) {
	name := api.TopicName(c.Param("topic"))

	var payload api.Payload
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidPayloadJSON, err),
			Status: http.StatusBadRequest,
		})
		return
	}

	err := s.router.Publish(c.Request.Context(), name, payload)
	if err == nil {
		c.JSON(http.StatusAccepted, api.PublishResponse{
			Topic:   name,
			Message: "published",
		})
		return
	}

	var perr *api.PayloadError
	switch {
	case errors.Is(err, api.ErrUnknownTopic):
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusNotFound,
		})
	case errors.As(err, &perr):
		c.JSON(http.StatusUnprocessableEntity, api.ErrorResponse{
			Error:      api.ErrInvalidPayload.Error(),
			Violations: perr.Violations,
			Status:     http.StatusUnprocessableEntity,
		})
	default:
		slog.Error("Publish failed",
			log.Topic(name),
			log.Error(err))
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusInternalServerError,
		})
	}
}

func (s *Server) cancelPending(c *gin.Context) {
	name := api.TopicName(c.Param("topic"))
	if _, ok := s.topics.TopicDef(c.Request.Context(), name); !ok {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %s", api.ErrUnknownTopic, name),
			Status: http.StatusNotFound,
		})
		return
	}
	s.router.CancelPending(c.Request.Context(), name)
	c.JSON(http.StatusOK, api.MessageResponse{
		Message: "pending deliveries cancelled",
	})
}
