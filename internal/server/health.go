package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/cadence/internal/router"
	"github.com/kode4food/cadence/internal/topics"
	"github.com/kode4food/cadence/pkg/api"
)

// StatsResponse reports router counters and the topic source
type StatsResponse struct {
	Router router.Stats `json:"router"`
	Topics topics.Stats `json:"topics"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Service: s.service,
		Status:  "ok",
		Time:    time.Now(),
		Ready:   s.isReady(),
	})
}

func (s *Server) handleReady(c *gin.Context) {
	if s.ready != nil {
		if info, ok := s.ready.Info(); ok {
			c.JSON(http.StatusOK, info)
			return
		}
	}
	c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{
		Error:  "registration in progress",
		Status: http.StatusServiceUnavailable,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, StatsResponse{
		Router: s.router.Stats(),
		Topics: s.topics.Stats(c.Request.Context()),
	})
}

func (s *Server) listSequences(c *gin.Context) {
	seqs := s.mounts.Sequences()
	c.JSON(http.StatusOK, api.SequencesResponse{
		Sequences:  seqs,
		Discovered: s.mounts.Discovered(),
		Count:      len(seqs),
	})
}

func (s *Server) isReady() bool {
	return s.ready != nil && s.ready.IsReady()
}
