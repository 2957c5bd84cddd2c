package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"clipforge/internal/events"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/workflow"
)

type enqueueRequest struct {
	ID      string        `json:"id"`
	Kind    string        `json:"kind" binding:"required"`
	Payload queue.Payload `json:"payload"`
}

func (s *Server) handleEnqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	task, err := s.deps.Queue.Add(ctx, queue.Submission{ID: req.ID, Kind: req.Kind, Payload: req.Payload})
	if err != nil {
		var verr *queue.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
		case errors.Is(err, queue.ErrDuplicateTask):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			logging.WithContext(ctx, s.logger).Error("enqueue failed", logging.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": services.FailureMessage(err)})
		}
		return
	}
	_ = s.deps.Events.Publish(ctx, events.Event{Type: events.TaskEnqueued, TaskID: task.ID, Kind: string(task.Kind)})
	c.JSON(http.StatusAccepted, task)
}

func (s *Server) handleStatus(c *gin.Context) {
	resp, err := s.deps.Queue.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": services.FailureMessage(err)})
		return
	}
	c.JSON(http.StatusOK, resp)
}

type statsResponse struct {
	queue.Stats
	Workers []workflow.WorkerStats `json:"workers"`
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.deps.Queue.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": services.FailureMessage(err)})
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.QueueLength.Set(float64(stats.QueueLength))
	}
	resp := statsResponse{Stats: stats, Workers: make([]workflow.WorkerStats, 0, len(s.deps.Workers))}
	for _, w := range s.deps.Workers {
		resp.Workers = append(resp.Workers, w.Stats())
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if s.deps.Queue.Degraded() {
		status = "degraded"
	}
	body := gin.H{
		"status":         status,
		"queue_backend":  s.deps.Queue.BackendName(),
		"queue_degraded": s.deps.Queue.Degraded(),
	}
	if s.deps.Health != nil {
		stages := s.deps.Health.Health(c.Request.Context())
		for _, h := range stages {
			if !h.Ready {
				status = "degraded"
			}
		}
		body["status"] = status
		body["stages"] = stages
	}
	if s.deps.Hub != nil {
		body["event_clients"] = s.deps.Hub.Clients()
	}
	c.JSON(http.StatusOK, body)
}
