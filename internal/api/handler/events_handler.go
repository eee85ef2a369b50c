package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/metrohr-console/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventsHandler re-broadcasts realtime events to browsers over SSE
type EventsHandler struct {
	logger *slog.Logger
	hub    *realtime.Hub
}

// NewEventsHandler creates a new EventsHandler instance
func NewEventsHandler(deps *Dependencies) *EventsHandler {
	return &EventsHandler{
		logger: deps.Logger,
		hub:    deps.Hub,
	}
}

// Stream handles GET /api/v1/events
func (h *EventsHandler) Stream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	sub := h.hub.Subscribe(nil)
	defer sub.Close()

	streamID := uuid.NewString()
	h.logger.Debug("Event stream opened", slog.String("stream_id", streamID))
	defer h.logger.Debug("Event stream closed", slog.String("stream_id", streamID))

	c.Status(http.StatusOK)
	c.SSEvent("ping", streamID)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			c.SSEvent(evt.Name, string(evt.Data))
			c.Writer.Flush()
		}
	}
}
