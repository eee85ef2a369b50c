package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/metrohr-console/internal/analysis"
	"github.com/cuongbtq/metrohr-console/internal/api/model"
	"github.com/cuongbtq/metrohr-console/internal/api/storage"
	"github.com/cuongbtq/metrohr-console/internal/hrapi"
	"github.com/cuongbtq/metrohr-console/internal/overview"
	"github.com/cuongbtq/metrohr-console/internal/realtime"
	"github.com/cuongbtq/metrohr-console/internal/training"
	"github.com/gin-gonic/gin"
)

// HistoryStore lists past submissions for a session
type HistoryStore interface {
	ListSubmissions(ctx context.Context, filter storage.SubmissionFilter) ([]model.Submission, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Workflow   *analysis.Workflow
	Overview   *overview.Overview
	Training   *training.Service
	History    HistoryStore
	Hub        *realtime.Hub
	SessionKey string

	// Browser origins allowed by CORS; empty allows any
	AllowedOrigins []string

	// Optional liveness probes reported by /health
	Database HealthChecker
	Broker   interface{ IsConnected() bool }
}

// respondError maps backend and workflow errors to status codes. A backend
// 401 tells the browser to re-authenticate.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, hrapi.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": hrapi.UserMessage(err),
			"code":  "session_expired",
		})
	default:
		var apiErr *hrapi.APIError
		status := http.StatusBadGateway
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			status = apiErr.StatusCode
		}
		c.JSON(status, gin.H{
			"error": hrapi.UserMessage(err),
		})
	}
}
