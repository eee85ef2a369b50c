package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/metrohr-console/internal/overview"
	"github.com/gin-gonic/gin"
)

// OverviewHandler serves the progress overview widget
type OverviewHandler struct {
	logger   *slog.Logger
	overview *overview.Overview
}

// NewOverviewHandler creates a new OverviewHandler instance
func NewOverviewHandler(deps *Dependencies) *OverviewHandler {
	return &OverviewHandler{
		logger:   deps.Logger,
		overview: deps.Overview,
	}
}

// Get handles GET /api/v1/overview
func (h *OverviewHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.overview.Snapshot())
}

// Refresh handles POST /api/v1/overview/refresh
func (h *OverviewHandler) Refresh(c *gin.Context) {
	c.JSON(http.StatusOK, h.overview.Refresh(c.Request.Context()))
}

// DismissToast handles DELETE /api/v1/overview/toasts/:toast_id
func (h *OverviewHandler) DismissToast(c *gin.Context) {
	toastID := c.Param("toast_id")
	if !h.overview.Dismiss(toastID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":    "toast not found",
			"toast_id": toastID,
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// JobDetail handles GET /api/v1/analysis/jobs/:job_id
// Lookup failures are rendered inline, so this always answers 200.
func (h *OverviewHandler) JobDetail(c *gin.Context) {
	jobID := c.Param("job_id")

	h.logger.Info("JobDetail called",
		slog.String("path", c.Request.URL.Path),
		slog.String("job_id", jobID),
	)

	c.JSON(http.StatusOK, h.overview.JobDetail(c.Request.Context(), jobID))
}
