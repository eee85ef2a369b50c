package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/metrohr-console/internal/analysis"
	"github.com/cuongbtq/metrohr-console/internal/analysis/domain"
	"github.com/cuongbtq/metrohr-console/internal/api/dto"
	"github.com/cuongbtq/metrohr-console/internal/api/storage"
	"github.com/cuongbtq/metrohr-console/internal/export"
	"github.com/cuongbtq/metrohr-console/internal/training"
	"github.com/gin-gonic/gin"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// SubstituteHandler serves the current substitute job and its exports
type SubstituteHandler struct {
	logger     *slog.Logger
	workflow   *analysis.Workflow
	training   *training.Service
	history    HistoryStore
	sessionKey string
}

// NewSubstituteHandler creates a new SubstituteHandler instance
func NewSubstituteHandler(deps *Dependencies) *SubstituteHandler {
	return &SubstituteHandler{
		logger:     deps.Logger,
		workflow:   deps.Workflow,
		training:   deps.Training,
		history:    deps.History,
		sessionKey: deps.SessionKey,
	}
}

// Submit handles POST /api/v1/substitute
func (h *SubstituteHandler) Submit(c *gin.Context) {
	var form analysis.SubmitForm
	if err := c.ShouldBind(&form); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	jobID, err := h.workflow.Submit(c.Request.Context(), form)
	if errors.Is(err, domain.ErrSubmissionInFlight) {
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.SubmitResponse{
		JobID: jobID,
		View:  h.workflow.State().View(),
	})
}

// Current handles GET /api/v1/substitute/current
func (h *SubstituteHandler) Current(c *gin.Context) {
	c.JSON(http.StatusOK, h.workflow.State().View())
}

// Refresh handles POST /api/v1/substitute/current/refresh
func (h *SubstituteHandler) Refresh(c *gin.Context) {
	state, err := h.workflow.Refresh(c.Request.Context())
	if err != nil {
		h.resultError(c, err)
		return
	}
	c.JSON(http.StatusOK, state.View())
}

// ExportCSV handles GET /api/v1/substitute/current/export.csv
func (h *SubstituteHandler) ExportCSV(c *gin.Context) {
	job, err := h.workflow.Result()
	if err != nil {
		h.resultError(c, err)
		return
	}

	h.logger.Info("Exporting candidates",
		slog.String("job_id", job.ID),
		slog.Int("count", len(job.Result.Candidates)),
	)
	attachment(c, export.CandidatesFilename(job.ID), contentTypeCSV, export.CandidatesCSV(job.Result.Candidates))
}

// ExportXLSX handles GET /api/v1/substitute/current/export.xlsx
func (h *SubstituteHandler) ExportXLSX(c *gin.Context) {
	job, err := h.workflow.Result()
	if err != nil {
		h.resultError(c, err)
		return
	}

	data, err := export.CandidatesXLSX(job.Result.Candidates)
	if err != nil {
		h.logger.Error("Failed to build workbook", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to build workbook",
		})
		return
	}
	attachment(c, export.WorkbookFilename(job.ID), contentTypeXLSX, data)
}

// ExportCandidateCSV handles GET /api/v1/substitute/current/candidates/:employee_id/export.csv
func (h *SubstituteHandler) ExportCandidateCSV(c *gin.Context) {
	_, candidate, ok := h.candidate(c)
	if !ok {
		return
	}
	attachment(c, export.CandidateFilename(candidate.EmployeeID), contentTypeCSV, export.CandidateCSV(candidate))
}

// TrainingDraft handles GET /api/v1/substitute/current/candidates/:employee_id/training
func (h *SubstituteHandler) TrainingDraft(c *gin.Context) {
	job, candidate, ok := h.candidate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, training.NewDraft(candidate, job.ID))
}

// CreateTraining handles POST /api/v1/substitute/current/candidates/:employee_id/training
func (h *SubstituteHandler) CreateTraining(c *gin.Context) {
	job, candidate, ok := h.candidate(c)
	if !ok {
		return
	}

	var overrides training.Overrides
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBind(&overrides); err != nil {
			h.logger.Error("Invalid request body", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	draft := training.NewDraft(candidate, job.ID).Apply(overrides)
	id, err := h.training.Create(c.Request.Context(), draft)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateTrainingResponse{
		TrainingID: id,
		Draft:      draft,
	})
}

// History handles GET /api/v1/substitute/history
func (h *SubstituteHandler) History(c *gin.Context) {
	var req dto.ListSubmissionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeSubmissionCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	rows, err := h.history.ListSubmissions(c.Request.Context(), storage.SubmissionFilter{
		SessionKey: h.sessionKey,
		PageSize:   req.PageSize,
		Cursor:     cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list submissions", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list submissions",
		})
		return
	}

	hasMore := len(rows) > req.PageSize
	if hasMore {
		rows = rows[:req.PageSize]
	}

	current := h.workflow.State().JobID
	resp := dto.ListSubmissionsResponse{Submissions: make([]dto.SubmissionDTO, len(rows))}
	for i, row := range rows {
		resp.Submissions[i] = dto.SubmissionDTO{
			JobID:     row.JobID,
			CreatedAt: row.CreatedAt.Format(time.RFC3339),
			Current:   row.JobID == current,
		}
	}
	if hasMore {
		last := rows[len(rows)-1]
		resp.NextCursor = EncodeSubmissionCursor(&storage.SubmissionCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubstituteHandler) candidate(c *gin.Context) (*domain.Job, domain.Candidate, bool) {
	job, err := h.workflow.Result()
	if err != nil {
		h.resultError(c, err)
		return nil, domain.Candidate{}, false
	}

	employeeID := c.Param("employee_id")
	candidate, err := job.Result.FindCandidate(employeeID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":       err.Error(),
			"employee_id": employeeID,
		})
		return nil, domain.Candidate{}, false
	}
	return job, candidate, true
}

func (h *SubstituteHandler) resultError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNoJob):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrResultNotReady):
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
			"view":  h.workflow.State().View(),
		})
	default:
		respondError(c, err)
	}
}

func attachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, contentType, data)
}
