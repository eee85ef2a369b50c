// Package training builds and submits follow-up training records for
// shortlisted substitute candidates.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/metrohr-console/internal/analysis/domain"
	"github.com/cuongbtq/metrohr-console/internal/export"
	"github.com/cuongbtq/metrohr-console/internal/hrapi"
)

// ErrEmptyTitle is returned when a draft is confirmed without a title
var ErrEmptyTitle = errors.New("training title is required")

// Creator is the backend call used to create a training
type Creator interface {
	CreateTraining(ctx context.Context, req hrapi.TrainingRequest) (string, error)
}

// Draft is the pre-populated form shown to the operator
type Draft struct {
	JobID       string   `json:"jobId"`
	EmployeeID  string   `json:"employeeId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Employees   []string `json:"employees"`
}

// Overrides replaces draft fields the operator edited. Blank values keep the draft text.
type Overrides struct {
	Title       string `json:"title" form:"title"`
	Description string `json:"description" form:"description"`
}

// NewDraft generates a title and description referencing the candidate.
func NewDraft(c domain.Candidate, jobID string) Draft {
	who := c.Name
	if who == "" {
		who = c.EmployeeID
	}

	var desc strings.Builder
	fmt.Fprintf(&desc, "Follow-up training for %s (%s), shortlisted as a substitute", who, c.EmployeeID)
	if jobID != "" {
		fmt.Fprintf(&desc, " in analysis job %s", jobID)
	}
	fmt.Fprintf(&desc, " with a match score of %s.", export.FormatScore(c.Score))
	if len(c.Skills) > 0 {
		fmt.Fprintf(&desc, " Focus skills: %s.", strings.Join(c.Skills, ", "))
	}
	if dept := c.Department.String(); dept != "" {
		fmt.Fprintf(&desc, " Department: %s.", dept)
	}

	return Draft{
		JobID:       jobID,
		EmployeeID:  c.EmployeeID,
		Title:       "Substitute readiness: " + who,
		Description: desc.String(),
		Employees:   []string{c.EmployeeID},
	}
}

// Apply returns the draft with the operator's edits.
func (d Draft) Apply(o Overrides) Draft {
	if t := strings.TrimSpace(o.Title); t != "" {
		d.Title = t
	}
	if desc := strings.TrimSpace(o.Description); desc != "" {
		d.Description = desc
	}
	return d
}

// Service confirms drafts against the backend
type Service struct {
	creator Creator
	logger  *slog.Logger
}

// NewService creates a new training service
func NewService(creator Creator, logger *slog.Logger) *Service {
	return &Service{creator: creator, logger: logger}
}

// Create issues one create-training call for the draft and returns the new id.
func (s *Service) Create(ctx context.Context, d Draft) (string, error) {
	if strings.TrimSpace(d.Title) == "" {
		return "", ErrEmptyTitle
	}

	id, err := s.creator.CreateTraining(ctx, hrapi.TrainingRequest{
		Title:       d.Title,
		Description: d.Description,
		Employees:   d.Employees,
	})
	if err != nil {
		s.logger.Error("Failed to create training",
			slog.String("employee_id", d.EmployeeID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to create training: %w", err)
	}

	s.logger.Info("Training created",
		slog.String("training_id", id),
		slog.String("employee_id", d.EmployeeID),
		slog.String("job_id", d.JobID),
	)
	return id, nil
}
