package hrapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cuongbtq/metrohr-console/internal/analysis/domain"
)

// SubstituteRequest is the body of POST /analysis/substitute
type SubstituteRequest struct {
	TargetEmployeeID *string  `json:"targetEmployeeId"`
	TopK             int      `json:"topK"`
	Scope            Scope    `json:"scope"`
	RequiredSkills   []string `json:"requiredSkills,omitempty"`
}

// Scope narrows the candidate pool
type Scope struct {
	Department string `json:"department,omitempty"`
}

// CreateSubstituteJob submits a substitute analysis and returns the job id.
func (c *Client) CreateSubstituteJob(ctx context.Context, req SubstituteRequest) (string, error) {
	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := c.do(ctx, http.MethodPost, "/analysis/substitute", nil, req, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("create substitute job: response carried no jobId")
	}
	return resp.JobID, nil
}

// GetSubstituteJob fetches the current state of a substitute job.
func (c *Client) GetSubstituteJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var resp struct {
		Job *domain.Job `json:"job"`
	}
	if err := c.do(ctx, http.MethodGet, "/analysis/substitute/"+url.PathEscape(jobID), nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Job == nil {
		return nil, fmt.Errorf("get substitute job %s: %w", jobID, ErrNotFound)
	}
	if resp.Job.ID == "" {
		resp.Job.ID = jobID
	}
	return resp.Job, nil
}

// GetAnalysisJob fetches the generic job record behind a progress event.
func (c *Client) GetAnalysisJob(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	var resp struct {
		Job *domain.JobRecord `json:"job"`
	}
	if err := c.do(ctx, http.MethodGet, "/analysis/jobs/"+url.PathEscape(jobID), nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Job == nil {
		return nil, fmt.Errorf("get analysis job %s: %w", jobID, ErrNotFound)
	}
	return resp.Job, nil
}

// GetInsights fetches the sentiment overview. noCache bypasses the server cache.
func (c *Client) GetInsights(ctx context.Context, noCache bool) (*domain.Insights, error) {
	var query url.Values
	if noCache {
		query = url.Values{"nocache": []string{"1"}}
	}

	var resp struct {
		Insights domain.Insights `json:"insights"`
	}
	if err := c.do(ctx, http.MethodGet, "/insights", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Insights, nil
}

// TrainingRequest is the body of POST /trainings
type TrainingRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Employees   []string `json:"employees"`
	Status      string   `json:"status,omitempty"`
}

// CreateTraining creates a training record and returns its id.
func (c *Client) CreateTraining(ctx context.Context, req TrainingRequest) (string, error) {
	var resp struct {
		Training struct {
			ID string `json:"_id"`
		} `json:"training"`
	}
	if err := c.do(ctx, http.MethodPost, "/trainings", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.Training.ID, nil
}
