package dto

import (
	"github.com/cuongbtq/metrohr-console/internal/analysis"
	"github.com/cuongbtq/metrohr-console/internal/training"
)

type SubmitResponse struct {
	JobID string              `json:"jobId"`
	View  analysis.ResultView `json:"view"`
}

type CreateTrainingResponse struct {
	TrainingID string         `json:"trainingId"`
	Draft      training.Draft `json:"draft"`
}

type ListSubmissionsRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListSubmissionsResponse struct {
	Submissions []SubmissionDTO `json:"submissions"`
	NextCursor  string          `json:"next_cursor,omitempty"`
}

type SubmissionDTO struct {
	JobID     string `json:"job_id"`
	CreatedAt string `json:"created_at"`
	Current   bool   `json:"current"`
}
