package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/metrohr-console/internal/api/model"
	"github.com/cuongbtq/metrohr-console/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

type Storage struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db:  pg.GetDB(),
		now: time.Now,
	}
}

// SaveHandle records a submission; it becomes the session's held handle.
func (s *Storage) SaveHandle(ctx context.Context, sessionKey, jobID string) error {
	query := `
		INSERT INTO console_submissions (job_id, session_key, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE
		SET session_key = EXCLUDED.session_key, created_at = EXCLUDED.created_at
	`

	_, err := s.db.ExecContext(ctx, query, jobID, sessionKey, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save job handle: %w", err)
	}

	return nil
}

// LoadHandle returns the latest job id for the session, or "" if none.
func (s *Storage) LoadHandle(ctx context.Context, sessionKey string) (string, error) {
	var jobID string
	query := `
		SELECT job_id
		FROM console_submissions
		WHERE session_key = $1
		ORDER BY created_at DESC, job_id DESC
		LIMIT 1
	`

	err := s.db.GetContext(ctx, &jobID, query, sessionKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load job handle: %w", err)
	}

	return jobID, nil
}

type SubmissionFilter struct {
	SessionKey string
	PageSize   int
	Cursor     *SubmissionCursor
}

type SubmissionCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListSubmissions pages newest first and fetches one extra row so callers
// can tell whether more remain.
func (s *Storage) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := `
		SELECT job_id, session_key, created_at
		FROM console_submissions
		WHERE session_key = $1
	`
	args := []interface{}{filter.SessionKey}
	argIdx := 2

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var submissions []model.Submission
	err := s.db.SelectContext(ctx, &submissions, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	return submissions, nil
}
