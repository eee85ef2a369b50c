package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/metrohr-console/internal/api/model"
)

// MemoryStorage keeps submissions in process; used when no database is configured.
type MemoryStorage struct {
	mu          sync.Mutex
	submissions []model.Submission
	now         func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{now: time.Now}
}

func (m *MemoryStorage) SaveHandle(ctx context.Context, sessionKey, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.submissions {
		if s.JobID == jobID {
			m.submissions = append(m.submissions[:i], m.submissions[i+1:]...)
			break
		}
	}
	m.submissions = append(m.submissions, model.Submission{
		JobID:      jobID,
		SessionKey: sessionKey,
		CreatedAt:  m.now().UTC(),
	})
	return nil
}

func (m *MemoryStorage) LoadHandle(ctx context.Context, sessionKey string) (string, error) {
	rows := m.sorted(sessionKey)
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].JobID, nil
}

func (m *MemoryStorage) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	var out []model.Submission
	for _, s := range m.sorted(filter.SessionKey) {
		if filter.Cursor != nil && !before(s, filter.Cursor) {
			continue
		}
		out = append(out, s)
		if len(out) == filter.PageSize+1 {
			break
		}
	}
	return out, nil
}

// newest first, same order as the SQL query
func (m *MemoryStorage) sorted(sessionKey string) []model.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []model.Submission
	for _, s := range m.submissions {
		if s.SessionKey == sessionKey {
			rows = append(rows, s)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].JobID > rows[j].JobID
	})
	return rows
}

func before(s model.Submission, c *SubmissionCursor) bool {
	if s.CreatedAt.Equal(c.CreatedAt) {
		return s.JobID < c.JobID
	}
	return s.CreatedAt.Before(c.CreatedAt)
}
