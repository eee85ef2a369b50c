package realtime

import (
	"errors"
	"testing"

	"github.com/cuongbtq/metrohr-console/internal/analysis/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		data    string
		wantErr bool
	}{
		{name: "object payload", event: EventAnalysisProgress, data: `{"event":"analysis:batch"}`},
		{name: "padded payload", event: EventNotification, data: "  {\"title\":\"x\"}\n"},
		{name: "missing name", event: " ", data: `{}`, wantErr: true},
		{name: "array payload", event: EventAnalysisProgress, data: `[1,2]`, wantErr: true},
		{name: "broken json", event: EventAnalysisProgress, data: `{"event":`, wantErr: true},
		{name: "empty payload", event: EventAnalysisProgress, data: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := NewEvent(tt.event, []byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedEvent))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.event, evt.Name)
			assert.False(t, evt.ReceivedAt.IsZero())
		})
	}
}

func TestExtractJobID(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "jobId", data: `{"jobId":"J1"}`, want: "J1"},
		{name: "job_id", data: `{"job_id":"J2"}`, want: "J2"},
		{name: "id", data: `{"id":"J3"}`, want: "J3"},
		{name: "nested id", data: `{"job":{"id":"J4"}}`, want: "J4"},
		{name: "nested _id", data: `{"job":{"_id":"J5"}}`, want: "J5"},
		{name: "bare job string", data: `{"job":"J6"}`, want: "J6"},
		{name: "numeric id", data: `{"jobId":42}`, want: "42"},
		{name: "jobId wins over nested", data: `{"jobId":"A","job":{"id":"B"}}`, want: "A"},
		{name: "no id", data: `{"event":"analysis:batch"}`, want: ""},
		{name: "not json", data: `nope`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJobID([]byte(tt.data)))
		})
	}
}

func TestDecodeProgress(t *testing.T) {
	pending := 4

	tests := []struct {
		name        string
		data        string
		wantKind    ProgressKind
		wantSummary *domain.ProgressSummary
		wantJobID   string
		wantOutcome *JobOutcome
	}{
		{
			name:        "batch summary",
			data:        `{"event":"analysis:batch","summary":{"processed":10,"ok":8,"failed":2,"pending":5}}`,
			wantKind:    ProgressBatch,
			wantSummary: &domain.ProgressSummary{Processed: 10, OK: 8, Failed: 2, Pending: 5},
		},
		{
			name:        "job outcome with pending",
			data:        `{"event":"analysis:job","job":{"id":"A1"},"result":{"ok":true,"took":120,"pending":4}}`,
			wantKind:    ProgressJob,
			wantJobID:   "A1",
			wantOutcome: &JobOutcome{OK: true, Took: 120, Pending: &pending},
		},
		{
			name:        "job failure",
			data:        `{"event":"analysis:job","job":{"_id":"A2"},"result":{"ok":false,"took":8,"error":"timeout"}}`,
			wantKind:    ProgressJob,
			wantJobID:   "A2",
			wantOutcome: &JobOutcome{OK: false, Took: 8, Error: "timeout"},
		},
		{
			name:        "job event without result",
			data:        `{"event":"analysis:job","job":{"id":"A3"}}`,
			wantKind:    ProgressJob,
			wantJobID:   "A3",
			wantOutcome: &JobOutcome{},
		},
		{
			name:        "batch missing summary falls back",
			data:        `{"event":"analysis:batch"}`,
			wantKind:    ProgressOther,
			wantSummary: nil,
		},
		{
			name:        "job event missing id falls back",
			data:        `{"event":"analysis:job","summary":{"processed":1}}`,
			wantKind:    ProgressOther,
			wantSummary: &domain.ProgressSummary{Processed: 1},
		},
		{
			name:        "unknown shape with summary",
			data:        `{"summary":{"processed":3,"ok":3}}`,
			wantKind:    ProgressOther,
			wantSummary: &domain.ProgressSummary{Processed: 3, OK: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodeProgress([]byte(tt.data))
			require.NoError(t, err)

			assert.Equal(t, tt.wantKind, p.Kind)
			assert.Equal(t, tt.wantSummary, p.Summary)
			assert.Equal(t, tt.wantJobID, p.JobID)
			assert.Equal(t, tt.wantOutcome, p.Outcome)
		})
	}
}

func TestDecodeProgress_Malformed(t *testing.T) {
	_, err := DecodeProgress([]byte(`[`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedEvent))
}

func TestEvent_IsAnalysis(t *testing.T) {
	assert.True(t, Event{Name: EventAnalysisProgress}.IsAnalysis())
	assert.True(t, Event{Name: "analysis:substitute"}.IsAnalysis())
	assert.False(t, Event{Name: EventNotification}.IsAnalysis())
}
