// Package realtime carries server push events from the broker to in-process
// subscribers.
package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/metrohr-console/internal/analysis/domain"
)

// Channel event names
const (
	EventAnalysisProgress = "analysis:progress"
	EventNotification     = "notification"
)

// Discriminators carried inside an analysis:progress payload
const (
	ProgressEventBatch = "analysis:batch"
	ProgressEventJob   = "analysis:job"
)

// ErrMalformedEvent is returned for payloads that are not JSON objects
var ErrMalformedEvent = errors.New("malformed realtime event")

// Event is one push message as received from the channel
type Event struct {
	Name       string          `json:"name"`
	Data       json.RawMessage `json:"data"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// NewEvent validates the payload at the boundary; only JSON objects pass.
func NewEvent(name string, data []byte) (Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Event{}, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return Event{}, fmt.Errorf("%w: %s payload is not a JSON object", ErrMalformedEvent, name)
	}

	return Event{
		Name:       name,
		Data:       json.RawMessage(trimmed),
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// IsAnalysis reports whether the event belongs to the analysis namespace.
func (e Event) IsAnalysis() bool {
	return strings.HasPrefix(e.Name, "analysis:")
}

// JobID returns the job identifier embedded in the payload, if any.
func (e Event) JobID() string {
	return ExtractJobID(e.Data)
}

// ExtractJobID reads a job identifier from the shapes the backend has been
// seen to send: jobId, job_id, id, job.id, job._id or a bare job string.
func ExtractJobID(data []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return ""
	}

	for _, key := range []string{"jobId", "job_id", "id"} {
		if id := stringField(fields[key]); id != "" {
			return id
		}
	}

	raw, ok := fields["job"]
	if !ok {
		return ""
	}
	if id := stringField(raw); id != "" {
		return id
	}

	var job map[string]json.RawMessage
	if err := json.Unmarshal(raw, &job); err != nil {
		return ""
	}
	for _, key := range []string{"id", "_id", "jobId"} {
		if id := stringField(job[key]); id != "" {
			return id
		}
	}
	return ""
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// ProgressKind discriminates analysis:progress payloads
type ProgressKind int

const (
	// ProgressOther is any shape not recognised below
	ProgressOther ProgressKind = iota
	// ProgressBatch replaces the whole progress snapshot
	ProgressBatch
	// ProgressJob reports the outcome of a single job
	ProgressJob
)

func (k ProgressKind) String() string {
	switch k {
	case ProgressBatch:
		return "batch"
	case ProgressJob:
		return "job"
	default:
		return "other"
	}
}

// Progress is the decoded analysis:progress payload
type Progress struct {
	Kind    ProgressKind
	Summary *domain.ProgressSummary
	JobID   string
	Outcome *JobOutcome
}

// JobOutcome is the per-job result block of an analysis:job event
type JobOutcome struct {
	OK      bool    `json:"ok"`
	Took    float64 `json:"took"`
	Error   string  `json:"error,omitempty"`
	Pending *int    `json:"pending,omitempty"`
}

// DecodeProgress turns a raw payload into its tagged form. A batch without a
// summary, or a job event without a job id, is demoted to ProgressOther.
func DecodeProgress(data []byte) (Progress, error) {
	var raw struct {
		Event   string                  `json:"event"`
		Summary *domain.ProgressSummary `json:"summary"`
		Result  *JobOutcome             `json:"result"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Progress{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch {
	case raw.Event == ProgressEventBatch && raw.Summary != nil:
		return Progress{Kind: ProgressBatch, Summary: raw.Summary}, nil

	case raw.Event == ProgressEventJob:
		jobID := ExtractJobID(data)
		if jobID != "" {
			outcome := raw.Result
			if outcome == nil {
				outcome = &JobOutcome{}
			}
			return Progress{Kind: ProgressJob, JobID: jobID, Outcome: outcome}, nil
		}
	}

	return Progress{Kind: ProgressOther, Summary: raw.Summary}, nil
}
