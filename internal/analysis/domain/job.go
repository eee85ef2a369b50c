package domain

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Status is the server-owned lifecycle value of an analysis job.
type Status string

// Known job statuses. Any other value is treated as in progress.
const (
	StatusNone    Status = ""
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

var (
	// ErrNoJob is returned when an operation needs a held job handle
	ErrNoJob = errors.New("no analysis job submitted")

	// ErrResultNotReady is returned when a result is requested before the job is done
	ErrResultNotReady = errors.New("analysis result not ready")

	// ErrCandidateNotFound is returned when a candidate is not part of the result
	ErrCandidateNotFound = errors.New("candidate not found in result")

	// ErrSubmissionInFlight is returned when a submit is attempted while one is pending
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
)

// Terminal reports whether no further transitions occur.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Label is the text shown for the status.
func (s Status) Label() string {
	if s == StatusNone {
		return "unknown"
	}
	return string(s)
}

// Job is the console's cached copy of a backend substitute-analysis job.
type Job struct {
	ID     string  `json:"id"`
	Status Status  `json:"status"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Ready reports whether the result may be trusted.
func (j *Job) Ready() bool {
	return j != nil && j.Status == StatusDone && j.Result != nil
}

func (j *Job) UnmarshalJSON(data []byte) error {
	type plain Job
	var raw struct {
		plain
		UnderscoreID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*j = Job(raw.plain)
	if j.ID == "" {
		j.ID = raw.UnderscoreID
	}
	return nil
}

// Result is the terminal payload of a done job.
type Result struct {
	Candidates []Candidate `json:"candidates"`
}

// Candidate is a ranked substitute produced by the backend. Never mutated here.
type Candidate struct {
	EmployeeID  string         `json:"employeeId"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Score       float64        `json:"score"`
	Details     map[string]any `json:"details,omitempty"`
	Skills      []string       `json:"skills,omitempty"`
	Department  Ref            `json:"department"`
	Designation Ref            `json:"designation"`
}

// FindCandidate returns the candidate with the given employee id.
func (r *Result) FindCandidate(employeeID string) (Candidate, error) {
	if r != nil {
		for _, c := range r.Candidates {
			if c.EmployeeID == employeeID {
				return c, nil
			}
		}
	}
	return Candidate{}, ErrCandidateNotFound
}

// Ref is a department or designation reference. The backend sends either
// a bare id string or a populated {_id, name} object.
type Ref struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name,omitempty"`
}

// String prefers the display name over the id.
func (r Ref) String() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Ref{}
		return nil
	}

	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Ref{ID: id}
		return nil
	}

	var obj struct {
		UnderscoreID string `json:"_id"`
		ID           string `json:"id"`
		Name         string `json:"name"`
		Title        string `json:"title"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	r.ID = obj.UnderscoreID
	if r.ID == "" {
		r.ID = obj.ID
	}
	r.Name = obj.Name
	if r.Name == "" {
		r.Name = obj.Title
	}
	return nil
}

// JobRecord is the generic analysis job document behind /analysis/jobs/:id.
type JobRecord struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Status   Status          `json:"status"`
	Attempts int             `json:"attempts"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	RefDoc   json.RawMessage `json:"refDoc,omitempty"`
}

func (j *JobRecord) UnmarshalJSON(data []byte) error {
	type plain JobRecord
	var raw struct {
		plain
		UnderscoreID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*j = JobRecord(raw.plain)
	if j.ID == "" {
		j.ID = raw.UnderscoreID
	}
	return nil
}

// ProgressSummary holds batch-level worker counters.
type ProgressSummary struct {
	Processed int `json:"processed"`
	OK        int `json:"ok"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// Insights is the fleet-wide analytics snapshot.
type Insights struct {
	Sentiment Sentiment `json:"sentiment"`
}

// Sentiment aggregates analysed feedback.
type Sentiment struct {
	Counts        map[string]int `json:"counts"`
	AvgScore      float64        `json:"avgScore"`
	TotalAnalyzed int            `json:"totalAnalyzed"`
	TopTopics     []Topic        `json:"topTopics"`
}

// Topic is a frequently mentioned subject.
type Topic struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}
