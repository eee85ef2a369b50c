package analysis

import "github.com/cuongbtq/metrohr-console/internal/analysis/domain"

// ResultView is what the result panel renders for the current job
type ResultView struct {
	JobID       string             `json:"jobId,omitempty"`
	Status      string             `json:"status"`
	Loading     bool               `json:"loading"`
	Submitting  bool               `json:"submitting"`
	JobError    string             `json:"jobError,omitempty"`
	LastError   string             `json:"lastError,omitempty"`
	ShowResults bool               `json:"showResults"`
	Candidates  []domain.Candidate `json:"candidates,omitempty"`
}

// View projects the state. Candidates appear only for a done job that
// carries a result; every other status is reported as text.
func (s State) View() ResultView {
	v := ResultView{
		JobID:      s.JobID,
		Status:     "idle",
		Loading:    s.Loading,
		Submitting: s.Submitting,
		LastError:  s.LastError,
	}

	if s.Job == nil {
		return v
	}

	v.Status = s.Job.Status.Label()
	if s.Job.Status == domain.StatusFailed {
		v.JobError = s.Job.Error
	}
	if s.Job.Ready() {
		v.ShowResults = true
		v.Candidates = s.Job.Result.Candidates
	}
	return v
}
