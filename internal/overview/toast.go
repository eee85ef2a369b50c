package overview

import (
	"time"

	"github.com/cuongbtq/metrohr-console/internal/realtime"
	"github.com/google/uuid"
)

// Toast is a transient per-job outcome notice
type Toast struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	OK        bool      `json:"ok"`
	Took      float64   `json:"took"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// newest first; the oldest is evicted past the limit
func (o *Overview) pushToastLocked(jobID string, outcome *realtime.JobOutcome) {
	t := Toast{
		ID:        uuid.NewString(),
		JobID:     jobID,
		OK:        outcome.OK,
		Took:      outcome.Took,
		Error:     outcome.Error,
		CreatedAt: time.Now().UTC(),
	}

	o.toasts = append([]Toast{t}, o.toasts...)
	for len(o.toasts) > o.toastLimit {
		evicted := o.toasts[len(o.toasts)-1]
		o.toasts = o.toasts[:len(o.toasts)-1]
		o.stopTimerLocked(evicted.ID)
	}

	id := t.ID
	o.timers[id] = time.AfterFunc(o.toastTTL, func() {
		o.Dismiss(id)
	})
}

// Dismiss removes a toast before it expires. Reports whether it existed.
func (o *Overview) Dismiss(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopTimerLocked(id)
	for i, t := range o.toasts {
		if t.ID == id {
			o.toasts = append(o.toasts[:i], o.toasts[i+1:]...)
			return true
		}
	}
	return false
}

func (o *Overview) stopTimerLocked(id string) {
	if timer, ok := o.timers[id]; ok {
		timer.Stop()
		delete(o.timers, id)
	}
}
