package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/metrohr-console/internal/analysis/domain"
	"github.com/cuongbtq/metrohr-console/internal/hrapi"
	"github.com/cuongbtq/metrohr-console/internal/realtime"
)

// Backend is the part of the REST client the workflow needs
type Backend interface {
	CreateSubstituteJob(ctx context.Context, req hrapi.SubstituteRequest) (string, error)
	GetSubstituteJob(ctx context.Context, jobID string) (*domain.Job, error)
}

// HandleStore persists the held job handle across restarts
type HandleStore interface {
	SaveHandle(ctx context.Context, sessionKey, jobID string) error
	LoadHandle(ctx context.Context, sessionKey string) (string, error)
}

// Config holds workflow dependencies
type Config struct {
	Logger     *slog.Logger
	Backend    Backend
	Hub        *realtime.Hub
	Store      HandleStore // optional
	SessionKey string
}

// State is a point-in-time copy of the workflow
type State struct {
	JobID      string
	Job        *domain.Job
	Loading    bool
	Submitting bool
	LastError  string
}

// Workflow owns the single "current job" slot
type Workflow struct {
	logger     *slog.Logger
	backend    Backend
	hub        *realtime.Hub
	store      HandleStore
	sessionKey string

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	handle     string
	job        *domain.Job
	loading    bool
	submitting bool
	lastError  string
	issued     uint64 // sequence of the latest fetch started
	applied    uint64 // sequence of the latest fetch applied
	sub        *realtime.Subscription
	updated    chan struct{}
	wg         sync.WaitGroup
}

// NewWorkflow creates a workflow with no job held
func NewWorkflow(cfg *Config) *Workflow {
	ctx, cancel := context.WithCancel(context.Background())
	return &Workflow{
		logger:     cfg.Logger,
		backend:    cfg.Backend,
		hub:        cfg.Hub,
		store:      cfg.Store,
		sessionKey: cfg.SessionKey,
		ctx:        ctx,
		cancel:     cancel,
		updated:    make(chan struct{}),
	}
}

// Snapshot returns the current state and a channel closed on the next change.
func (w *Workflow) Snapshot() (State, <-chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked(), w.updated
}

// State returns the current state
func (w *Workflow) State() State {
	s, _ := w.Snapshot()
	return s
}

func (w *Workflow) stateLocked() State {
	var job *domain.Job
	if w.job != nil {
		copied := *w.job
		job = &copied
	}
	return State{
		JobID:      w.handle,
		Job:        job,
		Loading:    w.loading,
		Submitting: w.submitting,
		LastError:  w.lastError,
	}
}

func (w *Workflow) notifyLocked() {
	close(w.updated)
	w.updated = make(chan struct{})
}

// Submit issues exactly one job-creation call. On success the new handle
// replaces the old one and the job state is fetched once.
func (w *Workflow) Submit(ctx context.Context, form SubmitForm) (string, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return "", domain.ErrSubmissionInFlight
	}
	w.submitting = true
	w.notifyLocked()
	w.mu.Unlock()

	req := form.Request()
	w.logger.Info("Submitting substitute analysis",
		slog.Int("top_k", req.TopK),
		slog.String("department", req.Scope.Department),
		slog.Int("required_skills", len(req.RequiredSkills)),
	)

	jobID, err := w.backend.CreateSubstituteJob(ctx, req)

	w.mu.Lock()
	w.submitting = false
	if err != nil {
		w.lastError = hrapi.UserMessage(err)
		w.notifyLocked()
		w.mu.Unlock()

		w.logger.Error("Failed to create substitute job", slog.String("error", err.Error()))
		return "", fmt.Errorf("failed to create substitute job: %w", err)
	}
	w.adoptLocked(jobID)
	w.mu.Unlock()

	w.logger.Info("Substitute job created", slog.String("job_id", jobID))

	if w.store != nil {
		if err := w.store.SaveHandle(ctx, w.sessionKey, jobID); err != nil {
			w.logger.Warn("Failed to persist job handle",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}

	// The job may finish before any push event arrives.
	w.fetch(ctx, jobID)
	return jobID, nil
}

// Restore re-adopts the persisted handle, if any, and fetches its state.
func (w *Workflow) Restore(ctx context.Context) (string, error) {
	if w.store == nil {
		return "", nil
	}

	jobID, err := w.store.LoadHandle(ctx, w.sessionKey)
	if err != nil {
		return "", fmt.Errorf("failed to load job handle: %w", err)
	}
	if jobID == "" {
		return "", nil
	}

	w.mu.Lock()
	w.adoptLocked(jobID)
	w.mu.Unlock()

	w.logger.Info("Restored substitute job handle", slog.String("job_id", jobID))
	w.fetch(ctx, jobID)
	return jobID, nil
}

// adoptLocked swaps the held handle and its single subscription.
func (w *Workflow) adoptLocked(jobID string) {
	if w.sub != nil {
		w.sub.Close()
		w.sub = nil
	}

	w.handle = jobID
	w.job = &domain.Job{ID: jobID, Status: domain.StatusQueued}
	w.lastError = ""
	w.applied = w.issued
	w.notifyLocked()

	if w.hub == nil {
		return
	}

	sub := w.hub.Subscribe(func(e realtime.Event) bool {
		return e.IsAnalysis() && e.JobID() == jobID
	})
	w.sub = sub

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for evt := range sub.C() {
			w.HandleEvent(w.ctx, evt)
		}
	}()
}

// HandleEvent re-fetches the job when evt refers to the held handle. The
// event body itself is never merged. Reports whether a fetch was issued.
func (w *Workflow) HandleEvent(ctx context.Context, evt realtime.Event) bool {
	jobID := evt.JobID()

	w.mu.Lock()
	handle := w.handle
	w.mu.Unlock()

	if handle == "" || jobID != handle {
		return false
	}

	w.logger.Debug("Job event received",
		slog.String("event", evt.Name),
		slog.String("job_id", jobID),
	)
	w.fetch(ctx, handle)
	return true
}

// Refresh re-fetches the held job on demand.
func (w *Workflow) Refresh(ctx context.Context) (State, error) {
	w.mu.Lock()
	handle := w.handle
	w.mu.Unlock()

	if handle == "" {
		return State{}, domain.ErrNoJob
	}

	w.fetch(ctx, handle)
	return w.State(), nil
}

// fetch never fails the caller: errors only land in LastError.
func (w *Workflow) fetch(ctx context.Context, handle string) {
	w.mu.Lock()
	w.issued++
	seq := w.issued
	w.loading = true
	w.notifyLocked()
	w.mu.Unlock()

	job, err := w.backend.GetSubstituteJob(ctx, handle)

	w.mu.Lock()
	defer w.mu.Unlock()
	defer w.notifyLocked()

	if seq == w.issued {
		w.loading = false
	}

	if handle != w.handle {
		return
	}

	// A newer fetch already landed; its outcome wins, success or failure.
	if seq < w.applied {
		w.logger.Debug("Discarding stale job fetch",
			slog.String("job_id", handle),
			slog.Uint64("seq", seq),
			slog.Uint64("applied", w.applied),
		)
		return
	}

	if err != nil {
		w.lastError = hrapi.UserMessage(err)
		w.logger.Warn("Failed to fetch substitute job",
			slog.String("job_id", handle),
			slog.String("error", err.Error()),
		)
		return
	}

	if job.ID == "" {
		job.ID = handle
	}
	w.job = job
	w.applied = seq
	w.lastError = ""

	w.logger.Debug("Substitute job fetched",
		slog.String("job_id", handle),
		slog.String("status", string(job.Status)),
	)
}

// Result returns the held job once it is done with a result.
func (w *Workflow) Result() (*domain.Job, error) {
	state := w.State()
	if state.JobID == "" {
		return nil, domain.ErrNoJob
	}
	if !state.Job.Ready() {
		return nil, domain.ErrResultNotReady
	}
	return state.Job, nil
}

// Wait blocks until the held job reaches a terminal status. A positive poll
// also re-fetches on that interval for consoles without a realtime channel.
func (w *Workflow) Wait(ctx context.Context, poll time.Duration) (State, error) {
	var tick <-chan time.Time
	if poll > 0 {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		state, changed := w.Snapshot()
		if state.JobID == "" {
			return state, domain.ErrNoJob
		}
		if state.Job != nil && state.Job.Status.Terminal() {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-changed:
		case <-tick:
			w.fetch(ctx, state.JobID)
		}
	}
}

// Close drops the subscription and waits for its event handler to return.
func (w *Workflow) Close() {
	w.mu.Lock()
	if w.sub != nil {
		w.sub.Close()
		w.sub = nil
	}
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
}
