// Package overview maintains the fleet-wide analysis widget: the insights
// snapshot, batch progress counters and transient per-job toasts.
package overview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/metrohr-console/internal/analysis/domain"
	"github.com/cuongbtq/metrohr-console/internal/hrapi"
	"github.com/cuongbtq/metrohr-console/internal/query"
	"github.com/cuongbtq/metrohr-console/internal/realtime"
)

// Defaults applied when Config leaves a value at zero
const (
	DefaultPollInterval = 30 * time.Second
	DefaultToastLimit   = 6
	DefaultToastTTL     = 6 * time.Second
)

// Backend is the part of the REST client the overview needs
type Backend interface {
	GetInsights(ctx context.Context, noCache bool) (*domain.Insights, error)
	GetAnalysisJob(ctx context.Context, jobID string) (*domain.JobRecord, error)
}

// Ticker abstracts time.Ticker
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Config holds overview dependencies
type Config struct {
	Logger       *slog.Logger
	Backend      Backend
	Hub          *realtime.Hub
	PollInterval time.Duration
	ToastLimit   int
	ToastTTL     time.Duration

	// NewTicker replaces time.NewTicker; used by tests.
	NewTicker func(time.Duration) Ticker
}

// Snapshot is a point-in-time copy of the widget state
type Snapshot struct {
	Insights      *domain.Insights        `json:"insights,omitempty"`
	InsightsError string                  `json:"insightsError,omitempty"`
	LastPolledAt  time.Time               `json:"lastPolledAt,omitempty"`
	Progress      *domain.ProgressSummary `json:"progress,omitempty"`
	Toasts        []Toast                 `json:"toasts"`
}

// DetailView is the job detail opened from a toast. Lookup failures are
// reported in Error instead of being returned.
type DetailView struct {
	Job   *domain.JobRecord `json:"job,omitempty"`
	Error string            `json:"error,omitempty"`
}

// Overview owns the widget state
type Overview struct {
	logger       *slog.Logger
	backend      Backend
	hub          *realtime.Hub
	pollInterval time.Duration
	toastLimit   int
	toastTTL     time.Duration
	newTicker    func(time.Duration) Ticker
	details      *query.Cache[string, *domain.JobRecord]

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	mu            sync.Mutex
	insights      *domain.Insights
	insightsError string
	lastPolledAt  time.Time
	progress      *domain.ProgressSummary
	toasts        []Toast
	timers        map[string]*time.Timer
}

// New creates an overview. Nothing runs until Start.
func New(cfg *Config) *Overview {
	o := &Overview{
		logger:       cfg.Logger,
		backend:      cfg.Backend,
		hub:          cfg.Hub,
		pollInterval: cfg.PollInterval,
		toastLimit:   cfg.ToastLimit,
		toastTTL:     cfg.ToastTTL,
		newTicker:    cfg.NewTicker,
		timers:       make(map[string]*time.Timer),
	}
	if o.pollInterval <= 0 {
		o.pollInterval = DefaultPollInterval
	}
	if o.toastLimit <= 0 {
		o.toastLimit = DefaultToastLimit
	}
	if o.toastTTL <= 0 {
		o.toastTTL = DefaultToastTTL
	}
	if o.newTicker == nil {
		o.newTicker = newRealTicker
	}

	// Terminal records stay cached until a job event names them; anything
	// else is re-read on open.
	o.details = query.New(o.backend.GetAnalysisJob,
		query.WithStale[string, *domain.JobRecord](func(job *domain.JobRecord, _ time.Time) bool {
			return !job.Status.Terminal()
		}),
	)
	return o
}

// Start launches the poll loop and event subscription. A second call while
// running does nothing and reports false.
func (o *Overview) Start(ctx context.Context) bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if o.running {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	o.running = true
	o.cancel = cancel
	o.done = make(chan struct{})

	var sub *realtime.Subscription
	if o.hub != nil {
		sub = o.hub.Subscribe(func(e realtime.Event) bool {
			return e.Name == realtime.EventAnalysisProgress
		})
	}
	ticker := o.newTicker(o.pollInterval)

	go o.loop(ctx, ticker, sub, o.done)

	o.logger.Info("Overview started", slog.Duration("poll_interval", o.pollInterval))
	return true
}

// Run starts the overview and blocks until ctx is cancelled.
func (o *Overview) Run(ctx context.Context) error {
	o.Start(ctx)
	<-ctx.Done()
	o.Stop()
	return nil
}

// Stop tears down the loop and every toast timer.
func (o *Overview) Stop() {
	o.runMu.Lock()
	if !o.running {
		o.runMu.Unlock()
		return
	}
	o.cancel()
	done := o.done
	o.running = false
	o.runMu.Unlock()

	<-done

	o.mu.Lock()
	for id, timer := range o.timers {
		timer.Stop()
		delete(o.timers, id)
	}
	o.toasts = nil
	o.mu.Unlock()

	o.logger.Info("Overview stopped")
}

// Running reports whether the loop is active.
func (o *Overview) Running() bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return o.running
}

func (o *Overview) loop(ctx context.Context, ticker Ticker, sub *realtime.Subscription, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	var events <-chan realtime.Event
	if sub != nil {
		defer sub.Close()
		events = sub.C()
	}

	o.Poll(ctx, false)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			o.Poll(ctx, false)
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			o.HandleEvent(ctx, evt)
		}
	}
}

// Poll fetches insights. A failure keeps the previous snapshot.
func (o *Overview) Poll(ctx context.Context, noCache bool) {
	insights, err := o.backend.GetInsights(ctx, noCache)

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		o.insightsError = hrapi.UserMessage(err)
		o.logger.Warn("Failed to poll insights",
			slog.Bool("nocache", noCache),
			slog.String("error", err.Error()),
		)
		return
	}
	o.insights = insights
	o.insightsError = ""
	o.lastPolledAt = time.Now().UTC()
}

// Refresh is the manual poll; it always bypasses the server cache.
func (o *Overview) Refresh(ctx context.Context) Snapshot {
	o.Poll(ctx, true)
	return o.Snapshot()
}

// HandleEvent applies one analysis:progress event.
func (o *Overview) HandleEvent(ctx context.Context, evt realtime.Event) {
	if evt.Name != realtime.EventAnalysisProgress {
		return
	}

	progress, err := realtime.DecodeProgress(evt.Data)
	if err != nil {
		o.logger.Warn("Ignoring malformed progress event", slog.String("error", err.Error()))
		return
	}

	switch progress.Kind {
	case realtime.ProgressBatch:
		summary := *progress.Summary
		o.mu.Lock()
		o.progress = &summary
		o.mu.Unlock()

		o.Poll(ctx, true)

	case realtime.ProgressJob:
		o.mu.Lock()
		o.applyOutcomeLocked(progress.Outcome)
		o.pushToastLocked(progress.JobID, progress.Outcome)
		o.mu.Unlock()

		// The record behind the toast has just changed.
		o.details.Invalidate(progress.JobID)

	default:
		o.mu.Lock()
		if progress.Summary != nil {
			summary := *progress.Summary
			o.progress = &summary
		} else {
			o.progress = nil
		}
		o.mu.Unlock()
	}
}

func (o *Overview) applyOutcomeLocked(outcome *realtime.JobOutcome) {
	next := domain.ProgressSummary{}
	if o.progress != nil {
		next = *o.progress
	}

	next.Processed++
	if outcome.OK {
		next.OK++
	} else {
		next.Failed++
	}
	if outcome.Pending != nil {
		next.Pending = *outcome.Pending
	}
	o.progress = &next
}

// Snapshot returns a copy of the current state.
func (o *Overview) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Snapshot{
		Insights:      o.insights,
		InsightsError: o.insightsError,
		LastPolledAt:  o.lastPolledAt,
		Toasts:        append([]Toast{}, o.toasts...),
	}
	if o.progress != nil {
		p := *o.progress
		s.Progress = &p
	}
	return s
}

// JobDetail loads the job behind a toast.
func (o *Overview) JobDetail(ctx context.Context, jobID string) DetailView {
	job, err := o.details.Get(ctx, jobID)
	if err != nil {
		o.logger.Warn("Failed to load job detail",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return DetailView{Error: hrapi.UserMessage(err)}
	}
	return DetailView{Job: job}
}
