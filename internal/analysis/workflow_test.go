package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/metrohr-console/internal/analysis/domain"
	"github.com/cuongbtq/metrohr-console/internal/hrapi"
	"github.com/cuongbtq/metrohr-console/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu         sync.Mutex
	createReqs []hrapi.SubstituteRequest
	createIDs  []string
	createErr  error
	createGate chan struct{}
	fetched    []string
	fetchFn    func(call int, jobID string) (*domain.Job, error)
}

func (b *fakeBackend) CreateSubstituteJob(ctx context.Context, req hrapi.SubstituteRequest) (string, error) {
	if b.createGate != nil {
		<-b.createGate
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.createReqs = append(b.createReqs, req)
	if b.createErr != nil {
		return "", b.createErr
	}
	id := b.createIDs[0]
	if len(b.createIDs) > 1 {
		b.createIDs = b.createIDs[1:]
	}
	return id, nil
}

func (b *fakeBackend) GetSubstituteJob(ctx context.Context, jobID string) (*domain.Job, error) {
	b.mu.Lock()
	b.fetched = append(b.fetched, jobID)
	call := len(b.fetched)
	fn := b.fetchFn
	b.mu.Unlock()

	if fn == nil {
		return &domain.Job{ID: jobID, Status: domain.StatusRunning}, nil
	}
	return fn(call, jobID)
}

func (b *fakeBackend) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fetched)
}

func (b *fakeBackend) createCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.createReqs)
}

type memoryHandles struct {
	mu      sync.Mutex
	handles map[string]string
	saveErr error
}

func (m *memoryHandles) SaveHandle(ctx context.Context, key, jobID string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handles == nil {
		m.handles = map[string]string{}
	}
	m.handles[key] = jobID
	return nil
}

func (m *memoryHandles) LoadHandle(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[key], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorkflow(t *testing.T, backend *fakeBackend, hub *realtime.Hub, store HandleStore) *Workflow {
	t.Helper()
	w := NewWorkflow(&Config{
		Logger:     testLogger(),
		Backend:    backend,
		Hub:        hub,
		Store:      store,
		SessionKey: "desk-1",
	})
	t.Cleanup(w.Close)
	return w
}

func progressEvent(t *testing.T, jobID string) realtime.Event {
	t.Helper()
	evt, err := realtime.NewEvent(realtime.EventAnalysisProgress, []byte(`{"event":"analysis:job","job":{"id":"`+jobID+`"},"result":{"ok":true}}`))
	require.NoError(t, err)
	return evt
}

func TestSubmit_CoercesTopK(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{name: "numeric", input: "3", want: 3},
		{name: "padded", input: " 12 ", want: 12},
		{name: "empty", input: "", want: DefaultTopK},
		{name: "non-numeric", input: "abc", want: DefaultTopK},
		{name: "zero", input: "0", want: DefaultTopK},
		{name: "negative", input: "-4", want: DefaultTopK},
		{name: "fraction", input: "2.5", want: DefaultTopK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{createIDs: []string{"J1"}}
			w := newTestWorkflow(t, backend, nil, nil)

			_, err := w.Submit(context.Background(), SubmitForm{TopK: TopK(tt.input)})
			require.NoError(t, err)

			require.Len(t, backend.createReqs, 1)
			assert.Equal(t, tt.want, backend.createReqs[0].TopK)
		})
	}
}

func TestSubmit_StoresHandleAndFetchesOnce(t *testing.T) {
	backend := &fakeBackend{createIDs: []string{"J1"}}
	store := &memoryHandles{}
	w := newTestWorkflow(t, backend, realtime.NewHub(4), store)

	jobID, err := w.Submit(context.Background(), SubmitForm{
		TargetEmployeeID: "E123",
		TopK:             "3",
		RequiredSkills:   " go, ,sql ",
	})
	require.NoError(t, err)
	assert.Equal(t, "J1", jobID)

	assert.Equal(t, 1, backend.createCount())
	assert.Equal(t, []string{"J1"}, backend.fetched)
	assert.Equal(t, []string{"go", "sql"}, backend.createReqs[0].RequiredSkills)

	state := w.State()
	assert.Equal(t, "J1", state.JobID)
	assert.Equal(t, domain.StatusRunning, state.Job.Status)
	assert.False(t, state.Loading)
	assert.False(t, state.Submitting)

	saved, _ := store.LoadHandle(context.Background(), "desk-1")
	assert.Equal(t, "J1", saved)
}

func TestSubmit_FailureSurfacesServerMessage(t *testing.T) {
	backend := &fakeBackend{createErr: &hrapi.APIError{StatusCode: 400, Message: "targetEmployeeId not found"}}
	w := newTestWorkflow(t, backend, nil, nil)

	_, err := w.Submit(context.Background(), SubmitForm{TargetEmployeeID: "E0"})
	require.Error(t, err)
	assert.Equal(t, "targetEmployeeId not found", hrapi.UserMessage(err))

	state := w.State()
	assert.Empty(t, state.JobID)
	assert.False(t, state.Submitting)
	assert.Equal(t, "targetEmployeeId not found", state.LastError)
	assert.Equal(t, 0, backend.fetchCount())

	// the form stays usable
	backend.createErr = nil
	backend.createIDs = []string{"J2"}
	jobID, err := w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)
	assert.Equal(t, "J2", jobID)
	assert.Equal(t, 2, backend.createCount())
}

func TestSubmit_RejectsConcurrentSubmission(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{createIDs: []string{"J1"}, createGate: gate}
	w := newTestWorkflow(t, backend, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background(), SubmitForm{})
		done <- err
	}()

	require.Eventually(t, func() bool { return w.State().Submitting }, time.Second, 5*time.Millisecond)

	_, err := w.Submit(context.Background(), SubmitForm{})
	assert.True(t, errors.Is(err, domain.ErrSubmissionInFlight))

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, backend.createCount())
}

func TestHandleEvent_OnlyMatchingJobTriggersFetch(t *testing.T) {
	backend := &fakeBackend{createIDs: []string{"J"}}
	w := newTestWorkflow(t, backend, nil, nil)

	_, err := w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)
	require.Equal(t, 1, backend.fetchCount())

	var triggered []bool
	for _, id := range []string{"J", "K", "J", "K"} {
		triggered = append(triggered, w.HandleEvent(context.Background(), progressEvent(t, id)))
	}

	assert.Equal(t, []bool{true, false, true, false}, triggered)
	assert.Equal(t, 3, backend.fetchCount())
}

func TestHandleEvent_WithoutHandleIsIgnored(t *testing.T) {
	backend := &fakeBackend{}
	w := newTestWorkflow(t, backend, nil, nil)

	assert.False(t, w.HandleEvent(context.Background(), progressEvent(t, "J")))
	assert.Equal(t, 0, backend.fetchCount())
}

func TestSubscription_HubEventsDriveRefetch(t *testing.T) {
	hub := realtime.NewHub(8)
	backend := &fakeBackend{createIDs: []string{"J"}}
	w := newTestWorkflow(t, backend, hub, nil)

	_, err := w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)

	for _, id := range []string{"J", "K", "J", "K"} {
		hub.Publish(progressEvent(t, id))
	}

	require.Eventually(t, func() bool { return backend.fetchCount() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, backend.fetchCount())
}

func TestSubscription_ReplacedOnHandleChange(t *testing.T) {
	hub := realtime.NewHub(8)
	backend := &fakeBackend{createIDs: []string{"J1", "J2"}}
	w := newTestWorkflow(t, backend, hub, nil)

	_, err := w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers())

	_, err = w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers())
	assert.Equal(t, "J2", w.State().JobID)

	// events for the discarded handle are ignored
	hub.Publish(progressEvent(t, "J1"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, backend.fetchCount())

	w.Close()
	assert.Equal(t, 0, hub.Subscribers())
}

func TestFetchFailure_RetainsPreviousState(t *testing.T) {
	backend := &fakeBackend{createIDs: []string{"J1"}}
	backend.fetchFn = func(call int, jobID string) (*domain.Job, error) {
		if call == 1 {
			return &domain.Job{ID: jobID, Status: domain.StatusRunning}, nil
		}
		return nil, errors.New("connection reset by peer")
	}
	w := newTestWorkflow(t, backend, nil, nil)

	_, err := w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)

	state, err := w.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRunning, state.Job.Status)
	assert.False(t, state.Loading)
	assert.Equal(t, "connection reset by peer", state.LastError)
}

func TestRefresh_WithoutJob(t *testing.T) {
	w := newTestWorkflow(t, &fakeBackend{}, nil, nil)

	_, err := w.Refresh(context.Background())
	assert.True(t, errors.Is(err, domain.ErrNoJob))
}

func TestFetch_StaleResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	slowStarted := make(chan struct{})

	backend := &fakeBackend{createIDs: []string{"J1"}}
	backend.fetchFn = func(call int, jobID string) (*domain.Job, error) {
		switch call {
		case 1:
			return &domain.Job{ID: jobID, Status: domain.StatusQueued}, nil
		case 2:
			close(slowStarted)
			<-release
			return &domain.Job{ID: jobID, Status: domain.StatusRunning}, nil
		default:
			return &domain.Job{ID: jobID, Status: domain.StatusDone, Result: &domain.Result{}}, nil
		}
	}
	w := newTestWorkflow(t, backend, nil, nil)

	_, err := w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, _ = w.Refresh(context.Background())
	}()
	<-slowStarted

	state, err := w.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, state.Job.Status)

	close(release)
	<-slowDone

	final := w.State()
	assert.Equal(t, domain.StatusDone, final.Job.Status)
	assert.False(t, final.Loading)
}

func TestFetch_StaleFailureIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	slowStarted := make(chan struct{})

	backend := &fakeBackend{createIDs: []string{"J1"}}
	backend.fetchFn = func(call int, jobID string) (*domain.Job, error) {
		switch call {
		case 1:
			return &domain.Job{ID: jobID, Status: domain.StatusQueued}, nil
		case 2:
			close(slowStarted)
			<-release
			return nil, errors.New("gateway timeout")
		default:
			return &domain.Job{ID: jobID, Status: domain.StatusDone, Result: &domain.Result{}}, nil
		}
	}
	w := newTestWorkflow(t, backend, nil, nil)

	_, err := w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, _ = w.Refresh(context.Background())
	}()
	<-slowStarted

	_, err = w.Refresh(context.Background())
	require.NoError(t, err)

	close(release)
	<-slowDone

	final := w.State()
	assert.Equal(t, domain.StatusDone, final.Job.Status)
	assert.Empty(t, final.LastError)
	assert.False(t, final.Loading)
}

func TestRestore(t *testing.T) {
	backend := &fakeBackend{}
	backend.fetchFn = func(call int, jobID string) (*domain.Job, error) {
		return &domain.Job{ID: jobID, Status: domain.StatusFailed, Error: "worker crashed"}, nil
	}
	store := &memoryHandles{handles: map[string]string{"desk-1": "J7"}}
	hub := realtime.NewHub(4)
	w := newTestWorkflow(t, backend, hub, store)

	jobID, err := w.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "J7", jobID)
	assert.Equal(t, 1, hub.Subscribers())

	view := w.State().View()
	assert.Equal(t, "failed", view.Status)
	assert.Equal(t, "worker crashed", view.JobError)
	assert.False(t, view.ShowResults)
}

func TestRestore_NothingPersisted(t *testing.T) {
	backend := &fakeBackend{}
	w := newTestWorkflow(t, backend, nil, &memoryHandles{})

	jobID, err := w.Restore(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobID)
	assert.Equal(t, 0, backend.fetchCount())
}

func TestSubmit_PersistFailureIsNotFatal(t *testing.T) {
	backend := &fakeBackend{createIDs: []string{"J1"}}
	w := newTestWorkflow(t, backend, nil, &memoryHandles{saveErr: errors.New("db down")})

	jobID, err := w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)
	assert.Equal(t, "J1", jobID)
}

func TestResult(t *testing.T) {
	backend := &fakeBackend{createIDs: []string{"J1"}}
	statuses := []domain.Status{domain.StatusRunning, domain.StatusDone}
	backend.fetchFn = func(call int, jobID string) (*domain.Job, error) {
		job := &domain.Job{ID: jobID, Status: statuses[call-1]}
		if job.Status == domain.StatusDone {
			job.Result = &domain.Result{Candidates: []domain.Candidate{{EmployeeID: "E9"}}}
		}
		return job, nil
	}
	w := newTestWorkflow(t, backend, nil, nil)

	_, err := w.Result()
	assert.True(t, errors.Is(err, domain.ErrNoJob))

	_, err = w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)

	_, err = w.Result()
	assert.True(t, errors.Is(err, domain.ErrResultNotReady))

	_, err = w.Refresh(context.Background())
	require.NoError(t, err)

	job, err := w.Result()
	require.NoError(t, err)
	assert.Len(t, job.Result.Candidates, 1)
}

func TestSnapshot_SignalsChange(t *testing.T) {
	backend := &fakeBackend{createIDs: []string{"J1"}}
	w := newTestWorkflow(t, backend, nil, nil)

	_, changed := w.Snapshot()

	_, err := w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)

	select {
	case <-changed:
	default:
		t.Fatal("expected change notification")
	}
}

func TestWait_ReturnsOnTerminalStatus(t *testing.T) {
	hub := realtime.NewHub(4)
	backend := &fakeBackend{createIDs: []string{"J1"}}
	backend.fetchFn = func(call int, jobID string) (*domain.Job, error) {
		if call == 1 {
			return &domain.Job{ID: jobID, Status: domain.StatusRunning}, nil
		}
		return &domain.Job{ID: jobID, Status: domain.StatusDone, Result: &domain.Result{}}, nil
	}
	w := newTestWorkflow(t, backend, hub, nil)

	_, err := w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)

	evt := progressEvent(t, "J1")
	go func() {
		time.Sleep(10 * time.Millisecond)
		hub.Publish(evt)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	state, err := w.Wait(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, state.Job.Status)
}

func TestWait_PollFallback(t *testing.T) {
	backend := &fakeBackend{createIDs: []string{"J1"}}
	backend.fetchFn = func(call int, jobID string) (*domain.Job, error) {
		if call < 3 {
			return &domain.Job{ID: jobID, Status: domain.StatusRunning}, nil
		}
		return &domain.Job{ID: jobID, Status: domain.StatusFailed, Error: "boom"}, nil
	}
	w := newTestWorkflow(t, backend, nil, nil)

	_, err := w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	state, err := w.Wait(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, state.Job.Status)
	assert.Equal(t, 3, backend.fetchCount())
}

func TestWait_Errors(t *testing.T) {
	w := newTestWorkflow(t, &fakeBackend{createIDs: []string{"J1"}}, nil, nil)

	_, err := w.Wait(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrNoJob)

	_, err = w.Submit(context.Background(), SubmitForm{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = w.Wait(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
