package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/dispatcher"
	"github.com/goliatone/go-automate/engine"
	"github.com/goliatone/go-automate/identity"
	"github.com/goliatone/go-automate/queue"
	"github.com/goliatone/go-automate/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var server = &identity.Server{ID: 1, GUID: "guid-1", Zone: "default", Roles: []string{identity.AutomateRole}}

type fakeDeliverer struct {
	mu    sync.Mutex
	seen  []automate.DeliveryOptions
	fn    func(automate.DeliveryOptions) (*dispatcher.Result, error)
	delay time.Duration
}

func (f *fakeDeliverer) Deliver(ctx context.Context, opts automate.DeliveryOptions) (*dispatcher.Result, error) {
	f.mu.Lock()
	f.seen = append(f.seen, opts)
	fn := f.fn
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if fn == nil {
		return &dispatcher.Result{Code: engine.ResultOK}, nil
	}
	return fn(opts)
}

type countingMetrics struct {
	mu      sync.Mutex
	claimed int
}

func (m *countingMetrics) DeliveryFinished(string, time.Duration) {}
func (m *countingMetrics) Requeued(time.Duration)                 {}
func (m *countingMetrics) Claimed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimed += n
}

type flakyQueue struct {
	*queue.Memory
	mu       sync.Mutex
	failures int
}

func (q *flakyQueue) Claim(ctx context.Context, f queue.ClaimFilter) ([]queue.Submission, error) {
	q.mu.Lock()
	if q.failures > 0 {
		q.failures--
		q.mu.Unlock()
		return nil, errors.New("connection reset")
	}
	q.mu.Unlock()
	return q.Memory.Claim(ctx, f)
}

func submit(t *testing.T, q queue.Queue, opts automate.DeliveryOptions, mods ...func(*queue.Submission)) queue.Submission {
	t.Helper()
	payload, err := automate.EncodeOptions(opts)
	require.NoError(t, err)
	sub := queue.Submission{Payload: payload}
	for _, m := range mods {
		m(&sub)
	}
	out, err := q.Submit(context.Background(), sub)
	require.NoError(t, err)
	return out
}

func newWorker(q queue.Queue, d Deliverer, opts ...Option) *Worker {
	base := []Option{
		WithLogger(automate.NewFmtLogger(&bytes.Buffer{})),
		WithClaimRetries(2, runner.NoDelayStrategy{}),
	}
	return New(q, d, server, append(base, opts...)...)
}

func pending(t *testing.T, q queue.Queue) []queue.Submission {
	t.Helper()
	subs, err := q.Pending(context.Background())
	require.NoError(t, err)
	return subs
}

func TestDrainDeliversAndAcks(t *testing.T) {
	q := queue.NewMemory()
	d := &fakeDeliverer{}
	m := &countingMetrics{}
	w := newWorker(q, d, WithMetrics(m))

	submit(t, q, automate.DeliveryOptions{UserID: 1, InstanceName: "AUTOMATION", Attrs: map[string]any{"request": "vm_provision"}})
	submit(t, q, automate.DeliveryOptions{UserID: 1, InstanceName: "AUTOMATION"})

	report, err := w.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Claimed)
	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, "guid-1", report.WorkerID)
	assert.Len(t, d.seen, 2)
	assert.Empty(t, pending(t, q))
	assert.Equal(t, 2, m.claimed)

	status := w.Status()
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.Equal(t, 2, status.LastClaimed)
}

func TestDrainDropsUndecodablePayload(t *testing.T) {
	q := queue.NewMemory()
	d := &fakeDeliverer{}
	w := newWorker(q, d)

	_, err := q.Submit(context.Background(), queue.Submission{Payload: []byte("{not json")})
	require.NoError(t, err)

	report, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Dropped)
	assert.Empty(t, d.seen)
	assert.Empty(t, pending(t, q))
}

func TestDrainDropsPermanentFailures(t *testing.T) {
	q := queue.NewMemory()
	d := &fakeDeliverer{fn: func(automate.DeliveryOptions) (*dispatcher.Result, error) {
		return nil, automate.Errorf(automate.ErrUserNotFound, "user 9 not found")
	}}
	w := newWorker(q, d)
	submit(t, q, automate.DeliveryOptions{UserID: 9})

	report, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeDropped, report.Results[0].Outcome)
	assert.Empty(t, pending(t, q))
}

func TestDrainLeavesTransientFailuresLeased(t *testing.T) {
	q := queue.NewMemory()
	d := &fakeDeliverer{fn: func(automate.DeliveryOptions) (*dispatcher.Result, error) {
		return nil, automate.Errorf(automate.ErrQueueSubmitFailed, "redis down")
	}}
	w := newWorker(q, d, WithLease(time.Minute))
	sub := submit(t, q, automate.DeliveryOptions{UserID: 1})

	report, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Redeliver)

	left := pending(t, q)
	require.Len(t, left, 1)
	assert.Equal(t, sub.ID, left[0].ID)
	assert.Equal(t, "guid-1", left[0].LeaseOwner)
	assert.Equal(t, 1, left[0].Attempts)

	// still leased, so a second cycle claims nothing
	report, err = w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Claimed)
}

func TestDrainDropsPanickingDelivery(t *testing.T) {
	q := queue.NewMemory()
	d := &fakeDeliverer{fn: func(automate.DeliveryOptions) (*dispatcher.Result, error) {
		panic("nil workspace")
	}}
	w := newWorker(q, d)
	submit(t, q, automate.DeliveryOptions{UserID: 1})

	report, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeDropped, report.Results[0].Outcome)
	assert.Contains(t, report.Results[0].Error, "nil workspace")
}

func TestProcessAppliesSubmissionTimeout(t *testing.T) {
	q := queue.NewMemory()
	d := &fakeDeliverer{delay: time.Second}
	w := newWorker(q, d)
	submit(t, q, automate.DeliveryOptions{UserID: 1}, func(s *queue.Submission) {
		s.Timeout = 20 * time.Millisecond
	})

	start := time.Now()
	report, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeRedeliver, report.Results[0].Outcome)
}

func TestFilterHonorsServerAffinity(t *testing.T) {
	q := queue.NewMemory()
	d := &fakeDeliverer{}
	w := newWorker(q, d)

	submit(t, q, automate.DeliveryOptions{UserID: 1}, func(s *queue.Submission) { s.ServerGUID = "guid-2" })
	mine := submit(t, q, automate.DeliveryOptions{UserID: 1}, func(s *queue.Submission) { s.ServerGUID = "guid-1" })
	submit(t, q, automate.DeliveryOptions{UserID: 1}, func(s *queue.Submission) { s.Role = "ems_operations" })

	report, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Claimed)
	assert.Equal(t, mine.ID, report.Results[0].ID)
	assert.Len(t, pending(t, q), 2)

	f := w.Filter()
	assert.Equal(t, "default", f.Zone)
	assert.Equal(t, []string{identity.AutomateRole}, f.Roles)
}

func TestDrainRetriesClaim(t *testing.T) {
	q := &flakyQueue{Memory: queue.NewMemory(), failures: 2}
	d := &fakeDeliverer{}
	w := newWorker(q, d)
	submit(t, q, automate.DeliveryOptions{UserID: 1})

	report, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
}

func TestDrainReportsClaimFailure(t *testing.T) {
	q := &flakyQueue{Memory: queue.NewMemory(), failures: 10}
	w := newWorker(q, &fakeDeliverer{})

	_, err := w.Drain(context.Background())
	require.Error(t, err)

	status := w.Status()
	assert.Equal(t, 1, status.ConsecutiveFailures)
	assert.Equal(t, "connection reset", status.LastError)
}

func TestRetryCycleThroughDispatcher(t *testing.T) {
	q := queue.NewMemory()
	users := identity.NewMemoryStore()
	users.AddUser(identity.User{ID: 1, UserID: "admin", CurrentGroup: &identity.Group{ID: 2, Description: "Super"}})

	var mu sync.Mutex
	calls := 0
	eng := engine.EngineFunc(func(context.Context, string, *identity.User, bool) (*engine.Workspace, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return &engine.Workspace{Root: map[string]any{
				engine.RootResult:        engine.ResultRetry,
				engine.RootState:         "CheckProvisioned",
				engine.RootStateRetries:  "1",
				engine.RootRetryInterval: "0",
			}}, nil
		}
		return &engine.Workspace{Root: map[string]any{engine.RootResult: engine.ResultOK}}, nil
	})

	logs := &bytes.Buffer{}
	logger := automate.NewFmtLogger(logs)
	d := dispatcher.New(engine.NewResolver(eng, engine.WithLogger(logger)), q,
		dispatcher.WithUsers(users),
		dispatcher.WithServer(server),
		dispatcher.WithLogger(logger),
	)
	w := newWorker(q, d, WithLogger(logger))

	submit(t, q, automate.DeliveryOptions{UserID: 1, InstanceName: "AUTOMATION"})

	first, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Results, 1)
	assert.True(t, first.Results[0].Requeued)
	assert.Equal(t, engine.ResultRetry, first.Results[0].Code)

	left := pending(t, q)
	require.Len(t, left, 1)
	next, err := automate.DecodeOptions(left[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "CheckProvisioned", next.State)
	assert.Equal(t, "1", next.StateRetries)

	second, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, second.Results, 1)
	assert.False(t, second.Results[0].Requeued)
	assert.Empty(t, pending(t, q))
	assert.Contains(t, logs.String(), "Requeuing")
}

func TestRunDrainsOnSchedule(t *testing.T) {
	q := queue.NewMemory()
	d := &fakeDeliverer{}
	w := newWorker(q, d)
	submit(t, q, automate.DeliveryOptions{UserID: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, "@every 1s") }()

	assert.Eventually(t, func() bool {
		return len(pending(t, q)) == 0
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
