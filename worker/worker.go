// Package worker pulls due submissions for one server identity off the
// queue and feeds them back into the dispatcher.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/cron"
	"github.com/goliatone/go-automate/dispatcher"
	"github.com/goliatone/go-automate/identity"
	"github.com/goliatone/go-automate/metrics"
	"github.com/goliatone/go-automate/queue"
	"github.com/goliatone/go-automate/runner"
	"github.com/goliatone/go-errors"
)

const (
	DefaultBatchSize = 10
	DefaultLease     = 65 * time.Minute
	DefaultPoll      = "@every 2s"
)

// Deliverer is the part of the dispatcher a worker drives.
type Deliverer interface {
	Deliver(ctx context.Context, opts automate.DeliveryOptions) (*dispatcher.Result, error)
}

// Outcome classifies what happened to one claimed submission.
type Outcome string

const (
	// OutcomeDelivered means the attempt ran and the submission was acked.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeDropped means the submission can never succeed and was acked.
	OutcomeDropped Outcome = "dropped"
	// OutcomeRedeliver means the submission was left for its lease to expire.
	OutcomeRedeliver Outcome = "redeliver"
)

type SubmissionResult struct {
	ID       string
	Attempts int
	Outcome  Outcome
	Code     string
	Requeued bool
	Error    string
}

// Report summarizes one drain cycle.
type Report struct {
	WorkerID   string
	Claimed    int
	Delivered  int
	Dropped    int
	Redeliver  int
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []SubmissionResult
}

// Status tracks the latest cycle for health reporting.
type Status struct {
	WorkerID            string
	LastRunAt           time.Time
	LastSuccessAt       time.Time
	LastError           string
	ConsecutiveFailures int
	LastClaimed         int
}

type Worker struct {
	queue     queue.Queue
	deliverer Deliverer
	server    *identity.Server

	id            string
	batch         int
	lease         time.Duration
	timeout       time.Duration
	claimRetries  int
	claimStrategy runner.RetryStrategy
	logger        automate.Logger
	metrics       metrics.Recorder
	now           func() time.Time

	mu     sync.RWMutex
	status Status
}

// New builds a worker claiming on behalf of server.
func New(q queue.Queue, d Deliverer, server *identity.Server, opts ...Option) *Worker {
	w := &Worker{
		queue:        q,
		deliverer:    d,
		server:       server,
		batch:        DefaultBatchSize,
		lease:        DefaultLease,
		timeout:      dispatcher.DefaultMsgTimeout,
		claimRetries: 2,
		claimStrategy: runner.ExponentialBackoffStrategy{
			Base:   100 * time.Millisecond,
			Factor: 2,
			Max:    2 * time.Second,
		},
		logger:  automate.NewFmtLogger(nil),
		metrics: metrics.Nop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if w.id == "" && server != nil {
		w.id = server.GUID
	}
	w.status.WorkerID = w.id
	return w
}

// Filter describes this worker to the queue: its GUID for affinity, its
// zone and its active roles.
func (w *Worker) Filter() queue.ClaimFilter {
	f := queue.ClaimFilter{
		WorkerID: w.id,
		Limit:    w.batch,
		Lease:    w.lease,
		Now:      w.now(),
	}
	if w.server != nil {
		f.ServerGUID = w.server.GUID
		f.Zone = w.server.Zone
		f.Roles = append([]string(nil), w.server.Roles...)
	}
	return f
}

// Drain runs one claim and deliver cycle. Errors returned are claim
// failures; per submission failures are reported in the Report.
func (w *Worker) Drain(ctx context.Context) (Report, error) {
	report := Report{WorkerID: w.id, StartedAt: w.now().UTC()}
	if w.queue == nil || w.deliverer == nil {
		err := errors.New("worker not configured", errors.CategoryBadInput)
		w.record(report, err)
		return report, err
	}

	var claimed []queue.Submission
	claim := runner.NewHandler(
		runner.WithName("claim"),
		runner.WithLogger(w.logger),
		runner.WithMaxRetries(w.claimRetries),
		runner.WithRetryStrategy(w.claimStrategy),
		runner.WithErrorHandler(func(err error) {
			w.logger.Warn("Worker [%s] claim failed: %v", w.id, err)
		}),
	)
	err := claim.Run(ctx, func(ctx context.Context) error {
		subs, err := w.queue.Claim(ctx, w.Filter())
		claimed = subs
		return err
	})
	if err != nil {
		report.FinishedAt = w.now().UTC()
		w.record(report, err)
		return report, err
	}

	report.Claimed = len(claimed)
	w.metrics.Claimed(len(claimed))

	for _, sub := range claimed {
		res := w.Process(ctx, sub)
		switch res.Outcome {
		case OutcomeDelivered:
			report.Delivered++
		case OutcomeDropped:
			report.Dropped++
		default:
			report.Redeliver++
		}
		report.Results = append(report.Results, res)
	}

	report.FinishedAt = w.now().UTC()
	w.record(report, nil)
	return report, nil
}

// Process delivers one claimed submission and acks it unless the attempt
// should be retried through lease expiry.
func (w *Worker) Process(ctx context.Context, sub queue.Submission) SubmissionResult {
	res := SubmissionResult{ID: sub.ID, Attempts: sub.Attempts}
	logger := automate.WithLoggerFields(w.logger.WithContext(ctx), map[string]any{
		"submission_id": sub.ID,
		"attempt":       sub.Attempts,
		"worker_id":     w.id,
	})

	opts, err := automate.DecodeOptions(sub.Payload)
	if err != nil {
		logger.Error("Dropping submission [%s]: %v", sub.ID, err)
		return w.settle(ctx, logger, res, OutcomeDropped, err)
	}

	timeout := sub.Timeout
	if timeout <= 0 {
		timeout = w.timeout
	}
	h := runner.NewHandler(
		runner.WithName("deliver "+sub.ID),
		runner.WithFields(map[string]any{"submission_id": sub.ID, "object": opts.ObjectName()}),
		runner.WithLogger(logger),
		runner.WithTimeout(timeout),
		runner.WithErrorHandler(func(error) {}),
	)

	var result *dispatcher.Result
	err = h.Run(ctx, func(ctx context.Context) error {
		r, err := w.deliverer.Deliver(ctx, opts)
		result = r
		return err
	})
	if result != nil {
		res.Code = result.Code
		res.Requeued = result.Requeued
	}

	switch {
	case err == nil:
		return w.settle(ctx, logger, res, OutcomeDelivered, nil)
	case permanent(err):
		logger.Error("Dropping submission [%s]: %v", sub.ID, err)
		return w.settle(ctx, logger, res, OutcomeDropped, err)
	default:
		logger.Warn("Submission [%s] left for redelivery: %v", sub.ID, err)
		res.Outcome = OutcomeRedeliver
		res.Error = err.Error()
		return res
	}
}

func (w *Worker) settle(ctx context.Context, logger automate.Logger, res SubmissionResult, outcome Outcome, cause error) SubmissionResult {
	res.Outcome = outcome
	if cause != nil {
		res.Error = cause.Error()
	}
	if err := w.queue.Ack(ctx, res.ID); err != nil {
		logger.Error("Ack of submission [%s] failed: %v", res.ID, err)
		res.Outcome = OutcomeRedeliver
		res.Error = err.Error()
	}
	return res
}

// permanent reports failures that a later attempt cannot fix.
func permanent(err error) bool {
	switch automate.ErrorCode(err) {
	case automate.ErrCodeInvalidPayload,
		automate.ErrCodeUserIDRequired,
		automate.ErrCodeUserNotFound,
		automate.ErrCodeGroupNotFound,
		runner.ErrCodeRunPanicked:
		return true
	}
	return false
}

// Run drains on schedule until ctx is done. An empty schedule uses
// DefaultPoll.
func (w *Worker) Run(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultPoll
	}
	s := cron.NewScheduler(
		cron.WithLogger(w.logger),
		cron.WithErrorHandler(func(err error) {
			w.logger.Error("Worker [%s] drain failed: %v", w.id, err)
		}),
	)
	if _, err := s.Schedule(cron.JobConfig{Name: "drain", Expression: schedule}, func(ctx context.Context) error {
		_, err := w.Drain(ctx)
		return err
	}); err != nil {
		return err
	}

	w.logger.Info("Worker [%s] polling queue %s", w.id, schedule)
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop(context.Background())
}

// Status returns the latest cycle summary.
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

func (w *Worker) record(report Report, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.LastRunAt = report.StartedAt
	w.status.LastClaimed = report.Claimed
	if err != nil {
		w.status.LastError = err.Error()
		w.status.ConsecutiveFailures++
		return
	}
	w.status.LastError = ""
	w.status.ConsecutiveFailures = 0
	w.status.LastSuccessAt = report.FinishedAt
}
