package worker

import (
	"strings"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/metrics"
	"github.com/goliatone/go-automate/runner"
)

type Option func(*Worker)

// WithWorkerID overrides the lease owner recorded on claimed submissions.
// Defaults to the server GUID.
func WithWorkerID(id string) Option {
	return func(w *Worker) {
		w.id = strings.TrimSpace(id)
	}
}

// WithBatchSize sets the max submissions claimed per drain cycle.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

// WithLease sets how long a claimed submission stays invisible to other
// workers.
func WithLease(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.lease = d
		}
	}
}

// WithDefaultTimeout bounds deliveries whose submission carries no timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithClaimRetries controls how claim failures are retried within a cycle.
func WithClaimRetries(max int, strategy runner.RetryStrategy) Option {
	return func(w *Worker) {
		w.claimRetries = max
		if strategy != nil {
			w.claimStrategy = strategy
		}
	}
}

func WithLogger(logger automate.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(recorder metrics.Recorder) Option {
	return func(w *Worker) {
		if recorder != nil {
			w.metrics = recorder
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}
