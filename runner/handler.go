// Package runner executes one unit of work with a deadline, bounded
// retries and panic recovery.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-errors"
)

const (
	ErrCodeRunFailed   = "RUN_FAILED"
	ErrCodeRunPanicked = "RUN_PANICKED"
)

type Handler struct {
	mu sync.Mutex

	name          string
	fields        map[string]any
	logger        automate.Logger
	errorHandler  func(error)
	retryStrategy RetryStrategy

	runs           int
	successfulRuns int

	maxRetries int
	timeout    time.Duration
	deadline   time.Time
}

// NewHandler constructs a Handler from options, applying defaults if unset.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		name:          "runner",
		logger:        automate.NewFmtLogger(nil),
		retryStrategy: NoDelayStrategy{},
	}
	h.errorHandler = func(err error) {
		h.logger.Error("%s error: %v", h.name, err)
	}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	return h
}

// Run calls fn until it succeeds or the retry budget is spent and returns
// the last error. A panic in fn is recovered and reported as an error; it
// is not retried.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	h.mu.Lock()
	maxRetries := h.maxRetries
	strategy := h.retryStrategy
	h.mu.Unlock()

	ctx, cancel := h.contextWithSettings(ctx)
	defer cancel()

	var err error
retry:
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var panicked bool
		panicked, err = h.call(ctx, fn)
		if err == nil || panicked {
			break
		}
		if attempt == maxRetries {
			break
		}

		decision := DecideRetry(strategy, attempt, err)
		if !decision.ShouldRetry {
			break
		}
		h.errorHandler(errors.Wrap(err, errors.CategoryHandler,
			fmt.Sprintf("%s failed, attempt %d of %d", h.name, attempt+1, maxRetries+1)).
			WithTextCode(ErrCodeRunFailed))

		if decision.Delay > 0 {
			timer := time.NewTimer(decision.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				err = ctx.Err()
				break retry
			case <-timer.C:
			}
		}
	}

	h.mu.Lock()
	h.runs++
	if err == nil {
		h.successfulRuns++
	}
	h.mu.Unlock()

	if err != nil {
		h.errorHandler(err)
	}
	return err
}

func (h *Handler) call(ctx context.Context, fn func(context.Context) error) (panicked bool, err error) {
	report := automate.LogPanics(h.logger)
	defer automate.MakePanicHandler(func(funcName string, r any, stack []byte, fields ...map[string]any) {
		report(funcName, r, stack, fields...)
		panicked = true
		err = errors.New(fmt.Sprintf("%s panicked: %v", funcName, r), errors.CategoryHandler).
			WithTextCode(ErrCodeRunPanicked)
	})(h.name, h.fields)
	return false, fn(ctx)
}

// Stats reports completed runs and how many succeeded.
func (h *Handler) Stats() (runs, successful int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs, h.successfulRuns
}

func (h *Handler) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	switch {
	case h.timeout != 0 && !h.deadline.IsZero():
		ctx, cancelTimeout := context.WithTimeout(parent, h.timeout)
		ctxDeadline, cancelDeadline := context.WithDeadline(ctx, h.deadline)
		return ctxDeadline, func() {
			cancelDeadline()
			cancelTimeout()
		}
	case h.timeout != 0:
		return context.WithTimeout(parent, h.timeout)
	case !h.deadline.IsZero():
		return context.WithDeadline(parent, h.deadline)
	default:
		return parent, func() {}
	}
}
