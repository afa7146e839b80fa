package runner

import (
	"time"

	"github.com/goliatone/go-automate"
)

type Option func(*Handler)

// WithTimeout bounds each Run, retries included.
func WithTimeout(t time.Duration) Option {
	return func(h *Handler) {
		h.timeout = t
	}
}

func WithDeadline(d time.Time) Option {
	return func(h *Handler) {
		h.deadline = d
	}
}

func WithMaxRetries(max int) Option {
	return func(h *Handler) {
		if max < 0 {
			max = 0
		}
		h.maxRetries = max
	}
}

func WithErrorHandler(fn func(error)) Option {
	return func(h *Handler) {
		if fn == nil {
			fn = func(error) {}
		}
		h.errorHandler = fn
	}
}

func WithLogger(l automate.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRetryStrategy lets you define a custom retry/backoff approach.
func WithRetryStrategy(s RetryStrategy) Option {
	return func(h *Handler) {
		if s != nil {
			h.retryStrategy = s
		}
	}
}

// WithName labels log lines and panic reports.
func WithName(name string) Option {
	return func(h *Handler) {
		h.name = name
	}
}

// WithFields attaches context to panic reports.
func WithFields(fields map[string]any) Option {
	return func(h *Handler) {
		h.fields = fields
	}
}
