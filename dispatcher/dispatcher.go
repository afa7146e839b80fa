// Package dispatcher drives one automation request through the workflow
// engine and reschedules it when the engine asks for a retry.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/attrs"
	"github.com/goliatone/go-automate/descriptor"
	"github.com/goliatone/go-automate/engine"
	"github.com/goliatone/go-automate/identity"
	"github.com/goliatone/go-automate/metrics"
	"github.com/goliatone/go-automate/objects"
	"github.com/goliatone/go-automate/queue"
	"github.com/goliatone/go-automate/task"
)

// Resolver evaluates a descriptor as the acting user.
type Resolver interface {
	Resolve(ctx context.Context, d descriptor.Descriptor, user *identity.User, readonly bool) (*engine.Workspace, error)
}

// EventProcessor receives results of EVENT instance deliveries.
type EventProcessor interface {
	ProcessResult(ctx context.Context, resultCode string, values attrs.Values) error
}

type EventProcessorFunc func(ctx context.Context, resultCode string, values attrs.Values) error

func (f EventProcessorFunc) ProcessResult(ctx context.Context, resultCode string, values attrs.Values) error {
	return f(ctx, resultCode, values)
}

// QueueDefaults apply to every submission made by DeliverQueue.
type QueueDefaults struct {
	Role    string
	Timeout time.Duration
}

const (
	DefaultRole       = identity.AutomateRole
	DefaultMsgTimeout = 60 * time.Minute
)

func DefaultQueueDefaults() QueueDefaults {
	return QueueDefaults{Role: DefaultRole, Timeout: DefaultMsgTimeout}
}

// Dispatcher is safe for concurrent use; attempts share no state.
type Dispatcher struct {
	mu     sync.RWMutex
	events []*eventSub

	resolver Resolver
	queue    queue.Queue
	users    identity.Store
	objects  objects.Store
	tasks    task.Store
	server   *identity.Server
	logger   automate.Logger
	metrics  metrics.Recorder
	now      func() time.Time
	defaults QueueDefaults
}

// Option defines the functional option signature.
type Option func(*Dispatcher)

func WithUsers(store identity.Store) Option {
	return func(d *Dispatcher) { d.users = store }
}

func WithObjects(store objects.Store) Option {
	return func(d *Dispatcher) { d.objects = store }
}

func WithTasks(store task.Store) Option {
	return func(d *Dispatcher) { d.tasks = store }
}

// WithServer sets the worker server used for affinity and context
// references.
func WithServer(server *identity.Server) Option {
	return func(d *Dispatcher) { d.server = server }
}

func WithLogger(logger automate.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(recorder metrics.Recorder) Option {
	return func(d *Dispatcher) {
		if recorder != nil {
			d.metrics = recorder
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

func WithQueueDefaults(defaults QueueDefaults) Option {
	return func(d *Dispatcher) {
		if defaults.Role != "" {
			d.defaults.Role = defaults.Role
		}
		if defaults.Timeout > 0 {
			d.defaults.Timeout = defaults.Timeout
		}
	}
}

// WithEvents subscribes processors at construction.
func WithEvents(processors ...EventProcessor) Option {
	return func(d *Dispatcher) {
		for _, p := range processors {
			d.Subscribe(p)
		}
	}
}

func New(resolver Resolver, q queue.Queue, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver: resolver,
		queue:    q,
		users:    identity.NewMemoryStore(),
		logger:   automate.NewFmtLogger(nil),
		metrics:  metrics.Nop{},
		now:      time.Now,
		defaults: DefaultQueueDefaults(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Server returns the configured worker server, if any.
func (d *Dispatcher) Server() *identity.Server { return d.server }

// Subscribe adds an event processor.
func (d *Dispatcher) Subscribe(p EventProcessor) Subscription {
	if p == nil {
		return &subs{dispatcher: d}
	}
	entry := &eventSub{processor: p}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, entry)
	return &subs{dispatcher: d, entry: entry}
}

func (d *Dispatcher) processors() []EventProcessor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]EventProcessor, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.processor)
	}
	return out
}
