package engine

import (
	"context"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/attrs"
	"github.com/goliatone/go-automate/descriptor"
	"github.com/goliatone/go-automate/identity"
)

// Resolver hands descriptors to the engine on behalf of an acting user.
type Resolver struct {
	engine Engine
	logger automate.Logger
	now    func() time.Time
}

type Option func(*Resolver)

func WithLogger(logger automate.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the clock used for instantiate timings.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func NewResolver(engine Engine, opts ...Option) *Resolver {
	r := &Resolver{
		engine: engine,
		logger: automate.NewFmtLogger(nil),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve evaluates d.
func (r *Resolver) Resolve(ctx context.Context, d descriptor.Descriptor, user *identity.User, readonly bool) (*Workspace, error) {
	return r.ResolveURI(ctx, d.String(), user, readonly)
}

// ResolveAttrs builds the descriptor for instance from values first, and
// returns the URI it resolved.
func (r *Resolver) ResolveAttrs(ctx context.Context, instance string, values attrs.Values, opts descriptor.Options, user *identity.User, readonly bool) (*Workspace, string, error) {
	d, err := descriptor.Build(instance, values, opts)
	if err != nil {
		return nil, "", err
	}
	uri := d.String()
	ws, err := r.ResolveURI(ctx, uri, user, readonly)
	return ws, uri, err
}

// ResolveURI evaluates a prebuilt automation URI.
func (r *Resolver) ResolveURI(ctx context.Context, uri string, user *identity.User, readonly bool) (*Workspace, error) {
	logged := automate.SanitizeURI(uri)
	if !user.Authenticated() {
		return nil, automate.NewError(automate.ErrUnauthorizedActor, "", nil, map[string]any{"uri": logged})
	}
	if r.engine == nil {
		return nil, automate.Errorf(automate.ErrEngineFailure, "no workflow engine configured")
	}

	logger := r.logger.WithContext(ctx)
	logger.Info("Instantiating Workspace for URI=%s", logged)

	start := r.now()
	ws, err := r.engine.Instantiate(ctx, uri, user, readonly)
	bench := Benchmark{TotalTimeKey: r.now().Sub(start).Seconds()}
	if ws != nil {
		bench.Merge(ws.Stats)
	}
	logger.Info("Instantiating Workspace for URI=%s...Complete - Counts: %s, Timings: %s", logged, bench.FormatCounts(), bench.FormatTimes())

	if err != nil {
		if automate.ErrorCode(err) != "" {
			return nil, err
		}
		return nil, automate.NewError(automate.ErrEngineFailure, err.Error(), err, map[string]any{"uri": logged})
	}
	return ws, nil
}
