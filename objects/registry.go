// Package objects resolves stored type tokens back into domain objects
// through an explicit registry of finder functions.
package objects

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/attrs"
	"github.com/goliatone/go-errors"
)

// FinderFunc loads one object of a registered type.
type FinderFunc func(ctx context.Context, id int64) (attrs.Object, error)

// Store finds domain objects by type token and id.
type Store interface {
	Find(ctx context.Context, objectType string, id int64) (attrs.Object, error)
}

type Registry struct {
	mu       sync.RWMutex
	finders  map[string]FinderFunc
	fallback FinderFunc
}

func NewRegistry() *Registry {
	return &Registry{finders: make(map[string]FinderFunc)}
}

// Register binds a type token such as "Vm" or "MiqProvisionRequest".
func (r *Registry) Register(objectType string, finder FinderFunc) error {
	token := strings.TrimSpace(objectType)
	if token == "" || finder == nil {
		return errors.New("object type and finder are required", errors.CategoryBadInput).
			WithTextCode("INVALID_OBJECT_FINDER")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.finders[token]; exists {
		return errors.New("object type already registered", errors.CategoryConflict).
			WithTextCode("OBJECT_TYPE_ALREADY_REGISTERED").
			WithMetadata(map[string]any{"object_type": token})
	}
	r.finders[token] = finder
	return nil
}

// MustRegister panics on registration errors; use during startup.
func (r *Registry) MustRegister(objectType string, finder FinderFunc) *Registry {
	if err := r.Register(objectType, finder); err != nil {
		panic(err)
	}
	return r
}

// SetFallback handles any type without a dedicated finder. The finder
// receives the requested type through FallbackType on the context.
func (r *Registry) SetFallback(finder FinderFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = finder
	return r
}

// Types lists registered type tokens.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.finders))
	for k := range r.finders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Find(ctx context.Context, objectType string, id int64) (attrs.Object, error) {
	r.mu.RLock()
	finder, ok := r.finders[objectType]
	if !ok {
		finder = r.fallback
	}
	r.mu.RUnlock()

	meta := map[string]any{"object_type": objectType, "object_id": id}
	if finder == nil {
		return nil, automate.NewError(automate.ErrUnknownObjectType, "unknown object type "+objectType, nil, meta)
	}

	obj, err := finder(withType(ctx, objectType), id)
	if err != nil {
		if automate.ErrorCode(err) != "" {
			return nil, err
		}
		return nil, automate.NewError(automate.ErrObjectNotFound, "", err, meta)
	}
	if attrs.IsNil(obj) {
		return nil, automate.NewError(automate.ErrObjectNotFound, "", nil, meta)
	}
	return obj, nil
}

type typeKey struct{}

func withType(ctx context.Context, objectType string) context.Context {
	return context.WithValue(ctx, typeKey{}, objectType)
}

// FallbackType returns the type token a finder was invoked for.
func FallbackType(ctx context.Context) string {
	v, _ := ctx.Value(typeKey{}).(string)
	return v
}

// RefFinder resolves any type to a bare attrs.Ref, for callers that only
// need the reference encoded.
func RefFinder(ctx context.Context, id int64) (attrs.Object, error) {
	return attrs.Ref{Type: FallbackType(ctx), ID: id}, nil
}
