package objects

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/attrs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct{ id int64 }

func (w *widget) ObjectID() int64   { return w.id }
func (w *widget) ClassName() string { return "Widget" }

func widgetFinder(_ context.Context, id int64) (attrs.Object, error) {
	if id == 42 {
		return &widget{id: id}, nil
	}
	return nil, nil
}

func TestRegistryFind(t *testing.T) {
	r := NewRegistry().MustRegister("Widget", widgetFinder)

	obj, err := r.Find(context.Background(), "Widget", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), obj.ObjectID())
	assert.Equal(t, []string{"Widget"}, r.Types())
}

func TestRegistryNotFound(t *testing.T) {
	r := NewRegistry().MustRegister("Widget", widgetFinder)
	require.NoError(t, r.Register("Broken", func(context.Context, int64) (attrs.Object, error) {
		return nil, errors.New("db down")
	}))

	_, err := r.Find(context.Background(), "Widget", 7)
	assert.True(t, automate.HasCode(err, automate.ErrCodeObjectNotFound))

	_, err = r.Find(context.Background(), "Broken", 1)
	assert.True(t, automate.HasCode(err, automate.ErrCodeObjectNotFound))

	_, err = r.Find(context.Background(), "Gadget", 1)
	assert.True(t, automate.HasCode(err, automate.ErrCodeUnknownObjectType))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry().MustRegister("Widget", widgetFinder)
	err := r.Register("Widget", widgetFinder)
	require.Error(t, err)
	assert.True(t, automate.HasCode(err, "OBJECT_TYPE_ALREADY_REGISTERED"))
	assert.True(t, automate.HasCode(r.Register("", widgetFinder), "INVALID_OBJECT_FINDER"))
}

func TestRegistryFallbackRef(t *testing.T) {
	r := NewRegistry().SetFallback(RefFinder)

	obj, err := r.Find(context.Background(), "Host", 9)
	require.NoError(t, err)
	assert.Equal(t, attrs.Ref{Type: "Host", ID: 9}, obj)
	assert.Equal(t, "Host::host", attrs.Key(obj, ""))
}
