package dispatcher

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/attrs"
	"github.com/goliatone/go-automate/descriptor"
	"github.com/goliatone/go-automate/engine"
	"github.com/goliatone/go-automate/identity"
	"github.com/goliatone/go-automate/objects"
	"github.com/goliatone/go-automate/queue"
	"github.com/goliatone/go-automate/task"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type widget struct {
	id int64

	mu        sync.Mutex
	before    int
	marked    int
	afterCode []string
}

func (w *widget) ObjectID() int64   { return w.id }
func (w *widget) ClassName() string { return "Widget" }

func (w *widget) BeforeDispatch(context.Context, automate.DeliveryOptions) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.before++
	return nil
}

func (w *widget) MarkExecutionAffinity(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.marked++
	return nil
}

func (w *widget) AfterDispatch(_ context.Context, code string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.afterCode = append(w.afterCode, code)
	return nil
}

type scriptedResolver struct {
	mu    sync.Mutex
	calls []descriptor.Descriptor
	users []*identity.User
	ws    *engine.Workspace
	err   error
}

func (r *scriptedResolver) Resolve(_ context.Context, d descriptor.Descriptor, user *identity.User, _ bool) (*engine.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, d)
	r.users = append(r.users, user)
	return r.ws, r.err
}

func (r *scriptedResolver) last(t *testing.T) descriptor.Descriptor {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.calls)
	return r.calls[len(r.calls)-1]
}

type failingQueue struct{ queue.Queue }

func (failingQueue) Submit(context.Context, queue.Submission) (queue.Submission, error) {
	return queue.Submission{}, context.DeadlineExceeded
}

type harness struct {
	dispatcher *Dispatcher
	resolver   *scriptedResolver
	queue      *queue.Memory
	tasks      *task.MemoryStore
	widget     *widget
	server     *identity.Server
	log        *bytes.Buffer
}

func newHarness(t *testing.T, ws *engine.Workspace, extra ...Option) *harness {
	t.Helper()
	h := &harness{
		resolver: &scriptedResolver{ws: ws},
		queue:    queue.NewMemory(),
		tasks:    task.NewMemoryStore(),
		widget:   &widget{id: 42},
		server:   &identity.Server{ID: 1, GUID: "guid-1", Zone: "default", Roles: []string{identity.AutomateRole}},
		log:      &bytes.Buffer{},
	}

	users := identity.NewMemoryStore()
	users.AddUser(identity.User{ID: 1, UserID: "admin", CurrentGroup: &identity.Group{ID: 2, Description: "Super"}})

	registry := objects.NewRegistry().MustRegister("Widget", func(_ context.Context, id int64) (attrs.Object, error) {
		if id == h.widget.id {
			return h.widget, nil
		}
		return nil, nil
	})

	opts := []Option{
		WithUsers(users),
		WithObjects(registry),
		WithTasks(h.tasks),
		WithServer(h.server),
		WithLogger(automate.NewFmtLogger(h.log)),
		WithClock(func() time.Time { return fixedNow }),
	}
	h.dispatcher = New(h.resolver, h.queue, append(opts, extra...)...)
	return h
}

func widgetOptions(taskID int64) automate.DeliveryOptions {
	return automate.DeliveryOptions{
		UserID:       1,
		ObjectType:   "Widget",
		ObjectID:     42,
		InstanceName: automate.DefaultInstanceName,
		TaskID:       taskID,
	}
}

func rootWith(kv ...any) map[string]any {
	out := map[string]any{}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}
