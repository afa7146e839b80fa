// Package task tracks the progress of a delivery on behalf of whoever
// opened it.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-automate"
)

type State string

const (
	StateQueued   State = "Queued"
	StateActive   State = "Active"
	StateFinished State = "Finished"
)

type Status string

const (
	StatusOk    Status = "Ok"
	StatusError Status = "Error"
)

const (
	DefaultMessage                 = "Initialized"
	MessageCompletedSuccessfully   = "Task completed successfully"
	MessageCompletedUnsuccessfully = "Task did not complete successfully"
)

// Tracker is one task's progress record.
type Tracker interface {
	State() State
	Message() string
	StateActive(ctx context.Context) error
	StateQueued(ctx context.Context) error
	StateFinished(ctx context.Context) error
	UpdateMessage(ctx context.Context, msg string) error
	Error(ctx context.Context, msg string) error
}

// Store finds trackers by id.
type Store interface {
	FindTask(ctx context.Context, id int64) (Tracker, error)
}

// Snapshot is a point-in-time view of a task.
type Snapshot struct {
	ID        int64
	State     State
	Status    Status
	Message   string
	UpdatedAt time.Time
	History   []State
}

type memoryTask struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

func (t *memoryTask) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.State
}

func (t *memoryTask) Message() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Message
}

func (t *memoryTask) transition(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.State = state
	t.snap.History = append(t.snap.History, state)
	t.snap.UpdatedAt = t.now()
}

func (t *memoryTask) StateActive(context.Context) error   { t.transition(StateActive); return nil }
func (t *memoryTask) StateQueued(context.Context) error   { t.transition(StateQueued); return nil }
func (t *memoryTask) StateFinished(context.Context) error { t.transition(StateFinished); return nil }

func (t *memoryTask) UpdateMessage(_ context.Context, msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Message = msg
	t.snap.UpdatedAt = t.now()
	return nil
}

func (t *memoryTask) Error(_ context.Context, msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Message = msg
	t.snap.Status = StatusError
	t.snap.State = StateFinished
	t.snap.History = append(t.snap.History, StateFinished)
	t.snap.UpdatedAt = t.now()
	return nil
}

func (t *memoryTask) snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cp := t.snap
	cp.History = append([]State(nil), t.snap.History...)
	return cp
}

// MemoryStore keeps trackers in process.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[int64]*memoryTask
	next  int64
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[int64]*memoryTask), now: time.Now}
}

// Create opens a queued task with the default message.
func (s *MemoryStore) Create() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.tasks[id] = &memoryTask{
		snap: Snapshot{ID: id, State: StateQueued, Status: StatusOk, Message: DefaultMessage, UpdatedAt: s.now()},
		now:  s.now,
	}
	return id
}

func (s *MemoryStore) FindTask(_ context.Context, id int64) (Tracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, automate.NewError(automate.ErrObjectNotFound, "task not found", nil, map[string]any{"task_id": id})
	}
	return t, nil
}

// Snapshot returns a copy of the task state.
func (s *MemoryStore) Snapshot(id int64) (Snapshot, bool) {
	s.mu.RLock()
	t, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}
