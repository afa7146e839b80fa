package cron

import "sync"

// Status reports where a scheduled job is in its lifecycle.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusIdle      Status = "idle"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Handle controls a scheduled job.
type Handle interface {
	Cancel()
	Status() Status
	Err() error
	Done() <-chan struct{}
	Name() string
}

type handle struct {
	scheduler *Scheduler
	id        int64
	entryID   int
	name      string
	done      chan struct{}

	mu     sync.RWMutex
	status Status
	err    error
	closed bool
	once   sync.Once
}

func (h *handle) Cancel() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.scheduler != nil {
			h.scheduler.remove(h.id)
		}
		h.finish(StatusCanceled, nil)
	})
}

func (h *handle) Status() Status {
	if h == nil {
		return StatusStopped
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *handle) Err() error {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

func (h *handle) Done() <-chan struct{} {
	if h == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return h.done
}

func (h *handle) Name() string {
	if h == nil {
		return ""
	}
	return h.name
}

func (h *handle) finished() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *handle) set(status Status, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.status = status
	h.err = err
	return true
}

// finish records a terminal status and closes Done. Later calls are no-ops.
func (h *handle) finish(status Status, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.status = status
	h.err = err
	h.closed = true
	close(h.done)
}
