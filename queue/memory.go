package queue

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Queue.
type Memory struct {
	mu    sync.Mutex
	items map[string]Submission
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]Submission), now: time.Now}
}

var _ Queue = (*Memory)(nil)

func (m *Memory) Submit(_ context.Context, s Submission) (Submission, error) {
	s = Normalize(s, m.now())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.ID] = s
	return s, nil
}

func (m *Memory) Claim(_ context.Context, filter ClaimFilter) ([]Submission, error) {
	filter = filter.normalize()
	m.mu.Lock()
	defer m.mu.Unlock()

	due := make([]Submission, 0)
	for _, s := range m.items {
		if filter.Matches(s) {
			due = append(due, s)
		}
	}
	sortSubmissions(due)
	if len(due) > filter.Limit {
		due = due[:filter.Limit]
	}
	for i, s := range due {
		s = filter.lease(s)
		m.items[s.ID] = s
		due[i] = s
	}
	return due, nil
}

func (m *Memory) Ack(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *Memory) Pending(context.Context) ([]Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Submission, 0, len(m.items))
	for _, s := range m.items {
		out = append(out, s)
	}
	sortSubmissions(out)
	return out, nil
}
