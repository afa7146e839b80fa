// Package queue is the durable submission queue deliveries are pulled from.
// Delivery is at least once: a claimed submission that is not acked before
// its lease ends becomes claimable again.
package queue

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultClaimLimit = 10
	DefaultLease      = 5 * time.Minute
)

// Submission is one queued delivery attempt.
type Submission struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
	// DeliverAt is the earliest time a worker may claim the submission.
	DeliverAt time.Time `json:"deliver_at"`
	// ServerGUID pins the submission to one worker server when set.
	ServerGUID string        `json:"server_guid,omitempty"`
	Role       string        `json:"role,omitempty"`
	Zone       string        `json:"zone,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	Attempts   int           `json:"attempts"`
	LeaseOwner string        `json:"lease_owner,omitempty"`
	LeaseUntil time.Time     `json:"lease_until,omitempty"`
}

// ClaimFilter describes the worker asking for work.
type ClaimFilter struct {
	WorkerID   string
	ServerGUID string
	Zone       string
	Roles      []string
	Limit      int
	Lease      time.Duration
	Now        time.Time
}

// Queue is implemented by every backend.
type Queue interface {
	Submit(ctx context.Context, s Submission) (Submission, error)
	Claim(ctx context.Context, filter ClaimFilter) ([]Submission, error)
	Ack(ctx context.Context, id string) error
	Pending(ctx context.Context) ([]Submission, error)
}

// Normalize assigns an id and timestamps.
func Normalize(s Submission, now time.Time) Submission {
	s.ID = strings.TrimSpace(s.ID)
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.DeliverAt.IsZero() {
		s.DeliverAt = s.CreatedAt
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.DeliverAt = s.DeliverAt.UTC()
	s.Payload = append([]byte{}, s.Payload...)
	return s
}

func (f ClaimFilter) normalize() ClaimFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultClaimLimit
	}
	if f.Lease <= 0 {
		f.Lease = DefaultLease
	}
	if f.Now.IsZero() {
		f.Now = time.Now()
	}
	f.Now = f.Now.UTC()
	if strings.TrimSpace(f.WorkerID) == "" {
		f.WorkerID = f.ServerGUID
	}
	return f
}

// Matches reports whether the worker described by f may run s at f.Now.
func (f ClaimFilter) Matches(s Submission) bool {
	if s.DeliverAt.After(f.Now) {
		return false
	}
	if !s.LeaseUntil.IsZero() && s.LeaseUntil.After(f.Now) {
		return false
	}
	if s.ServerGUID != "" && s.ServerGUID != f.ServerGUID {
		return false
	}
	if s.Zone != "" && s.Zone != f.Zone {
		return false
	}
	if s.Role == "" {
		return true
	}
	for _, r := range f.Roles {
		if strings.EqualFold(r, s.Role) {
			return true
		}
	}
	return false
}

func (f ClaimFilter) lease(s Submission) Submission {
	s.Attempts++
	s.LeaseOwner = f.WorkerID
	s.LeaseUntil = f.Now.Add(f.Lease)
	return s
}

func sortSubmissions(subs []Submission) {
	sort.SliceStable(subs, func(i, j int) bool {
		if !subs[i].DeliverAt.Equal(subs[j].DeliverAt) {
			return subs[i].DeliverAt.Before(subs[j].DeliverAt)
		}
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].ID < subs[j].ID
	})
}
