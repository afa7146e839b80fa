package dispatcher

import (
	"context"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/identity"
	"github.com/goliatone/go-automate/queue"
)

// QueueOption overrides a DeliverQueue default.
type QueueOption func(*queue.Submission)

func WithDeliverAt(at time.Time) QueueOption {
	return func(s *queue.Submission) { s.DeliverAt = at }
}

// WithServerGUID pins the submission to one server.
func WithServerGUID(guid string) QueueOption {
	return func(s *queue.Submission) { s.ServerGUID = guid }
}

func WithRole(role string) QueueOption {
	return func(s *queue.Submission) { s.Role = role }
}

// WithZone sets the zone; an empty zone lets any zone claim it.
func WithZone(zone string) QueueOption {
	return func(s *queue.Submission) { s.Zone = zone }
}

func WithTimeout(timeout time.Duration) QueueOption {
	return func(s *queue.Submission) { s.Timeout = timeout }
}

// DeliverQueue submits opts for a later Deliver call on any worker.
func (d *Dispatcher) DeliverQueue(ctx context.Context, opts automate.DeliveryOptions, qopts ...QueueOption) (queue.Submission, error) {
	return enqueue(ctx, d.queue, d.server, d.defaults, d.now(), opts, qopts...)
}

// Enqueue is DeliverQueue without a Dispatcher, for producers that only
// submit work.
func Enqueue(ctx context.Context, q queue.Queue, server *identity.Server, opts automate.DeliveryOptions, qopts ...QueueOption) (queue.Submission, error) {
	return enqueue(ctx, q, server, DefaultQueueDefaults(), time.Now(), opts, qopts...)
}

func enqueue(ctx context.Context, q queue.Queue, server *identity.Server, defaults QueueDefaults, now time.Time, opts automate.DeliveryOptions, qopts ...QueueOption) (queue.Submission, error) {
	if q == nil {
		return queue.Submission{}, automate.Errorf(automate.ErrQueueSubmitFailed, "no queue configured")
	}
	payload, err := automate.EncodeOptions(opts)
	if err != nil {
		return queue.Submission{}, err
	}

	sub := queue.Submission{
		Payload:   payload,
		DeliverAt: now.UTC(),
		Role:      defaults.Role,
		Timeout:   defaults.Timeout,
		CreatedAt: now.UTC(),
	}
	if server.HasActiveRole(identity.AutomateRole) {
		sub.Zone = server.Zone
	}
	for _, opt := range qopts {
		if opt != nil {
			opt(&sub)
		}
	}

	out, err := q.Submit(ctx, sub)
	if err != nil {
		if automate.ErrorCode(err) != "" {
			return queue.Submission{}, err
		}
		return queue.Submission{}, automate.NewError(automate.ErrQueueSubmitFailed, "", err, map[string]any{"object": opts.ObjectName()})
	}
	return out, nil
}
