package dispatcher

import (
	"context"
	"strings"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/attrs"
	"github.com/goliatone/go-automate/engine"
	"github.com/goliatone/go-automate/metrics"
	"github.com/goliatone/go-automate/task"
	"gopkg.in/yaml.v3"
)

// PlanRequeue copies the engine's progress into a copy of opts. Snapshot
// fields are dropped and repopulated only from non-empty engine maps.
// Attributes are stored in their flat encoded form so object references
// survive the payload round trip.
func PlanRequeue(opts automate.DeliveryOptions, ws *engine.Workspace) (automate.DeliveryOptions, error) {
	next := opts.Clone()
	next.StateData = ""
	next.StatePrevious = ""

	if len(next.Attrs) > 0 {
		flat, err := attrs.EncodeMap(next.Attrs)
		if err != nil {
			return opts, err
		}
		next.Attrs = make(map[string]any, len(flat))
		for k, v := range flat {
			next.Attrs[k] = v
		}
	}

	if state, ok := ws.State(); ok {
		next.State = state
	}
	next.FSMStarted = ws.FSMStarted()
	next.StateStarted = ws.StateStarted()
	next.StateRetries = ws.StateRetries()

	if len(ws.PersistState) > 0 {
		data, err := dumpSnapshot(ws.PersistState)
		if err != nil {
			return opts, err
		}
		next.StateData = data
	}
	if len(ws.CurrentStateInfo) > 0 {
		data, err := dumpSnapshot(ws.CurrentStateInfo)
		if err != nil {
			return opts, err
		}
		next.StatePrevious = data
	}
	return next, nil
}

func dumpSnapshot(v map[string]any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", automate.NewError(automate.ErrInvalidPayload, "serialize state snapshot", err, nil)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// LoadSnapshot parses a snapshot written by PlanRequeue.
func LoadSnapshot(data string) (map[string]any, error) {
	out := map[string]any{}
	if strings.TrimSpace(data) == "" {
		return out, nil
	}
	if err := yaml.Unmarshal([]byte(data), &out); err != nil {
		return nil, automate.NewError(automate.ErrInvalidPayload, "parse state snapshot", err, nil)
	}
	return out, nil
}

func (d *Dispatcher) requeue(ctx context.Context, a *attempt, ws *engine.Workspace) (*Result, error) {
	interval := ParseRetryInterval(ws.RetryInterval())
	deliverAt := d.now().UTC().Add(interval)

	next, err := PlanRequeue(a.opts, ws)
	if err != nil {
		return d.fail(ctx, a, automateAttrs(a.opts), err)
	}

	a.logger.Info("Requeuing %s for object [%s] with state [%s] to Automate for delivery in [%d] seconds",
		automate.Inspect(next.Attrs), next.ObjectName(), next.State, int64(interval.Seconds()))

	qopts := []QueueOption{WithDeliverAt(deliverAt)}
	if ws.RetryServerAffinity() && d.server != nil {
		qopts = append(qopts, WithServerGUID(d.server.GUID))
	}

	d.taskCall(a, "state_queued", func(t task.Tracker) error { return t.StateQueued(ctx) })

	sub, err := d.DeliverQueue(ctx, next, qopts...)
	if err != nil {
		a.outcome = metrics.OutcomeFailed
		a.logger.Error("Requeue of [%s] failed: %v", next.ObjectName(), err)
		d.taskCall(a, "error", func(t task.Tracker) error {
			return t.Error(ctx, task.MessageCompletedUnsuccessfully)
		})
		return nil, err
	}

	a.outcome = metrics.OutcomeRetry
	d.metrics.Requeued(interval)

	res := returnResult(ws, a.opts)
	res.Requeued = true
	res.Submission = &sub
	return res, nil
}
