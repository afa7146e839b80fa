package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/attrs"
	"github.com/goliatone/go-automate/descriptor"
	"github.com/goliatone/go-automate/engine"
	"github.com/goliatone/go-automate/identity"
	"github.com/goliatone/go-automate/metrics"
	"github.com/goliatone/go-automate/objects"
	"github.com/goliatone/go-automate/queue"
	"github.com/goliatone/go-automate/task"
)

const userKey = "User::user"

// Result is what a delivery hands back to its caller.
type Result struct {
	Workspace *engine.Workspace
	// Value is the workspace, or the success token when the caller asked
	// for result_format "ignore".
	Value    any
	Code     string
	Requeued bool
	// Submission is set when the attempt was requeued.
	Submission *queue.Submission
}

// attempt is the bookkeeping the deferred finalize step reads.
type attempt struct {
	opts    automate.DeliveryOptions
	state   string
	code    string
	outcome string
	object  attrs.Object
	tracker task.Tracker
	started time.Time
	logger  automate.Logger
}

// Deliver runs one delivery attempt. Acting-user errors are returned; every
// failure after that is logged, marks the task failed and yields a nil
// result. A retry result requeues the request and still returns the
// workspace.
func (d *Dispatcher) Deliver(ctx context.Context, in automate.DeliveryOptions) (*Result, error) {
	opts := in.Clone().Normalize()
	logger := d.logger.WithContext(ctx)

	user, err := identity.ActingUser(ctx, d.users, opts.UserID, opts.GroupID, logger)
	if err != nil {
		return nil, err
	}

	a := &attempt{
		opts:    opts,
		state:   opts.State,
		code:    engine.ResultError,
		outcome: metrics.OutcomeFailed,
		tracker: d.findTask(ctx, opts.TaskID, logger),
		started: d.now(),
		logger:  logger,
	}
	defer d.finalize(ctx, a)

	d.taskCall(a, "state_active", func(t task.Tracker) error { return t.StateActive(ctx) })
	logger.Info("Delivering %s for object [%s] with state [%s] to Automate", automate.Inspect(opts.Attrs), opts.ObjectName(), a.state)

	values := automateAttrs(opts)

	if opts.ObjectType != "" {
		if d.objects == nil {
			return d.fail(ctx, a, values, automate.Errorf(automate.ErrUnknownObjectType, "no object store configured for %s", opts.ObjectType))
		}
		obj, err := d.objects.Find(ctx, opts.ObjectType, opts.ObjectID)
		if err != nil {
			return d.fail(ctx, a, values, err)
		}
		a.object = obj
		values[attrs.Key(obj, "")] = strconv.FormatInt(opts.ObjectID, 10)

		if h, ok := obj.(objects.BeforeDispatcher); ok {
			if err := h.BeforeDispatch(ctx, opts); err != nil {
				return d.fail(ctx, a, values, err)
			}
		}
		if h, ok := obj.(objects.AffinityMarker); ok {
			if err := h.MarkExecutionAffinity(ctx); err != nil {
				return d.fail(ctx, a, values, err)
			}
		}
	}

	desc, err := descriptor.Build(opts.InstanceName, values, descriptor.Options{
		Object:    a.object,
		Class:     opts.ClassName,
		Namespace: opts.Namespace,
		FQClass:   opts.FQClassName,
		Message:   opts.Message,
		Context:   d.contextObjects(user),
	})
	if err != nil {
		return d.fail(ctx, a, values, err)
	}

	if d.resolver == nil {
		return d.fail(ctx, a, values, automate.Errorf(automate.ErrEngineFailure, "no resolver configured"))
	}
	ws, err := d.resolver.Resolve(ctx, desc, user, false)
	if err != nil {
		return d.fail(ctx, a, values, err)
	}

	if ws.Empty() {
		a.outcome = metrics.OutcomeEmpty
		logger.Error("Error delivering %s for object [%s] with state [%s] to Automate: Empty Workspace",
			automate.Inspect(opts.Attrs), opts.ObjectName(), a.state)
		return nil, nil
	}

	a.code = ws.ResultCode()

	if ws.IsRetry() {
		return d.requeue(ctx, a, ws)
	}

	if ws.IsError() {
		a.outcome = metrics.OutcomeError
		d.taskCall(a, "update_message", func(t task.Tracker) error {
			return t.UpdateMessage(ctx, task.MessageCompletedUnsuccessfully)
		})
		logger.Error("Error delivering %s for object [%s] with state [%s] to Automate: %s",
			automate.Inspect(opts.Attrs), opts.ObjectName(), a.state, ws.Message())
	} else {
		a.outcome = metrics.OutcomeOK
	}

	if strings.EqualFold(opts.InstanceName, automate.EventInstanceName) {
		d.emit(ctx, a, values)
	}

	return returnResult(ws, opts), nil
}

// automateAttrs seeds the attribute map with the carried-forward state.
func automateAttrs(opts automate.DeliveryOptions) attrs.Values {
	values := attrs.Values(opts.Attrs).Clone()
	if opts.UserID != 0 {
		values[userKey] = strconv.FormatInt(opts.UserID, 10)
	}
	set := func(key, value string) {
		if value != "" {
			values[key] = value
		}
	}
	set(engine.RootState, opts.State)
	set(engine.RootFSMStarted, opts.FSMStarted)
	set(engine.RootStateStarted, opts.StateStarted)
	set(engine.RootStateRetries, opts.StateRetries)
	set("ae_state_data", opts.StateData)
	set("ae_state_previous", opts.StatePrevious)
	return values
}

func (d *Dispatcher) contextObjects(user *identity.User) []attrs.Object {
	out := make([]attrs.Object, 0, 2)
	if d.server != nil {
		out = append(out, d.server)
	}
	if user != nil {
		out = append(out, user)
	}
	return out
}

func (d *Dispatcher) fail(ctx context.Context, a *attempt, values attrs.Values, err error) (*Result, error) {
	a.outcome = metrics.OutcomeFailed
	a.logger.Error("Error delivering %s for object [%s] with state [%s] to Automate: %s",
		automate.Inspect(values), a.opts.ObjectName(), a.state, errorMessage(err))
	d.taskCall(a, "error", func(t task.Tracker) error {
		return t.Error(ctx, task.MessageCompletedUnsuccessfully)
	})
	return nil, nil
}

func (d *Dispatcher) emit(ctx context.Context, a *attempt, values attrs.Values) {
	for _, p := range d.processors() {
		if err := p.ProcessResult(ctx, a.code, values.Clone()); err != nil {
			a.logger.Warn("event processor failed for [%s]: %v", a.opts.ObjectName(), err)
		}
	}
}

// finalize always runs: the post-dispatch hook gets the lower-cased result
// code and a still-active task is finished.
func (d *Dispatcher) finalize(ctx context.Context, a *attempt) {
	if h, ok := a.object.(objects.AfterDispatcher); ok && !attrs.IsNil(a.object) {
		if err := h.AfterDispatch(ctx, strings.ToLower(a.code)); err != nil {
			a.logger.Warn("after dispatch hook failed for [%s]: %v", a.opts.ObjectName(), err)
		}
	}
	if a.tracker != nil && a.tracker.State() == task.StateActive {
		if a.tracker.Message() == task.DefaultMessage {
			d.taskCall(a, "update_message", func(t task.Tracker) error {
				return t.UpdateMessage(ctx, task.MessageCompletedSuccessfully)
			})
		}
		d.taskCall(a, "state_finished", func(t task.Tracker) error { return t.StateFinished(ctx) })
	}
	d.metrics.DeliveryFinished(a.outcome, d.now().Sub(a.started))
}

func (d *Dispatcher) findTask(ctx context.Context, id int64, logger automate.Logger) task.Tracker {
	if id == 0 || d.tasks == nil {
		return nil
	}
	t, err := d.tasks.FindTask(ctx, id)
	if err != nil {
		logger.Warn("task [%d] lookup failed: %v", id, err)
		return nil
	}
	return t
}

// taskCall runs a best-effort tracker update.
func (d *Dispatcher) taskCall(a *attempt, op string, fn func(task.Tracker) error) {
	if a.tracker == nil {
		return
	}
	if err := fn(a.tracker); err != nil {
		a.logger.Warn("task %s failed: %v", op, err)
	}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	if code := automate.ErrorCode(err); code != "" {
		return fmt.Sprintf("%s (%s)", err.Error(), code)
	}
	return err.Error()
}
