// Package engine is the boundary to the external workflow engine that
// evaluates an automation object URI into a workspace.
package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/goliatone/go-automate/attrs"
	"github.com/goliatone/go-automate/identity"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultRetry = "retry"

	RootResult              = "ae_result"
	RootMessage             = "ae_message"
	RootRetryInterval       = "ae_retry_interval"
	RootRetryServerAffinity = "ae_retry_server_affinity"
	RootState               = "ae_state"
	RootFSMStarted          = "ae_fsm_started"
	RootStateStarted        = "ae_state_started"
	RootStateRetries        = "ae_state_retries"
)

// Engine instantiates a workspace for an automation URI. A nil workspace
// with a nil error means the engine produced nothing.
type Engine interface {
	Instantiate(ctx context.Context, uri string, user *identity.User, readonly bool) (*Workspace, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, uri string, user *identity.User, readonly bool) (*Workspace, error)

func (f EngineFunc) Instantiate(ctx context.Context, uri string, user *identity.User, readonly bool) (*Workspace, error) {
	return f(ctx, uri, user, readonly)
}

// Workspace is the result of one engine evaluation.
type Workspace struct {
	Root             map[string]any `json:"root"`
	PersistState     map[string]any `json:"persist_state,omitempty"`
	CurrentStateInfo map[string]any `json:"current_state_info,omitempty"`
	// Stats holds engine-reported "*_count" and "*_time" figures.
	Stats map[string]float64 `json:"stats,omitempty"`
}

// Empty reports whether the engine produced no root object.
func (w *Workspace) Empty() bool {
	return w == nil || w.Root == nil
}

func (w *Workspace) rootString(key string) string {
	if w.Empty() {
		return ""
	}
	return attrs.Stringify(w.Root[key])
}

func (w *Workspace) rootValue(key string) (string, bool) {
	if w.Empty() {
		return "", false
	}
	v, ok := w.Root[key]
	if !ok || v == nil {
		return "", false
	}
	return attrs.Stringify(v), true
}

// ResultCode is the engine's terminal signal; absent means ok.
func (w *Workspace) ResultCode() string {
	if v, ok := w.rootValue(RootResult); ok {
		return v
	}
	return ResultOK
}

// IsRetry reports a retry classification, case-insensitively.
func (w *Workspace) IsRetry() bool { return strings.EqualFold(w.ResultCode(), ResultRetry) }

// IsError reports an error classification, case-insensitively.
func (w *Workspace) IsError() bool { return strings.EqualFold(w.ResultCode(), ResultError) }

func (w *Workspace) Message() string       { return w.rootString(RootMessage) }
func (w *Workspace) RetryInterval() string { return w.rootString(RootRetryInterval) }
func (w *Workspace) FSMStarted() string    { return w.rootString(RootFSMStarted) }
func (w *Workspace) StateStarted() string  { return w.rootString(RootStateStarted) }
func (w *Workspace) StateRetries() string  { return w.rootString(RootStateRetries) }

// State returns the engine's current state and whether it reported one.
func (w *Workspace) State() (string, bool) {
	return w.rootValue(RootState)
}

// RetryServerAffinity reports whether a retry must stay on this server.
// Any present value other than false or an empty string counts as set.
func (w *Workspace) RetryServerAffinity() bool {
	if w.Empty() {
		return false
	}
	switch v := w.Root[RootRetryServerAffinity].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		if strings.TrimSpace(v) == "" {
			return false
		}
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		return true
	default:
		return true
	}
}

// Values copies the root object as attribute values.
func (w *Workspace) Values() attrs.Values {
	if w.Empty() {
		return attrs.Values{}
	}
	out := make(attrs.Values, len(w.Root))
	for k, v := range w.Root {
		out[k] = v
	}
	return out
}
