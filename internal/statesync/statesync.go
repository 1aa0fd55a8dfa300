// Package statesync defines the shared-state contract between the launcher
// and the pipeline backend: a named field store with explicit persistence,
// per-field change subscriptions, and a one-shot duplex message channel.
// The launcher only ever talks to this contract; the transport behind it is
// someone else's problem.
package statesync

import (
	"context"
	"sync"

	"github.com/leightonpayne/colab-phage-assembly/internal/dispatch"
)

// Field names synced with the pipeline backend.
const (
	FieldConfig             = "config"
	FieldParamsSchema       = "params_schema"
	FieldParamsValues       = "params_values"
	FieldRunRequested       = "run_requested"
	FieldTerminateRequested = "terminate_requested"
	FieldActionRequested    = "action_requested"
	FieldStatusState        = "status_state"
	FieldStatusMessage      = "status_message"
	FieldLogs               = "logs"
	FieldResultFileName     = "result_file_name"
	FieldResultFileData     = "result_file_data"
)

// Facade is the shared state object the view binds to. Set stages a local
// write; Persist pushes all staged writes to the backend in one batch.
type Facade interface {
	// Get returns the last known value of a field, or nil.
	Get(field string) any
	// Set stages a local field write. It takes effect remotely on Persist.
	Set(field string, value any)
	// Persist flushes staged writes to the backend.
	Persist(ctx context.Context) error
	// OnChange subscribes to remote changes of one field. Close the returned
	// subscription to stop receiving them; subscribing twice delivers twice,
	// so callers keep their handles instead of re-registering.
	OnChange(field string, fn func(value any)) *Subscription
	// Send delivers a one-shot message to the backend.
	Send(ctx context.Context, msg dispatch.Message) error
	// OnMessage subscribes to inbound one-shot messages.
	OnMessage(fn func(msg dispatch.Message)) *Subscription
}

// Subscription is a handle to a change or message registration. Close is
// idempotent.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps a cancel function for facade implementations.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Close removes the registration.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}
