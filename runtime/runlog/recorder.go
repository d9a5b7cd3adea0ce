package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"goa.design/maestro/runtime/events"
)

// Recorder adapts a Store into an events bus subscriber: every published
// event becomes one appended entry. The recorder is a critical
// subscriber, so append failures surface to the publisher and halt the
// run rather than losing canonical history.
type Recorder struct {
	store Store
}

// NewRecorder creates a recorder over the store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// HandleEvent implements events.Subscriber.
func (r *Recorder) HandleEvent(ctx context.Context, evt events.Event) error {
	payload, err := json.Marshal(payloadOf(evt))
	if err != nil {
		return fmt.Errorf("runlog: encode payload: %w", err)
	}
	e := &Entry{
		RunID:              evt.RunID(),
		SessionID:          evt.SessionID(),
		Type:               evt.Type(),
		Kind:               evt.Kind(),
		Name:               evt.Name(),
		InvocationID:       evt.InvocationID(),
		ParentInvocationID: evt.ParentInvocationID(),
		DurationMS:         durationOf(evt),
		Payload:            payload,
		Timestamp:          time.UnixMilli(evt.Timestamp()).UTC(),
	}
	if err := r.store.Append(ctx, e); err != nil {
		return fmt.Errorf("runlog: append %s %s: %w", e.Kind, e.Type, err)
	}
	return nil
}

// payloadOf extracts the type-specific fields of an event.
func payloadOf(evt events.Event) map[string]any {
	p := make(map[string]any)
	switch e := evt.(type) {
	case *events.PlanStarted:
		p["stepCount"] = e.StepCount
	case *events.PlanFailed:
		p["reason"] = e.Reason
	case *events.ActionRequested:
		p["stepId"] = e.StepID
		p["attempt"] = e.Attempt
	case *events.ActionStarted:
		p["stepId"] = e.StepID
		p["attempt"] = e.Attempt
	case *events.ActionSucceeded:
		p["stepId"] = e.StepID
		p["attempt"] = e.Attempt
	case *events.ActionFailed:
		p["stepId"] = e.StepID
		p["attempt"] = e.Attempt
		p["reason"] = e.Reason
		p["retrying"] = e.Retrying
	}
	if attrs := evt.Attributes(); len(attrs) > 0 {
		p["attributes"] = attrs
	}
	return p
}

// durationOf returns the duration of terminal events.
func durationOf(evt events.Event) int64 {
	switch e := evt.(type) {
	case *events.PlanSucceeded:
		return e.DurationMS
	case *events.PlanFailed:
		return e.DurationMS
	case *events.ActionSucceeded:
		return e.DurationMS
	case *events.ActionFailed:
		return e.DurationMS
	}
	return 0
}
