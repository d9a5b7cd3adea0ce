// Package events defines the lifecycle events emitted while plans execute and
// the bus that fans them out to subscribers. Every action invocation produces
// at least a requested, a started and a terminal (succeeded or failed) event;
// plan runs bracket those with plan-level events. Subscribers receive events
// synchronously and may halt execution by returning an error.
package events

import "time"

type (
	// Type identifies the lifecycle phase an event reports.
	Type string

	// Kind identifies what the event describes: a whole plan run or a single
	// action invocation.
	Kind string

	// Event is implemented by all lifecycle events. Concrete types carry
	// phase-specific payloads; subscribers type-switch to access them:
	//
	//	func (s *mySub) HandleEvent(ctx context.Context, evt events.Event) error {
	//	    switch e := evt.(type) {
	//	    case *ActionFailed:
	//	        log.Printf("action %s failed after %dms", e.Name(), e.DurationMS)
	//	    }
	//	    return nil
	//	}
	Event interface {
		// Type returns the lifecycle phase constant.
		Type() Type
		// Kind reports whether the event describes a plan run or an action.
		Kind() Kind
		// Name returns the action ID for action events and the plan run ID
		// for plan events.
		Name() string
		// InvocationID uniquely identifies this invocation attempt. Action
		// retries produce fresh invocation IDs.
		InvocationID() string
		// ParentInvocationID links an action event to the plan invocation
		// that spawned it. Empty for top-level plan events.
		ParentInvocationID() string
		// RunID identifies the plan run all events of one execution share.
		RunID() string
		// SessionID identifies the conversational session, when known.
		SessionID() string
		// Timestamp returns the event creation time in Unix milliseconds.
		Timestamp() int64
		// Attributes returns optional string-keyed metadata.
		Attributes() map[string]string
	}

	baseEvent struct {
		kind     Kind
		name     string
		invID    string
		parentID string
		runID    string
		// sessionID associates the event with the session that owns the run.
		sessionID string
		timestamp int64
		attrs     map[string]string
	}

	// PlanStarted fires once before the first action of a run is invoked.
	PlanStarted struct {
		baseEvent
		// StepCount is the number of scheduled actions in the run.
		StepCount int
	}

	// PlanSucceeded fires after every action of the run completed.
	PlanSucceeded struct {
		baseEvent
		// DurationMS is the wall-clock run duration in milliseconds.
		DurationMS int64
	}

	// PlanFailed fires when the run aborts on a terminal action failure or
	// cancellation.
	PlanFailed struct {
		baseEvent
		// DurationMS is the wall-clock run duration in milliseconds.
		DurationMS int64
		// Reason is a short failure classification (error code when known).
		Reason string
	}

	// ActionRequested fires before each invocation attempt, including
	// retries. A retried action therefore produces several requested events.
	ActionRequested struct {
		baseEvent
		// StepID identifies the plan step being invoked.
		StepID string
		// Attempt is the 1-based attempt number.
		Attempt int
	}

	// ActionStarted fires when the action handler begins executing.
	ActionStarted struct {
		baseEvent
		// StepID identifies the plan step being invoked.
		StepID string
		// Attempt is the 1-based attempt number.
		Attempt int
	}

	// ActionSucceeded fires when an invocation attempt returns without error.
	ActionSucceeded struct {
		baseEvent
		// StepID identifies the plan step that completed.
		StepID string
		// Attempt is the attempt that succeeded.
		Attempt int
		// DurationMS is the attempt duration in milliseconds.
		DurationMS int64
	}

	// ActionFailed fires when an invocation attempt returns an error. When
	// the executor will retry, Retrying is true and a new ActionRequested
	// follows.
	ActionFailed struct {
		baseEvent
		// StepID identifies the plan step that failed.
		StepID string
		// Attempt is the attempt that failed.
		Attempt int
		// DurationMS is the attempt duration in milliseconds.
		DurationMS int64
		// Reason is a short failure classification (error code when known).
		Reason string
		// Retrying reports whether another attempt follows.
		Retrying bool
	}
)

const (
	// TypeRequested marks the scheduling of an invocation attempt.
	TypeRequested Type = "requested"
	// TypeStarted marks the start of handler execution.
	TypeStarted Type = "started"
	// TypeSucceeded marks successful completion.
	TypeSucceeded Type = "succeeded"
	// TypeFailed marks a failed attempt or run.
	TypeFailed Type = "failed"
)

const (
	// KindPlan marks events describing a whole plan run.
	KindPlan Kind = "plan"
	// KindAction marks events describing a single action invocation.
	KindAction Kind = "action"
	// KindTool marks events forwarded from nested tool invocations.
	KindTool Kind = "tool"
)

func newBaseEvent(kind Kind, name, invID, parentID, runID, sessionID string) baseEvent {
	return baseEvent{
		kind:      kind,
		name:      name,
		invID:     invID,
		parentID:  parentID,
		runID:     runID,
		sessionID: sessionID,
		timestamp: time.Now().UnixMilli(),
	}
}

// Kind reports whether the event describes a plan run or an action.
func (e baseEvent) Kind() Kind { return e.kind }

// Name returns the action ID for action events, the run ID for plan events.
func (e baseEvent) Name() string { return e.name }

// InvocationID uniquely identifies this invocation attempt.
func (e baseEvent) InvocationID() string { return e.invID }

// ParentInvocationID links action events to their plan invocation.
func (e baseEvent) ParentInvocationID() string { return e.parentID }

// RunID identifies the plan run.
func (e baseEvent) RunID() string { return e.runID }

// SessionID identifies the owning session (empty when unknown).
func (e baseEvent) SessionID() string { return e.sessionID }

// Timestamp returns the event creation time in Unix milliseconds.
func (e baseEvent) Timestamp() int64 { return e.timestamp }

// Attributes returns optional string-keyed metadata.
func (e baseEvent) Attributes() map[string]string { return e.attrs }

// SetAttribute records a metadata key on the event. Events are stamped by the
// runtime before publication; subscribers must treat attributes as read-only.
func (e *baseEvent) SetAttribute(key, value string) {
	if e.attrs == nil {
		e.attrs = make(map[string]string)
	}
	e.attrs[key] = value
}

// Type returns TypeStarted for plan start events.
func (*PlanStarted) Type() Type { return TypeStarted }

// Type returns TypeSucceeded for plan success events.
func (*PlanSucceeded) Type() Type { return TypeSucceeded }

// Type returns TypeFailed for plan failure events.
func (*PlanFailed) Type() Type { return TypeFailed }

// Type returns TypeRequested for action request events.
func (*ActionRequested) Type() Type { return TypeRequested }

// Type returns TypeStarted for action start events.
func (*ActionStarted) Type() Type { return TypeStarted }

// Type returns TypeSucceeded for action success events.
func (*ActionSucceeded) Type() Type { return TypeSucceeded }

// Type returns TypeFailed for action failure events.
func (*ActionFailed) Type() Type { return TypeFailed }

// NewPlanStarted constructs the event published before the first action runs.
func NewPlanStarted(runID, invID, sessionID string, stepCount int) *PlanStarted {
	return &PlanStarted{
		baseEvent: newBaseEvent(KindPlan, runID, invID, "", runID, sessionID),
		StepCount: stepCount,
	}
}

// NewPlanSucceeded constructs the event published after the last action
// completed.
func NewPlanSucceeded(runID, invID, sessionID string, duration time.Duration) *PlanSucceeded {
	return &PlanSucceeded{
		baseEvent:  newBaseEvent(KindPlan, runID, invID, "", runID, sessionID),
		DurationMS: duration.Milliseconds(),
	}
}

// NewPlanFailed constructs the event published when a run aborts.
func NewPlanFailed(runID, invID, sessionID string, duration time.Duration, reason string) *PlanFailed {
	return &PlanFailed{
		baseEvent:  newBaseEvent(KindPlan, runID, invID, "", runID, sessionID),
		DurationMS: duration.Milliseconds(),
		Reason:     reason,
	}
}

// NewActionRequested constructs the event published before each attempt.
func NewActionRequested(action, stepID, invID, parentID, runID, sessionID string, attempt int) *ActionRequested {
	return &ActionRequested{
		baseEvent: newBaseEvent(KindAction, action, invID, parentID, runID, sessionID),
		StepID:    stepID,
		Attempt:   attempt,
	}
}

// NewActionStarted constructs the event published when the handler starts.
func NewActionStarted(action, stepID, invID, parentID, runID, sessionID string, attempt int) *ActionStarted {
	return &ActionStarted{
		baseEvent: newBaseEvent(KindAction, action, invID, parentID, runID, sessionID),
		StepID:    stepID,
		Attempt:   attempt,
	}
}

// NewActionSucceeded constructs the event published after a successful
// attempt.
func NewActionSucceeded(action, stepID, invID, parentID, runID, sessionID string, attempt int, duration time.Duration) *ActionSucceeded {
	return &ActionSucceeded{
		baseEvent:  newBaseEvent(KindAction, action, invID, parentID, runID, sessionID),
		StepID:     stepID,
		Attempt:    attempt,
		DurationMS: duration.Milliseconds(),
	}
}

// NewActionFailed constructs the event published after a failed attempt.
func NewActionFailed(action, stepID, invID, parentID, runID, sessionID string, attempt int, duration time.Duration, reason string, retrying bool) *ActionFailed {
	return &ActionFailed{
		baseEvent:  newBaseEvent(KindAction, action, invID, parentID, runID, sessionID),
		StepID:     stepID,
		Attempt:    attempt,
		DurationMS: duration.Milliseconds(),
		Reason:     reason,
		Retrying:   retrying,
	}
}
