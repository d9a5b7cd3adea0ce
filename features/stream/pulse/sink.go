// Package pulse streams plan lifecycle events through goa.design/pulse. It
// mirrors the layering used by existing Pulse deployments: services build a
// Redis client, pass it to the Pulse client in clients/pulse, and register
// the resulting sink on the run's event bus. Subscribers on other hosts read
// the same streams and re-deliver the events to their local buses.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	clientspulse "goa.design/maestro/features/stream/pulse/clients/pulse"
	"goa.design/maestro/runtime/events"
)

type (
	// Envelope is the wire format for lifecycle events published to Pulse
	// streams. Identity fields mirror the event interface; Payload carries
	// the type-specific fields.
	Envelope struct {
		// Type is the lifecycle phase of the event.
		Type string `json:"type"`
		// Kind reports whether the event describes a plan run or an action.
		Kind string `json:"kind"`
		// Name is the action ID for action events, the run ID for plan events.
		Name string `json:"name"`
		// InvocationID identifies the invocation attempt.
		InvocationID string `json:"invocation_id"`
		// ParentInvocationID links action events to their plan invocation.
		ParentInvocationID string `json:"parent_invocation_id,omitempty"`
		// RunID links the event to a plan run.
		RunID string `json:"run_id"`
		// SessionID identifies the owning session, when known.
		SessionID string `json:"session_id,omitempty"`
		// Timestamp is the event creation time in Unix milliseconds.
		Timestamp int64 `json:"timestamp"`
		// DurationMS is the duration of terminal events, zero otherwise.
		DurationMS int64 `json:"duration_ms,omitempty"`
		// Attributes carries the metadata stamped on the event.
		Attributes map[string]string `json:"attributes,omitempty"`
		// Payload contains the type-specific event fields, if any.
		Payload any `json:"payload,omitempty"`
	}

	// PublishedEvent describes one event successfully published to Pulse.
	PublishedEvent struct {
		// Event is the lifecycle event that was published.
		Event events.Event
		// EntryID is the Redis entry ID assigned to the envelope.
		EntryID string
		// StreamID is the Pulse stream the envelope was added to.
		StreamID string
	}

	// Options configures the Pulse sink.
	Options struct {
		// Client is the Pulse client used to publish events. Required.
		Client clientspulse.Client
		// StreamID derives the target Pulse stream from an event. Defaults to `plan/<RunID>`.
		StreamID func(events.Event) (string, error)
		// MarshalEnvelope allows overriding the envelope serialization (primarily for tests).
		MarshalEnvelope func(Envelope) ([]byte, error)
		// OnPublished is invoked after each successful publish with the stream
		// and entry ID the envelope landed on. Errors propagate to the bus.
		OnPublished func(context.Context, PublishedEvent) error
	}

	// Sink publishes lifecycle events into Pulse streams. It implements
	// events.Subscriber, so hosts register it directly on a run's event bus.
	// Thread-safe for concurrent HandleEvent operations.
	Sink struct {
		client clientspulse.Client
		opts   sinkOptions
	}

	// sinkOptions holds internal configuration derived from Options.
	sinkOptions struct {
		streamID        func(events.Event) (string, error)
		marshalEnvelope func(Envelope) ([]byte, error)
		onPublished     func(context.Context, PublishedEvent) error
	}
)

// NewSink constructs a Pulse-backed event sink. The Client field in opts is
// required; StreamID and MarshalEnvelope default to the built-in
// implementations if not provided.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	cfg := sinkOptions{
		streamID:        defaultStreamID,
		marshalEnvelope: defaultMarshal,
		onPublished:     opts.OnPublished,
	}
	if opts.StreamID != nil {
		cfg.streamID = opts.StreamID
	}
	if opts.MarshalEnvelope != nil {
		cfg.marshalEnvelope = opts.MarshalEnvelope
	}
	return &Sink{
		client: opts.Client,
		opts:   cfg,
	}, nil
}

// HandleEvent implements events.Subscriber. It derives the stream ID, wraps
// the event in an envelope, marshals it to JSON, and publishes it via the
// Pulse client. Publish failures surface to the bus so hosts decide whether
// streaming is critical.
func (s *Sink) HandleEvent(ctx context.Context, event events.Event) error {
	streamID, err := s.opts.streamID(event)
	if err != nil {
		return err
	}
	handle, err := s.client.Stream(streamID)
	if err != nil {
		return err
	}
	env := Envelope{
		Type:               string(event.Type()),
		Kind:               string(event.Kind()),
		Name:               event.Name(),
		InvocationID:       event.InvocationID(),
		ParentInvocationID: event.ParentInvocationID(),
		RunID:              event.RunID(),
		SessionID:          event.SessionID(),
		Timestamp:          event.Timestamp(),
		DurationMS:         durationOf(event),
		Attributes:         event.Attributes(),
		Payload:            eventPayload(event),
	}
	payload, err := s.opts.marshalEnvelope(env)
	if err != nil {
		return err
	}
	id, err := handle.Add(ctx, env.Kind+"_"+env.Type, payload)
	if err != nil {
		return err
	}
	if s.opts.onPublished != nil {
		return s.opts.onPublished(ctx, PublishedEvent{Event: event, EntryID: id, StreamID: streamID})
	}
	return nil
}

// Close releases resources owned by the sink. This delegates to the underlying
// Pulse client, which may or may not close the Redis connection depending on
// the client implementation.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// defaultStreamID derives the Pulse stream name from the event's RunID.
// Returns an error if the RunID is empty.
func defaultStreamID(event events.Event) (string, error) {
	if event.RunID() == "" {
		return "", errors.New("lifecycle event missing run id")
	}
	return fmt.Sprintf("plan/%s", event.RunID()), nil
}

// defaultMarshal serializes an envelope to JSON.
func defaultMarshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// eventPayload extracts the type-specific fields of an event. Returns nil
// when the event carries none.
func eventPayload(evt events.Event) map[string]any {
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
	if len(p) == 0 {
		return nil
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
