package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	streamopts "goa.design/pulse/streaming/options"

	clientspulse "goa.design/maestro/features/stream/pulse/clients/pulse"
	"goa.design/maestro/runtime/events"
)

type (
	// EnvelopeDecoder converts raw payloads read from Pulse into lifecycle
	// events. Custom decoders can be provided to handle non-standard
	// envelope formats.
	EnvelopeDecoder func([]byte) (events.Event, error)

	// SubscriberOptions configures a Pulse-backed subscriber.
	SubscriberOptions struct {
		// Client is the Pulse client used to consume events. Required.
		Client clientspulse.Client
		// Bus receives the re-delivered events. Required.
		Bus events.Bus
		// SinkName identifies the Pulse consumer group. Defaults to "maestro_subscriber".
		SinkName string
		// Decoder deserializes event payloads. Defaults to the built-in JSON decoder.
		Decoder EnvelopeDecoder
	}

	// Subscriber consumes Pulse streams and re-delivers the decoded
	// lifecycle events to a local event bus, so subscribers on hosts that
	// did not execute the run observe the same event sequence.
	Subscriber struct {
		client clientspulse.Client
		bus    events.Bus
		name   string
		decode EnvelopeDecoder
	}

	// Remote is a lifecycle event decoded from a Pulse envelope. The
	// originating concrete event type is not reconstructed; the
	// type-specific fields stay available as raw JSON through Payload.
	Remote struct {
		typ       events.Type
		kind      events.Kind
		name      string
		invID     string
		parentID  string
		runID     string
		sessionID string
		timestamp int64
		duration  int64
		attrs     map[string]string
		payload   json.RawMessage
	}
)

// Type returns the lifecycle phase recorded in the envelope.
func (e Remote) Type() events.Type { return e.typ }

// Kind reports whether the event describes a plan run or an action.
func (e Remote) Kind() events.Kind { return e.kind }

// Name returns the action ID for action events, the run ID for plan events.
func (e Remote) Name() string { return e.name }

// InvocationID identifies the recorded invocation attempt.
func (e Remote) InvocationID() string { return e.invID }

// ParentInvocationID links action events to their plan invocation.
func (e Remote) ParentInvocationID() string { return e.parentID }

// RunID identifies the plan run.
func (e Remote) RunID() string { return e.runID }

// SessionID identifies the owning session (empty when unknown).
func (e Remote) SessionID() string { return e.sessionID }

// Timestamp returns the event creation time in Unix milliseconds.
func (e Remote) Timestamp() int64 { return e.timestamp }

// Attributes returns the metadata stamped on the event at publish time.
func (e Remote) Attributes() map[string]string { return e.attrs }

// DurationMS returns the duration of terminal events in milliseconds.
func (e Remote) DurationMS() int64 { return e.duration }

// Payload returns the raw type-specific event fields.
func (e Remote) Payload() json.RawMessage { return e.payload }

// NewSubscriber constructs a Pulse-backed subscriber. The Client and Bus
// fields in opts are required; SinkName and Decoder default to sensible
// values if not provided (see SubscriberOptions field documentation).
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("event bus is required")
	}
	name := opts.SinkName
	if name == "" {
		name = "maestro_subscriber"
	}
	decoder := opts.Decoder
	if decoder == nil {
		decoder = decodeEnvelope
	}
	return &Subscriber{
		client: opts.Client,
		bus:    opts.Bus,
		name:   name,
		decode: decoder,
	}, nil
}

// Subscribe opens a Pulse sink on the given stream ID and starts
// re-delivering its entries to the local bus. It spawns a goroutine that
// consumes from the sink, decodes envelopes and publishes the decoded
// events; each entry is acked only after the bus accepted it, so halted
// deliveries stay pending for redelivery. The returned cancel function stops
// consumption and closes the sink. The error channel reports the failure
// that stopped consumption, if any, and is closed when the goroutine exits.
//
// Usage:
//
//	errs, cancel, err := sub.Subscribe(ctx, "plan/run-123")
//	defer cancel()
//	if err := <-errs; err != nil {
//	    // consumption stopped on a failure
//	}
func (s *Subscriber) Subscribe(
	ctx context.Context,
	streamID string,
	opts ...streamopts.Sink,
) (<-chan error, context.CancelFunc, error) {
	str, err := s.client.Stream(streamID)
	if err != nil {
		return nil, nil, err
	}
	sink, err := str.NewSink(ctx, s.name, opts...)
	if err != nil {
		return nil, nil, err
	}
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go s.consume(runCtx, sink, errs)
	cancelFunc := func() {
		cancel()
		sink.Close(context.Background())
	}
	return errs, cancelFunc, nil
}

// consume reads entries from the Pulse sink channel, decodes them, and
// publishes them on the bus. It acks each entry after a successful publish.
// Closes the errs channel when ctx is canceled or when the sink channel
// closes. Sends the error on errs if decoding, publishing or acking fails,
// then returns.
func (s *Subscriber) consume(ctx context.Context, sink clientspulse.Sink, errs chan<- error) {
	defer close(errs)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			decoded, err := s.decode(evt.Payload)
			if err != nil {
				errs <- fmt.Errorf("pulse decode payload: %w", err)
				return
			}
			if err := s.bus.Publish(ctx, decoded); err != nil {
				errs <- fmt.Errorf("pulse publish: %w", err)
				return
			}
			if ackErr := sink.Ack(ctx, evt); ackErr != nil {
				errs <- fmt.Errorf("pulse ack: %w", ackErr)
				return
			}
		}
	}
}

// decodeEnvelope deserializes the default JSON envelope format and returns
// the event it describes. Returns an error if the payload is malformed.
func decodeEnvelope(payload []byte) (events.Event, error) {
	var env struct {
		Type               string            `json:"type"`
		Kind               string            `json:"kind"`
		Name               string            `json:"name"`
		InvocationID       string            `json:"invocation_id"`
		ParentInvocationID string            `json:"parent_invocation_id"`
		RunID              string            `json:"run_id"`
		SessionID          string            `json:"session_id"`
		Timestamp          int64             `json:"timestamp"`
		DurationMS         int64             `json:"duration_ms"`
		Attributes         map[string]string `json:"attributes"`
		Payload            json.RawMessage   `json:"payload"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	return Remote{
		typ:       events.Type(env.Type),
		kind:      events.Kind(env.Kind),
		name:      env.Name,
		invID:     env.InvocationID,
		parentID:  env.ParentInvocationID,
		runID:     env.RunID,
		sessionID: env.SessionID,
		timestamp: env.Timestamp,
		duration:  env.DurationMS,
		attrs:     env.Attributes,
		payload:   env.Payload,
	}, nil
}
