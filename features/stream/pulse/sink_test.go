package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	streamopts "goa.design/pulse/streaming/options"

	clientspulse "goa.design/maestro/features/stream/pulse/clients/pulse"
	mockpulse "goa.design/maestro/features/stream/pulse/clients/pulse/mocks"
	"goa.design/maestro/runtime/events"
)

func TestHandleEventPublishesEnvelope(t *testing.T) {
	cli := mockpulse.NewClient(t)
	str := mockpulse.NewStream(t)

	cli.AddStream(func(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
		require.Equal(t, "plan/run-123", name)
		return str, nil
	})

	evt := events.NewActionSucceeded("lookupOrder", "step-1", "inv-2", "inv-1", "run-123", "sess-9", 2, 1500*time.Millisecond)
	evt.SetAttribute("region", "us-east-1")

	const lastID = "1-0"
	str.AddAdd(func(ctx context.Context, event string, payload []byte) (string, error) {
		require.Equal(t, "action_succeeded", event)
		var env Envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		require.Equal(t, "succeeded", env.Type)
		require.Equal(t, "action", env.Kind)
		require.Equal(t, "lookupOrder", env.Name)
		require.Equal(t, "inv-2", env.InvocationID)
		require.Equal(t, "inv-1", env.ParentInvocationID)
		require.Equal(t, "run-123", env.RunID)
		require.Equal(t, "sess-9", env.SessionID)
		require.Equal(t, evt.Timestamp(), env.Timestamp)
		require.Equal(t, int64(1500), env.DurationMS)
		require.Equal(t, map[string]string{"region": "us-east-1"}, env.Attributes)
		body, ok := env.Payload.(map[string]any)
		require.True(t, ok)
		require.Equal(t, "step-1", body["stepId"])
		require.Equal(t, float64(2), body["attempt"])
		return lastID, nil
	})

	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)

	require.NoError(t, sink.HandleEvent(context.Background(), evt))
	require.False(t, str.HasMore())
}

func TestOnPublishedCalled(t *testing.T) {
	cli := mockpulse.NewClient(t)
	str := mockpulse.NewStream(t)

	cli.AddStream(func(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
		require.Equal(t, "plan/run-123", name)
		return str, nil
	})
	str.AddAdd(func(ctx context.Context, event string, payload []byte) (string, error) {
		require.Equal(t, "plan_succeeded", event)
		return "42-0", nil
	})

	var (
		called    bool
		gotEvent  events.Event
		gotID     string
		gotStream string
	)

	sink, err := NewSink(Options{
		Client: cli,
		OnPublished: func(ctx context.Context, ev PublishedEvent) error {
			require.NotNil(t, ctx)
			called = true
			gotEvent = ev.Event
			gotID = ev.EntryID
			gotStream = ev.StreamID
			return nil
		},
	})
	require.NoError(t, err)

	err = sink.HandleEvent(context.Background(), events.NewPlanSucceeded("run-123", "inv-1", "", 2*time.Second))
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, "42-0", gotID)
	require.Equal(t, "plan/run-123", gotStream)
	require.Equal(t, events.TypeSucceeded, gotEvent.Type())
}

func TestOnPublishedErrorPropagates(t *testing.T) {
	cli := mockpulse.NewClient(t)
	str := mockpulse.NewStream(t)

	cli.AddStream(func(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
		return str, nil
	})
	str.AddAdd(func(ctx context.Context, event string, payload []byte) (string, error) {
		return "1-0", nil
	})

	sink, err := NewSink(Options{
		Client: cli,
		OnPublished: func(ctx context.Context, ev PublishedEvent) error {
			return errors.New("after-publish")
		},
	})
	require.NoError(t, err)

	err = sink.HandleEvent(context.Background(), events.NewPlanStarted("r", "inv-1", "", 3))
	require.EqualError(t, err, "after-publish")
}

func TestCustomStreamID(t *testing.T) {
	cli := mockpulse.NewClient(t)
	str := mockpulse.NewStream(t)
	cli.AddStream(func(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
		require.Equal(t, "custom/run-1", name)
		return str, nil
	})
	str.AddAdd(func(ctx context.Context, event string, payload []byte) (string, error) {
		return "1-0", nil
	})
	sink, err := NewSink(Options{
		Client: cli,
		StreamID: func(e events.Event) (string, error) {
			return "custom/" + e.RunID(), nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, sink.HandleEvent(context.Background(), events.NewPlanStarted("run-1", "inv-1", "", 2)))
}

func TestHandleEventRequiresRunID(t *testing.T) {
	sink, err := NewSink(Options{Client: mockpulse.NewClient(t)})
	require.NoError(t, err)
	err = sink.HandleEvent(context.Background(), events.NewPlanStarted("", "inv-1", "", 1))
	require.EqualError(t, err, "lifecycle event missing run id")
}

func TestStreamCreationError(t *testing.T) {
	cli := mockpulse.NewClient(t)
	cli.AddStream(func(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
		return nil, errors.New("boom")
	})
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)
	err = sink.HandleEvent(context.Background(), events.NewPlanStarted("r", "inv-1", "", 1))
	require.EqualError(t, err, "boom")
}

func TestAddError(t *testing.T) {
	cli := mockpulse.NewClient(t)
	str := mockpulse.NewStream(t)
	cli.AddStream(func(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
		return str, nil
	})
	str.AddAdd(func(ctx context.Context, event string, payload []byte) (string, error) {
		return "", errors.New("add-failed")
	})
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)
	err = sink.HandleEvent(context.Background(), events.NewActionStarted("a", "s", "inv-2", "inv-1", "r", "", 1))
	require.EqualError(t, err, "add-failed")
}

func TestCloseDelegates(t *testing.T) {
	cli := mockpulse.NewClient(t)
	cli.AddClose(func(ctx context.Context) error {
		require.NotNil(t, ctx)
		return nil
	})
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)
	require.NoError(t, sink.Close(context.Background()))
}
