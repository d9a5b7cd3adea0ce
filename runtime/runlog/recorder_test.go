package runlog_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/maestro/runtime/events"
	"goa.design/maestro/runtime/runlog"
	"goa.design/maestro/runtime/runlog/inmem"
)

func TestRecorderAppendsEvents(t *testing.T) {
	store := inmem.New()
	rec := runlog.NewRecorder(store)
	ctx := context.Background()

	started := events.NewPlanStarted("run-1", "plan-inv", "sess-1", 2)
	require.NoError(t, rec.HandleEvent(ctx, started))

	failed := events.NewActionFailed("fetchCustomer", "fetchCustomer", "inv-1", "plan-inv",
		"run-1", "sess-1", 1, 40*time.Millisecond, "ActionTimeout", true)
	require.NoError(t, rec.HandleEvent(ctx, failed))

	succeeded := events.NewPlanSucceeded("run-1", "plan-inv", "sess-1", 250*time.Millisecond)
	require.NoError(t, rec.HandleEvent(ctx, succeeded))

	page, err := store.List(ctx, "run-1", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)

	first := page.Entries[0]
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, "sess-1", first.SessionID)
	assert.Equal(t, events.KindPlan, first.Kind)
	assert.Equal(t, events.TypeStarted, first.Type)
	assert.Equal(t, "plan-inv", first.InvocationID)
	assert.Empty(t, first.ParentInvocationID)
	assert.Zero(t, first.DurationMS)
	assert.False(t, first.Timestamp.IsZero())
	var payload map[string]any
	require.NoError(t, json.Unmarshal(first.Payload, &payload))
	assert.Equal(t, float64(2), payload["stepCount"])

	second := page.Entries[1]
	assert.Equal(t, events.KindAction, second.Kind)
	assert.Equal(t, events.TypeFailed, second.Type)
	assert.Equal(t, "fetchCustomer", second.Name)
	assert.Equal(t, "plan-inv", second.ParentInvocationID)
	assert.Equal(t, int64(40), second.DurationMS)
	payload = nil
	require.NoError(t, json.Unmarshal(second.Payload, &payload))
	assert.Equal(t, "ActionTimeout", payload["reason"])
	assert.Equal(t, true, payload["retrying"])
	assert.Equal(t, float64(1), payload["attempt"])

	third := page.Entries[2]
	assert.Equal(t, events.TypeSucceeded, third.Type)
	assert.Equal(t, int64(250), third.DurationMS)
}

type failingStore struct{ err error }

func (s *failingStore) Append(context.Context, *runlog.Entry) error { return s.err }

func (s *failingStore) List(context.Context, string, string, int) (runlog.Page, error) {
	return runlog.Page{}, nil
}

func TestRecorderSurfacesAppendFailures(t *testing.T) {
	cause := errors.New("disk full")
	rec := runlog.NewRecorder(&failingStore{err: cause})

	err := rec.HandleEvent(context.Background(), events.NewPlanStarted("run-1", "inv", "", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "runlog: append plan started")
}

func TestRecorderOnBusHaltsRunOnFailure(t *testing.T) {
	bus := events.NewBus()
	_, err := bus.Register(runlog.NewRecorder(&failingStore{err: errors.New("unreachable")}))
	require.NoError(t, err)

	err = bus.Publish(context.Background(), events.NewPlanStarted("run-1", "inv", "", 1))
	require.Error(t, err)
}
