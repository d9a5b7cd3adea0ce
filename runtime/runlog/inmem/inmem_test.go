package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/maestro/runtime/events"
	"goa.design/maestro/runtime/runlog"
)

func TestStoreAppendAndList(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.Append(ctx, &runlog.Entry{
			RunID:     "run-1",
			SessionID: "sess-1",
			Kind:      events.KindAction,
			Type:      events.TypeStarted,
			Payload:   []byte(`{}`),
			Timestamp: time.Unix(int64(i+1), 0).UTC(),
		})
		require.NoError(t, err)
	}

	page1, err := s.List(ctx, "run-1", "", 2)
	require.NoError(t, err)
	require.Len(t, page1.Entries, 2)
	require.Equal(t, "1", page1.Entries[0].ID)
	require.Equal(t, "2", page1.Entries[1].ID)
	require.Equal(t, "2", page1.NextCursor)

	page2, err := s.List(ctx, "run-1", page1.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page2.Entries, 1)
	require.Equal(t, "3", page2.Entries[0].ID)
	require.Empty(t, page2.NextCursor)
}

func TestStoreSequencesPerRun(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, &runlog.Entry{RunID: "run-1"}))
	require.NoError(t, s.Append(ctx, &runlog.Entry{RunID: "run-2"}))
	require.NoError(t, s.Append(ctx, &runlog.Entry{RunID: "run-1"}))

	page, err := s.List(ctx, "run-2", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.Equal(t, "1", page.Entries[0].ID)

	page, err = s.List(ctx, "run-1", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	require.Equal(t, "2", page.Entries[1].ID)
}

func TestStoreListValidation(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	_, err := s.List(ctx, "", "", 10)
	require.Error(t, err)

	_, err = s.List(ctx, "run-1", "", 0)
	require.Error(t, err)

	_, err = s.List(ctx, "run-1", "not-an-int", 10)
	require.Error(t, err)

	require.Error(t, s.Append(ctx, nil))
	require.Error(t, s.Append(ctx, &runlog.Entry{}))
}
