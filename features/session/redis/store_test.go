package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"goa.design/maestro/runtime/session"
)

func newTestStore(t *testing.T, opts Options) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewStore(client, opts)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store, mr
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil, Options{}); err == nil {
		t.Fatal("NewStore(nil) expected error")
	}
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	if _, err := NewStore(client, Options{TTL: -time.Second}); err == nil {
		t.Fatal("NewStore with negative TTL expected error")
	}
}

func TestCreateSession(t *testing.T) {
	store, mr := newTestStore(t, Options{})
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	got, err := store.CreateSession(ctx, "sess-1", created)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if got.ID != "sess-1" {
		t.Errorf("ID = %q, want %q", got.ID, "sess-1")
	}
	if got.Status != session.StatusActive {
		t.Errorf("Status = %q, want %q", got.Status, session.StatusActive)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if got.EndedAt != nil {
		t.Errorf("EndedAt = %v, want nil", got.EndedAt)
	}

	// The document lives under the session key prefix.
	if !mr.Exists("maestro:session:sess-1") {
		t.Fatal("session key not written")
	}
	raw, err := mr.Get("maestro:session:sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !strings.Contains(raw, `"status":"active"`) {
		t.Errorf("stored document = %s, want status active", raw)
	}
}

func TestCreateSessionIdempotentForActive(t *testing.T) {
	store, _ := newTestStore(t, Options{})
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first, err := store.CreateSession(ctx, "sess-1", created)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	again, err := store.CreateSession(ctx, "sess-1", created.Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateSession() second call error = %v", err)
	}
	if !again.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v, want original %v", again.CreatedAt, first.CreatedAt)
	}
	if again.Status != session.StatusActive {
		t.Errorf("Status = %q, want %q", again.Status, session.StatusActive)
	}
}

func TestCreateSessionEnded(t *testing.T) {
	store, _ := newTestStore(t, Options{})
	ctx := context.Background()
	created := time.Now()

	if _, err := store.CreateSession(ctx, "sess-1", created); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := store.EndSession(ctx, "sess-1", created.Add(time.Minute)); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if _, err := store.CreateSession(ctx, "sess-1", created.Add(time.Hour)); !errors.Is(err, session.ErrSessionEnded) {
		t.Fatalf("CreateSession() on ended session error = %v, want ErrSessionEnded", err)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	store, _ := newTestStore(t, Options{})
	ctx := context.Background()

	if _, err := store.CreateSession(ctx, "", time.Now()); err == nil {
		t.Error("CreateSession with empty id expected error")
	}
	if _, err := store.CreateSession(ctx, "sess-1", time.Time{}); err == nil {
		t.Error("CreateSession with zero created_at expected error")
	}
}

func TestLoadSession(t *testing.T) {
	store, _ := newTestStore(t, Options{})
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := store.LoadSession(ctx, "ghost"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("LoadSession(ghost) error = %v, want ErrSessionNotFound", err)
	}

	if _, err := store.CreateSession(ctx, "sess-1", created); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	got, err := store.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if got.ID != "sess-1" || got.Status != session.StatusActive || !got.CreatedAt.Equal(created) {
		t.Errorf("LoadSession() = %+v, want active sess-1 created at %v", got, created)
	}
}

func TestEndSession(t *testing.T) {
	store, mr := newTestStore(t, Options{})
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ended := created.Add(30 * time.Minute)

	if _, err := store.CreateSession(ctx, "sess-1", created); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := store.SetPending(ctx, "sess-1", session.Pending{ActionID: "createOrder"}); err != nil {
		t.Fatalf("SetPending() error = %v", err)
	}

	first, err := store.EndSession(ctx, "sess-1", ended)
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if first.Status != session.StatusEnded {
		t.Errorf("Status = %q, want %q", first.Status, session.StatusEnded)
	}
	if first.EndedAt == nil || !first.EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v, want %v", first.EndedAt, ended)
	}
	if mr.Exists("maestro:pending:sess-1") {
		t.Error("pending key survived EndSession")
	}

	// Ending again keeps the original end time.
	again, err := store.EndSession(ctx, "sess-1", ended.Add(time.Hour))
	if err != nil {
		t.Fatalf("EndSession() second call error = %v", err)
	}
	if again.EndedAt == nil || !again.EndedAt.Equal(ended) {
		t.Errorf("EndedAt after retry = %v, want %v", again.EndedAt, ended)
	}

	if _, err := store.EndSession(ctx, "ghost", ended); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("EndSession(ghost) error = %v, want ErrSessionNotFound", err)
	}
}

func TestPendingLifecycle(t *testing.T) {
	store, _ := newTestStore(t, Options{})
	ctx := context.Background()
	if _, err := store.CreateSession(ctx, "sess-1", time.Now()); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	p := session.Pending{
		ActionID: "createOrder",
		Missing: []session.ParamRequest{{
			Name:     "city",
			TypeID:   "string",
			Prompt:   "Which city should the order ship to?",
			Examples: []string{"berlin"},
		}},
		Collected: map[string]json.RawMessage{"customerId": json.RawMessage(`"42"`)},
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.SetPending(ctx, "sess-1", p); err != nil {
		t.Fatalf("SetPending() error = %v", err)
	}

	got, err := store.PendingFor(ctx, "sess-1")
	if err != nil {
		t.Fatalf("PendingFor() error = %v", err)
	}
	if got.ActionID != "createOrder" {
		t.Errorf("ActionID = %q, want %q", got.ActionID, "createOrder")
	}
	if len(got.Missing) != 1 || got.Missing[0].Name != "city" || got.Missing[0].Prompt != p.Missing[0].Prompt {
		t.Errorf("Missing = %+v, want single city request", got.Missing)
	}
	if len(got.Missing) == 1 && len(got.Missing[0].Examples) != 1 {
		t.Errorf("Examples = %v, want [berlin]", got.Missing[0].Examples)
	}
	if string(got.Collected["customerId"]) != `"42"` {
		t.Errorf("Collected[customerId] = %s, want \"42\"", got.Collected["customerId"])
	}
	if !got.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, p.CreatedAt)
	}

	// Replacing pending state overwrites the previous document.
	if err := store.SetPending(ctx, "sess-1", session.Pending{ActionID: "checkInventory"}); err != nil {
		t.Fatalf("SetPending() replace error = %v", err)
	}
	got, err = store.PendingFor(ctx, "sess-1")
	if err != nil {
		t.Fatalf("PendingFor() after replace error = %v", err)
	}
	if got.ActionID != "checkInventory" {
		t.Errorf("ActionID = %q, want %q", got.ActionID, "checkInventory")
	}

	if err := store.ClearPending(ctx, "sess-1"); err != nil {
		t.Fatalf("ClearPending() error = %v", err)
	}
	if _, err := store.PendingFor(ctx, "sess-1"); !errors.Is(err, session.ErrNoPending) {
		t.Fatalf("PendingFor() after clear error = %v, want ErrNoPending", err)
	}

	// Clearing absent state is fine.
	if err := store.ClearPending(ctx, "sess-1"); err != nil {
		t.Fatalf("ClearPending() on absent state error = %v", err)
	}
}

func TestPendingRequiresActiveSession(t *testing.T) {
	store, _ := newTestStore(t, Options{})
	ctx := context.Background()
	p := session.Pending{ActionID: "createOrder"}

	if err := store.SetPending(ctx, "ghost", p); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("SetPending(ghost) error = %v, want ErrSessionNotFound", err)
	}
	if _, err := store.PendingFor(ctx, "ghost"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("PendingFor(ghost) error = %v, want ErrSessionNotFound", err)
	}
	if err := store.ClearPending(ctx, "ghost"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("ClearPending(ghost) error = %v, want ErrSessionNotFound", err)
	}

	if _, err := store.CreateSession(ctx, "sess-1", time.Now()); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := store.EndSession(ctx, "sess-1", time.Now()); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if err := store.SetPending(ctx, "sess-1", p); !errors.Is(err, session.ErrSessionEnded) {
		t.Fatalf("SetPending on ended session error = %v, want ErrSessionEnded", err)
	}
	if _, err := store.PendingFor(ctx, "sess-1"); !errors.Is(err, session.ErrNoPending) {
		t.Fatalf("PendingFor on ended session error = %v, want ErrNoPending", err)
	}
}

func TestSetPendingValidation(t *testing.T) {
	store, _ := newTestStore(t, Options{})
	ctx := context.Background()
	if _, err := store.CreateSession(ctx, "sess-1", time.Now()); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	err := store.SetPending(ctx, "sess-1", session.Pending{})
	if err == nil || !strings.Contains(err.Error(), "action id is required") {
		t.Fatalf("SetPending() error = %v, want action id validation", err)
	}
}

func TestTTLExpiresState(t *testing.T) {
	store, mr := newTestStore(t, Options{TTL: time.Minute})
	ctx := context.Background()

	if _, err := store.CreateSession(ctx, "sess-1", time.Now()); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := store.SetPending(ctx, "sess-1", session.Pending{ActionID: "createOrder"}); err != nil {
		t.Fatalf("SetPending() error = %v", err)
	}
	if ttl := mr.TTL("maestro:session:sess-1"); ttl != time.Minute {
		t.Errorf("session TTL = %v, want %v", ttl, time.Minute)
	}
	if ttl := mr.TTL("maestro:pending:sess-1"); ttl != time.Minute {
		t.Errorf("pending TTL = %v, want %v", ttl, time.Minute)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.LoadSession(ctx, "sess-1"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("LoadSession() after expiry error = %v, want ErrSessionNotFound", err)
	}

	// An expired session id can be claimed again.
	if _, err := store.CreateSession(ctx, "sess-1", time.Now()); err != nil {
		t.Fatalf("CreateSession() after expiry error = %v", err)
	}
}
