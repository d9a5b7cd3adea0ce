// Package redis provides a Redis-backed implementation of session.Store.
//
// Sessions and pending-parameter state are stored as JSON documents under
// the keys "maestro:session:<id>" and "maestro:pending:<id>". Session
// creation uses SET NX so concurrent hosts converge on a single document,
// and an optional TTL bounds how long idle state is retained.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"goa.design/maestro/runtime/action"
	"goa.design/maestro/runtime/session"
)

const (
	sessionKeyPrefix = "maestro:session:"
	pendingKeyPrefix = "maestro:pending:"
)

type (
	// Options configures a Store.
	Options struct {
		// TTL expires session and pending documents after the given
		// duration. Zero keeps them until explicitly removed.
		TTL time.Duration
	}

	// Store implements session.Store on a Redis client. It is safe for
	// concurrent use by multiple hosts sharing the same Redis instance.
	Store struct {
		client *goredis.Client
		ttl    time.Duration
	}

	sessionDoc struct {
		ID        string         `json:"id"`
		Status    session.Status `json:"status"`
		CreatedAt time.Time      `json:"created_at"`
		EndedAt   *time.Time     `json:"ended_at,omitempty"`
	}

	pendingDoc struct {
		ActionID  action.ID                  `json:"action_id"`
		Missing   []paramRequestDoc          `json:"missing,omitempty"`
		Collected map[string]json.RawMessage `json:"collected,omitempty"`
		CreatedAt time.Time                  `json:"created_at"`
	}

	paramRequestDoc struct {
		Name     string   `json:"name"`
		TypeID   string   `json:"type_id"`
		Prompt   string   `json:"prompt,omitempty"`
		Examples []string `json:"examples,omitempty"`
	}
)

// NewStore returns a Store backed by the given Redis client.
func NewStore(client *goredis.Client, opts Options) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.TTL < 0 {
		return nil, errors.New("ttl must not be negative")
	}
	return &Store{client: client, ttl: opts.TTL}, nil
}

// CreateSession implements session.Store.
func (s *Store) CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, errors.New("session id is required")
	}
	if createdAt.IsZero() {
		return session.Session{}, errors.New("created_at is required")
	}

	out := session.Session{
		ID:        sessionID,
		Status:    session.StatusActive,
		CreatedAt: createdAt.UTC(),
	}
	data, err := json.Marshal(newSessionDoc(out))
	if err != nil {
		return session.Session{}, fmt.Errorf("encode session %q: %w", sessionID, err)
	}

	key := sessionKey(sessionID)
	for {
		ok, err := s.client.SetNX(ctx, key, data, s.ttl).Result()
		if err != nil {
			return session.Session{}, fmt.Errorf("create session %q: %w", sessionID, err)
		}
		if ok {
			return out, nil
		}
		existing, err := s.getSession(ctx, sessionID)
		if err == nil {
			if existing.Status == session.StatusEnded {
				return session.Session{}, session.ErrSessionEnded
			}
			return existing, nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			return session.Session{}, err
		}
		// The document expired between the failed SET NX and the read.
		// Try to claim the key again.
		if err := ctx.Err(); err != nil {
			return session.Session{}, err
		}
	}
}

// LoadSession implements session.Store.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, errors.New("session id is required")
	}
	return s.getSession(ctx, sessionID)
}

// EndSession implements session.Store.
func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, errors.New("session id is required")
	}
	if endedAt.IsZero() {
		return session.Session{}, errors.New("ended_at is required")
	}

	existing, err := s.getSession(ctx, sessionID)
	if err != nil {
		return session.Session{}, err
	}
	if existing.Status == session.StatusEnded {
		// A retried end still clears any pending state left behind by a
		// partial earlier attempt.
		if err := s.client.Del(ctx, pendingKey(sessionID)).Err(); err != nil {
			return session.Session{}, fmt.Errorf("clear pending state for session %q: %w", sessionID, err)
		}
		return existing, nil
	}

	at := endedAt.UTC()
	existing.Status = session.StatusEnded
	existing.EndedAt = &at
	data, err := json.Marshal(newSessionDoc(existing))
	if err != nil {
		return session.Session{}, fmt.Errorf("encode session %q: %w", sessionID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, sessionKey(sessionID), data, s.ttl)
		p.Del(ctx, pendingKey(sessionID))
		return nil
	})
	if err != nil {
		return session.Session{}, fmt.Errorf("end session %q: %w", sessionID, err)
	}
	return existing, nil
}

// SetPending implements session.Store.
func (s *Store) SetPending(ctx context.Context, sessionID string, p session.Pending) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	if p.ActionID == "" {
		return errors.New("action id is required")
	}

	existing, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if existing.Status == session.StatusEnded {
		return session.ErrSessionEnded
	}

	data, err := json.Marshal(newPendingDoc(p))
	if err != nil {
		return fmt.Errorf("encode pending state for session %q: %w", sessionID, err)
	}
	if err := s.client.Set(ctx, pendingKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set pending state for session %q: %w", sessionID, err)
	}

	// EndSession may have raced the write above. Ended sessions must not
	// retain pending state, so re-check and undo if the session closed.
	recheck, err := s.getSession(ctx, sessionID)
	if err == nil && recheck.Status == session.StatusEnded {
		_ = s.client.Del(ctx, pendingKey(sessionID))
		return session.ErrSessionEnded
	}
	return nil
}

// PendingFor implements session.Store.
func (s *Store) PendingFor(ctx context.Context, sessionID string) (session.Pending, error) {
	if sessionID == "" {
		return session.Pending{}, errors.New("session id is required")
	}

	if _, err := s.getSession(ctx, sessionID); err != nil {
		return session.Pending{}, err
	}
	data, err := s.client.Get(ctx, pendingKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return session.Pending{}, session.ErrNoPending
	}
	if err != nil {
		return session.Pending{}, fmt.Errorf("load pending state for session %q: %w", sessionID, err)
	}
	var doc pendingDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return session.Pending{}, fmt.Errorf("decode pending state for session %q: %w", sessionID, err)
	}
	return doc.pending(), nil
}

// ClearPending implements session.Store.
func (s *Store) ClearPending(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	if _, err := s.getSession(ctx, sessionID); err != nil {
		return err
	}
	if err := s.client.Del(ctx, pendingKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear pending state for session %q: %w", sessionID, err)
	}
	return nil
}

func (s *Store) getSession(ctx context.Context, sessionID string) (session.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return session.Session{}, session.ErrSessionNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("load session %q: %w", sessionID, err)
	}
	var doc sessionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return session.Session{}, fmt.Errorf("decode session %q: %w", sessionID, err)
	}
	return doc.session(), nil
}

func sessionKey(sessionID string) string { return sessionKeyPrefix + sessionID }

func pendingKey(sessionID string) string { return pendingKeyPrefix + sessionID }

func newSessionDoc(s session.Session) sessionDoc {
	return sessionDoc{
		ID:        s.ID,
		Status:    s.Status,
		CreatedAt: s.CreatedAt,
		EndedAt:   s.EndedAt,
	}
}

func (d sessionDoc) session() session.Session {
	return session.Session{
		ID:        d.ID,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
		EndedAt:   d.EndedAt,
	}
}

func newPendingDoc(p session.Pending) pendingDoc {
	doc := pendingDoc{
		ActionID:  p.ActionID,
		Collected: p.Collected,
		CreatedAt: p.CreatedAt.UTC(),
	}
	for _, m := range p.Missing {
		doc.Missing = append(doc.Missing, paramRequestDoc{
			Name:     m.Name,
			TypeID:   m.TypeID,
			Prompt:   m.Prompt,
			Examples: m.Examples,
		})
	}
	return doc
}

func (d pendingDoc) pending() session.Pending {
	out := session.Pending{
		ActionID:  d.ActionID,
		Collected: d.Collected,
		CreatedAt: d.CreatedAt,
	}
	for _, m := range d.Missing {
		out.Missing = append(out.Missing, session.ParamRequest{
			Name:     m.Name,
			TypeID:   m.TypeID,
			Prompt:   m.Prompt,
			Examples: m.Examples,
		})
	}
	return out
}
