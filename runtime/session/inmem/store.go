// Package inmem provides an in-memory implementation of session.Store.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation (for example features/session/redis).
package inmem

import (
	"context"
	"errors"
	"sync"
	"time"

	"goa.design/maestro/runtime/session"
)

// Store is an in-memory implementation of session.Store. It is safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	pending  map[string]session.Pending
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]session.Session),
		pending:  make(map[string]session.Pending),
	}
}

// CreateSession implements session.Store.
func (s *Store) CreateSession(_ context.Context, sessionID string, createdAt time.Time) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, errors.New("session id is required")
	}
	if createdAt.IsZero() {
		return session.Session{}, errors.New("created_at is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[sessionID]
	if ok {
		if existing.Status == session.StatusEnded {
			return session.Session{}, session.ErrSessionEnded
		}
		return existing.Clone(), nil
	}

	out := session.Session{
		ID:        sessionID,
		Status:    session.StatusActive,
		CreatedAt: createdAt.UTC(),
	}
	s.sessions[sessionID] = out
	return out.Clone(), nil
}

// LoadSession implements session.Store.
func (s *Store) LoadSession(_ context.Context, sessionID string) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, errors.New("session id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	existing, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	return existing.Clone(), nil
}

// EndSession implements session.Store.
func (s *Store) EndSession(_ context.Context, sessionID string, endedAt time.Time) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, errors.New("session id is required")
	}
	if endedAt.IsZero() {
		return session.Session{}, errors.New("ended_at is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	if existing.Status == session.StatusEnded {
		return existing.Clone(), nil
	}
	at := endedAt.UTC()
	existing.Status = session.StatusEnded
	existing.EndedAt = &at
	s.sessions[sessionID] = existing
	delete(s.pending, sessionID)
	return existing.Clone(), nil
}

// SetPending implements session.Store.
func (s *Store) SetPending(_ context.Context, sessionID string, p session.Pending) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	if p.ActionID == "" {
		return errors.New("action id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[sessionID]
	if !ok {
		return session.ErrSessionNotFound
	}
	if existing.Status == session.StatusEnded {
		return session.ErrSessionEnded
	}
	s.pending[sessionID] = p.Clone()
	return nil
}

// PendingFor implements session.Store.
func (s *Store) PendingFor(_ context.Context, sessionID string) (session.Pending, error) {
	if sessionID == "" {
		return session.Pending{}, errors.New("session id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return session.Pending{}, session.ErrSessionNotFound
	}
	p, ok := s.pending[sessionID]
	if !ok {
		return session.Pending{}, session.ErrNoPending
	}
	return p.Clone(), nil
}

// ClearPending implements session.Store.
func (s *Store) ClearPending(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return session.ErrSessionNotFound
	}
	delete(s.pending, sessionID)
	return nil
}
