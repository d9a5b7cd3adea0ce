// Package session defines durable conversational session state: the
// explicit session lifecycle and the pending-parameter exchange that
// collects missing action arguments across turns.
//
// Session IDs are stable and caller-provided. Sessions are created and
// ended explicitly; ended sessions are terminal and must not accept new
// runs or pending state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"goa.design/maestro/runtime/action"
)

type (
	// Status is the lifecycle state of a session.
	Status string

	// Session captures durable session lifecycle state.
	Session struct {
		// ID is the durable identifier of the session.
		ID string
		// Status is the current lifecycle state.
		Status Status
		// CreatedAt records when the session was created.
		CreatedAt time.Time
		// EndedAt is set when the session is ended.
		EndedAt *time.Time
	}

	// ParamRequest asks the user for one missing action parameter.
	ParamRequest struct {
		// Name is the parameter name.
		Name string
		// TypeID is the binder type of the expected value.
		TypeID string
		// Prompt is the question presented to the user.
		Prompt string
		// Examples holds example values.
		Examples []string
	}

	// Pending is the parameter collection state of a session: the action
	// waiting to run, the parameters still missing and the values
	// gathered so far.
	Pending struct {
		// ActionID is the action waiting on parameters.
		ActionID action.ID
		// Missing lists the parameters still to collect.
		Missing []ParamRequest
		// Collected holds the values gathered so far, keyed by
		// parameter name.
		Collected map[string]json.RawMessage
		// CreatedAt records when the collection started.
		CreatedAt time.Time
	}

	// Store persists sessions and their pending-parameter state.
	//
	// Implementations must be durable: failures are surfaced to callers
	// so hosts can fail fast when session state is unavailable.
	Store interface {
		// CreateSession creates (or returns) an active session.
		//
		// Contract:
		// - Idempotent for active sessions: returns the existing session.
		// - Returns ErrSessionEnded when the session exists but is terminal.
		CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (Session, error)
		// LoadSession loads an existing session.
		// Returns ErrSessionNotFound when the session does not exist.
		LoadSession(ctx context.Context, sessionID string) (Session, error)
		// EndSession ends a session and returns its terminal state.
		// Idempotent: ending an already-ended session returns the stored
		// session.
		EndSession(ctx context.Context, sessionID string, endedAt time.Time) (Session, error)

		// SetPending stores the pending-parameter state of an active
		// session, replacing any previous state. Returns
		// ErrSessionNotFound for unknown sessions and ErrSessionEnded
		// for ended ones.
		SetPending(ctx context.Context, sessionID string, p Pending) error
		// PendingFor loads the pending-parameter state. Returns
		// ErrNoPending when the session carries none and
		// ErrSessionNotFound for unknown sessions.
		PendingFor(ctx context.Context, sessionID string) (Pending, error)
		// ClearPending removes the pending-parameter state. Clearing a
		// session without state is not an error; unknown sessions return
		// ErrSessionNotFound.
		ClearPending(ctx context.Context, sessionID string) error
	}
)

const (
	// StatusActive indicates the session is open for new runs.
	StatusActive Status = "active"
	// StatusEnded indicates the session is terminal.
	StatusEnded Status = "ended"
)

var (
	// ErrSessionNotFound indicates a session does not exist in the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded indicates a session exists but is ended.
	ErrSessionEnded = errors.New("session ended")
	// ErrNoPending indicates a session has no pending-parameter state.
	ErrNoPending = errors.New("no pending parameters")
)

// Clone returns a deep copy of the pending state.
func (p Pending) Clone() Pending {
	out := p
	if len(p.Missing) > 0 {
		out.Missing = make([]ParamRequest, len(p.Missing))
		copy(out.Missing, p.Missing)
		for i, m := range p.Missing {
			if len(m.Examples) > 0 {
				out.Missing[i].Examples = append([]string{}, m.Examples...)
			}
		}
	}
	if len(p.Collected) > 0 {
		out.Collected = make(map[string]json.RawMessage, len(p.Collected))
		for k, v := range p.Collected {
			out.Collected[k] = append(json.RawMessage{}, v...)
		}
	}
	return out
}

// Clone returns a copy of the session.
func (s Session) Clone() Session {
	out := s
	if s.EndedAt != nil {
		at := *s.EndedAt
		out.EndedAt = &at
	}
	return out
}
