// Package runlog provides a durable, append-only record of plan runs.
//
// The run log is the canonical source of truth for run introspection.
// Executors append entries as runs execute (through the Recorder bus
// subscriber) and callers list them using opaque cursors.
package runlog

import (
	"context"
	"encoding/json"
	"time"

	"goa.design/maestro/runtime/events"
)

type (
	// Entry is a single immutable run log record.
	//
	// Store implementations assign the ID when persisting the entry. IDs
	// are opaque, monotonically ordered within a run, and suitable for
	// cursor-based pagination.
	Entry struct {
		// ID is the store-assigned opaque identifier for this entry.
		ID string
		// RunID is the run this entry belongs to.
		RunID string
		// SessionID groups related runs into a conversation thread.
		SessionID string
		// Type is the lifecycle phase of the recorded event.
		Type events.Type
		// Kind reports whether the entry describes a plan run or an
		// action invocation.
		Kind events.Kind
		// Name is the action ID for action entries, the run ID for plan
		// entries.
		Name string
		// InvocationID identifies the recorded invocation attempt.
		InvocationID string
		// ParentInvocationID links action entries to their plan
		// invocation.
		ParentInvocationID string
		// DurationMS is the duration of terminal events, zero otherwise.
		DurationMS int64
		// Payload is the JSON-encoded type-specific event payload.
		Payload json.RawMessage
		// Timestamp is the event time.
		Timestamp time.Time
	}

	// Page is a forward page of run log entries.
	Page struct {
		// Entries are ordered oldest-first.
		Entries []*Entry
		// NextCursor fetches the next page; empty when there are no
		// further entries.
		NextCursor string
	}

	// Store is an append-only entry store for run introspection.
	//
	// Implementations must provide stable ordering within a run. Cursor
	// values are store-owned and opaque to callers.
	Store interface {
		// Append stores the entry in the run log.
		//
		// Store implementations assign the entry ID and persist the
		// payload verbatim. Append must be durable: failures surface to
		// callers so runs can fail fast when canonical logging is
		// unavailable.
		Append(ctx context.Context, e *Entry) error

		// List returns the next forward page of entries for the run.
		//
		// Cursor is an opaque value returned by a previous List, or
		// empty to start from the beginning. Limit must be greater than
		// zero.
		List(ctx context.Context, runID string, cursor string, limit int) (Page, error)
	}
)
