package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested session does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates the attendance
// uniqueness constraint. The engine treats it as "already present",
// never as a failure.
var ErrConflict = errors.New("conflict")

// IdentityReader provides read access to the registered identity roster.
type IdentityReader interface {
	// QueryIdentities returns identities matching the scope filters,
	// restricted to identities that have at least one stored embedding.
	// A zero scope returns all identities.
	QueryIdentities(ctx context.Context, scope Scope) ([]Identity, error)
}

// SessionStore persists attendance sessions.
type SessionStore interface {
	InsertSession(ctx context.Context, session *Session) error

	// GetSession returns ErrNotFound for unknown IDs.
	GetSession(ctx context.Context, id string) (*Session, error)

	// UpdateSessionStatus transitions a session from one status to another.
	// Returns false if the session was not in the expected status, which
	// makes concurrent close paths (manual end vs. auto-close timer)
	// idempotent: only one of them observes the transition.
	UpdateSessionStatus(ctx context.Context, id string, from, to SessionStatus, endedAt *time.Time) (bool, error)

	// ListSessions returns sessions with the given status, optionally
	// restricted by scope filters.
	ListSessions(ctx context.Context, status SessionStatus, scope Scope) ([]Session, error)
}

// AttendanceStore persists confirmed attendance events.
type AttendanceStore interface {
	// InsertAttendance returns ErrConflict if a record already exists
	// for (session, identity).
	InsertAttendance(ctx context.Context, record *AttendanceRecord) error

	// QueryAttendance returns all records for a session, newest first.
	QueryAttendance(ctx context.Context, sessionID string) ([]AttendanceRecord, error)
}

// Store is the full persistence surface the engine depends on.
type Store interface {
	IdentityReader
	SessionStore
	AttendanceStore

	Ping(ctx context.Context) error
}
