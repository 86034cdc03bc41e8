// Package store defines the persistent data model for attendance tracking
// and the interfaces the engine consumes. Concrete backends live in
// subpackages (postgres for production, mock for tests).
package store

import (
	"fmt"
	"time"
)

// Scope identifies the roster subset a session or cache entry applies to.
// All filters are optional; an empty field matches everything.
type Scope struct {
	Department string
	Year       string
	Division   string
}

// Key returns a stable cache key for the scope. Empty components are
// included so distinct filters never collide.
func (s Scope) Key() string {
	return fmt.Sprintf("department=%s|year=%s|division=%s", s.Department, s.Year, s.Division)
}

// IsZero reports whether no filter is set.
func (s Scope) IsZero() bool {
	return s.Department == "" && s.Year == "" && s.Division == ""
}

// Identity represents a registered person with one or more stored embeddings.
type Identity struct {
	ID         string
	Name       string
	Scope      Scope
	Embeddings [][]float32
	Dim        int
	CreatedAt  time.Time
}

// SessionStatus is the lifecycle state of an attendance session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionEnded     SessionStatus = "ended"
	SessionFinalized SessionStatus = "finalized"
)

// Session is a time-boxed attendance window for a scoped roster.
type Session struct {
	ID              string
	Scope           Scope
	Subject         string
	Date            string
	DurationMinutes int
	CreatedAt       time.Time
	EndsAt          time.Time
	EndedAt         *time.Time
	Status          SessionStatus

	// Roster is the expected student list snapshotted at creation time.
	// Informational only; it does not gate matching.
	Roster []RosterEntry
}

// RosterEntry is a single expected identity in a session roster snapshot.
type RosterEntry struct {
	IdentityID string
	Name       string
}

// AttendanceRecord is a confirmed presence event. At most one record with
// status "present" may exist per (session, identity) pair; the database
// unique constraint enforces this.
type AttendanceRecord struct {
	ID         string
	SessionID  string
	IdentityID string
	Name       string
	Status     string
	Confidence float64
	MarkedAt   time.Time
}

// AttendancePresent is the status stamped on records created by the engine.
const AttendancePresent = "present"
