// Package mock provides an in-memory implementation of store.Store for
// testing. It mirrors the semantics the engine relies on: ErrNotFound for
// unknown sessions, ErrConflict under the attendance uniqueness constraint,
// and status-guarded session transitions.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/facemark/internal/store"
)

// Store is an in-memory store.Store with error injection.
type Store struct {
	mu         sync.Mutex
	identities []store.Identity
	sessions   map[string]*store.Session
	attendance map[string]map[string]store.AttendanceRecord // session -> identity -> record

	// Error injection
	QueryIdentitiesError  error
	GetSessionError       error
	InsertSessionError    error
	UpdateSessionError    error
	ListSessionsError     error
	InsertAttendanceError error
	QueryAttendanceError  error
	PingError             error

	// Call counters for cache tests
	QueryIdentitiesCalls int
}

// New creates an empty mock store.
func New() *Store {
	return &Store{
		sessions:   make(map[string]*store.Session),
		attendance: make(map[string]map[string]store.AttendanceRecord),
	}
}

// AddIdentity registers an identity in the mock roster.
func (s *Store) AddIdentity(id store.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = append(s.identities, id)
}

// QueryIdentities returns identities matching the scope that have embeddings.
func (s *Store) QueryIdentities(ctx context.Context, scope store.Scope) ([]store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueryIdentitiesCalls++
	if s.QueryIdentitiesError != nil {
		return nil, s.QueryIdentitiesError
	}

	var result []store.Identity
	for _, id := range s.identities {
		if len(id.Embeddings) == 0 {
			continue
		}
		if !scopeMatches(scope, id.Scope) {
			continue
		}
		result = append(result, id)
	}
	return result, nil
}

func scopeMatches(filter, target store.Scope) bool {
	if filter.Department != "" && filter.Department != target.Department {
		return false
	}
	if filter.Year != "" && filter.Year != target.Year {
		return false
	}
	if filter.Division != "" && filter.Division != target.Division {
		return false
	}
	return true
}

// InsertSession stores a session.
func (s *Store) InsertSession(ctx context.Context, session *store.Session) error {
	if s.InsertSessionError != nil {
		return s.InsertSessionError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

// GetSession returns a copy of the stored session or store.ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	if s.GetSessionError != nil {
		return nil, s.GetSessionError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

// UpdateSessionStatus transitions a session if it is in the expected status.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, from, to store.SessionStatus, endedAt *time.Time) (bool, error) {
	if s.UpdateSessionError != nil {
		return false, s.UpdateSessionError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if session.Status != from {
		return false, nil
	}
	session.Status = to
	if endedAt != nil {
		t := *endedAt
		session.EndedAt = &t
	}
	return true, nil
}

// ListSessions returns sessions with the given status matching the scope.
func (s *Store) ListSessions(ctx context.Context, status store.SessionStatus, scope store.Scope) ([]store.Session, error) {
	if s.ListSessionsError != nil {
		return nil, s.ListSessionsError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []store.Session
	for _, session := range s.sessions {
		if session.Status != status {
			continue
		}
		if !scopeMatches(scope, session.Scope) {
			continue
		}
		result = append(result, *session)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// InsertAttendance inserts a record, returning store.ErrConflict when a
// record already exists for the (session, identity) pair. The check and
// insert happen under one lock, matching the atomicity of the database
// unique constraint.
func (s *Store) InsertAttendance(ctx context.Context, record *store.AttendanceRecord) error {
	if s.InsertAttendanceError != nil {
		return s.InsertAttendanceError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	bySession, ok := s.attendance[record.SessionID]
	if !ok {
		bySession = make(map[string]store.AttendanceRecord)
		s.attendance[record.SessionID] = bySession
	}
	if _, exists := bySession[record.IdentityID]; exists {
		return store.ErrConflict
	}
	bySession[record.IdentityID] = *record
	return nil
}

// QueryAttendance returns all records for a session, newest first.
func (s *Store) QueryAttendance(ctx context.Context, sessionID string) ([]store.AttendanceRecord, error) {
	if s.QueryAttendanceError != nil {
		return nil, s.QueryAttendanceError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []store.AttendanceRecord
	for _, record := range s.attendance[sessionID] {
		result = append(result, record)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MarkedAt.After(result[j].MarkedAt)
	})
	return result, nil
}

// Ping reports injected connectivity errors.
func (s *Store) Ping(ctx context.Context) error {
	return s.PingError
}
