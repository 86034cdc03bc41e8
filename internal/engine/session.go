package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/facemark/internal/metrics"
	"github.com/kozaktomas/facemark/internal/store"
)

// Session duration bounds in minutes.
const (
	MinSessionMinutes = 5
	MaxSessionMinutes = 120
)

// Field length limits matching the session table columns.
const (
	maxSubjectLen    = 50
	maxDepartmentLen = 50
	maxYearLen       = 20
	maxDivisionLen   = 10
)

const autoCloseTimeout = 10 * time.Second

// CreateSessionParams are the caller-supplied attributes of a new session.
type CreateSessionParams struct {
	Scope           store.Scope
	Subject         string
	Date            string
	DurationMinutes int
}

// SessionManager owns session creation, status transitions, and auto-close
// scheduling. Each active session has at most one pending timer; ending a
// session cancels it, and a stale timer firing after a manual end is a
// no-op because the store transition is guarded by the current status.
type SessionManager struct {
	sessions store.SessionStore
	roster   store.IdentityReader
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewSessionManager creates a session manager over the given stores.
func NewSessionManager(sessions store.SessionStore, roster store.IdentityReader) *SessionManager {
	return &SessionManager{
		sessions: sessions,
		roster:   roster,
		now:      time.Now,
		timers:   make(map[string]*time.Timer),
	}
}

// Create validates the parameters, snapshots the expected roster for the
// scope, persists the session, and schedules the auto-close timer.
func (m *SessionManager) Create(ctx context.Context, params CreateSessionParams) (*store.Session, error) {
	if params.DurationMinutes < MinSessionMinutes || params.DurationMinutes > MaxSessionMinutes {
		return nil, validationError("duration_minutes", "must be between %d and %d minutes, got %d",
			MinSessionMinutes, MaxSessionMinutes, params.DurationMinutes)
	}
	if params.Subject == "" {
		return nil, validationError("subject", "must not be empty")
	}
	if len(params.Subject) > maxSubjectLen {
		return nil, validationError("subject", "must be at most %d characters", maxSubjectLen)
	}
	if len(params.Scope.Department) > maxDepartmentLen {
		return nil, validationError("department", "must be at most %d characters", maxDepartmentLen)
	}
	if len(params.Scope.Year) > maxYearLen {
		return nil, validationError("year", "must be at most %d characters", maxYearLen)
	}
	if len(params.Scope.Division) > maxDivisionLen {
		return nil, validationError("division", "must be at most %d characters", maxDivisionLen)
	}

	now := m.now()
	duration := time.Duration(params.DurationMinutes) * time.Minute

	session := &store.Session{
		ID:              uuid.NewString(),
		Scope:           params.Scope,
		Subject:         params.Subject,
		Date:            params.Date,
		DurationMinutes: params.DurationMinutes,
		CreatedAt:       now,
		EndsAt:          now.Add(duration),
		Status:          store.SessionActive,
	}

	// Expected roster snapshot; informational, does not gate matching.
	if !params.Scope.IsZero() {
		identities, err := m.roster.QueryIdentities(ctx, params.Scope)
		if err != nil {
			return nil, storageError("snapshotting session roster", err)
		}
		for _, identity := range identities {
			session.Roster = append(session.Roster, store.RosterEntry{
				IdentityID: identity.ID,
				Name:       identity.Name,
			})
		}
	}

	if err := m.sessions.InsertSession(ctx, session); err != nil {
		return nil, storageError("inserting session", err)
	}

	m.schedule(session.ID, duration)
	metrics.SessionsCreated.Inc()
	log.Printf("Created session %s (%s) with %d expected students, auto-close in %d minutes",
		session.ID, session.Subject, len(session.Roster), params.DurationMinutes)

	return session, nil
}

// End transitions a session to ended and cancels its auto-close timer.
// Idempotent: ending an already ended or finalized session succeeds
// without side effects.
func (m *SessionManager) End(ctx context.Context, id string) error {
	session, err := m.get(ctx, id)
	if err != nil {
		return err
	}

	if session.Status != store.SessionActive {
		m.cancelTimer(id)
		return nil
	}

	endedAt := m.now()
	if _, err := m.sessions.UpdateSessionStatus(ctx, id, store.SessionActive, store.SessionEnded, &endedAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		return storageError("ending session", err)
	}

	// Cancel regardless of whether this call or the timer won the
	// transition; both converge on the same terminal state.
	m.cancelTimer(id)
	return nil
}

// Finalize transitions an ended session to finalized. Finalizing an
// already finalized session succeeds; an active session cannot be
// finalized directly.
func (m *SessionManager) Finalize(ctx context.Context, id string) error {
	session, err := m.get(ctx, id)
	if err != nil {
		return err
	}

	switch session.Status {
	case store.SessionFinalized:
		return nil
	case store.SessionActive:
		return validationError("status", "session must be ended before it can be finalized")
	}

	if _, err := m.sessions.UpdateSessionStatus(ctx, id, store.SessionEnded, store.SessionFinalized, nil); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		return storageError("finalizing session", err)
	}
	return nil
}

// Get returns the session, lazily ending it when its deadline has passed
// but the auto-close timer has not been observed yet. Both paths converge
// on the same stored state.
func (m *SessionManager) Get(ctx context.Context, id string) (*store.Session, error) {
	session, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Status == store.SessionActive && !m.now().Before(session.EndsAt) {
		endedAt := session.EndsAt
		if _, err := m.sessions.UpdateSessionStatus(ctx, id, store.SessionActive, store.SessionEnded, &endedAt); err != nil {
			return nil, storageError("expiring session", err)
		}
		m.cancelTimer(id)
		session.Status = store.SessionEnded
		session.EndedAt = &endedAt
	}

	return session, nil
}

// Remaining returns the minutes left before the session deadline, rounded
// up so a just-created session reports its full duration. Zero for
// sessions that are not active.
func (m *SessionManager) Remaining(session *store.Session) int {
	if session.Status != store.SessionActive {
		return 0
	}
	left := session.EndsAt.Sub(m.now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Minute - 1) / time.Minute)
}

// ListActive returns active sessions matching the scope filters.
func (m *SessionManager) ListActive(ctx context.Context, scope store.Scope) ([]store.Session, error) {
	sessions, err := m.sessions.ListSessions(ctx, store.SessionActive, scope)
	if err != nil {
		return nil, storageError("listing sessions", err)
	}
	return sessions, nil
}

// RestoreTimers reschedules auto-close for active sessions found in the
// store, closing overdue ones immediately. Called once at process start so
// sessions survive restarts.
func (m *SessionManager) RestoreTimers(ctx context.Context) error {
	sessions, err := m.sessions.ListSessions(ctx, store.SessionActive, store.Scope{})
	if err != nil {
		return storageError("restoring session timers", err)
	}

	now := m.now()
	for _, session := range sessions {
		left := session.EndsAt.Sub(now)
		if left <= 0 {
			m.autoClose(session.ID)
			continue
		}
		m.schedule(session.ID, left)
	}
	return nil
}

// Close stops all pending auto-close timers. Sessions are left untouched;
// RestoreTimers picks them up on the next start.
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, timer := range m.timers {
		timer.Stop()
		delete(m.timers, id)
	}
}

func (m *SessionManager) get(ctx context.Context, id string) (*store.Session, error) {
	session, err := m.sessions.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, storageError("loading session", err)
	}
	return session, nil
}

func (m *SessionManager) schedule(id string, in time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timer, ok := m.timers[id]; ok {
		timer.Stop()
	}
	m.timers[id] = time.AfterFunc(in, func() { m.autoClose(id) })
}

func (m *SessionManager) cancelTimer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timer, ok := m.timers[id]; ok {
		timer.Stop()
		delete(m.timers, id)
	}
}

// autoClose is the timer callback. The status-guarded store update makes
// it harmless when a manual end already closed the session.
func (m *SessionManager) autoClose(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), autoCloseTimeout)
	defer cancel()

	endedAt := m.now()
	changed, err := m.sessions.UpdateSessionStatus(ctx, id, store.SessionActive, store.SessionEnded, &endedAt)
	if err != nil {
		log.Printf("Auto-close of session %s failed: %v", id, err)
		return
	}

	m.mu.Lock()
	delete(m.timers, id)
	m.mu.Unlock()

	if changed {
		metrics.SessionsAutoClosed.Inc()
		log.Printf("Session %s auto-closed after timeout", id)
	}
}
