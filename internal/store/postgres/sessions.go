package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/facemark/internal/store"
)

// InsertSession stores a session and its roster snapshot in one transaction.
func (s *Store) InsertSession(ctx context.Context, session *store.Session) error {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_sessions
			(id, subject, department, year, division, date, duration_minutes, created_at, ends_at, ended_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, session.ID, session.Subject,
		session.Scope.Department, session.Scope.Year, session.Scope.Division,
		session.Date, session.DurationMinutes, session.CreatedAt, session.EndsAt,
		nullableTime(session.EndedAt), string(session.Status))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, entry := range session.Roster {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_roster (session_id, identity_id, name) VALUES ($1, $2, $3)
		`, session.ID, entry.IdentityID, entry.Name); err != nil {
			return fmt.Errorf("insert roster entry %s: %w", entry.IdentityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetSession returns a session with its roster snapshot.
func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	var session store.Session
	var endedAt sql.NullTime
	var status string

	err := s.pool.QueryRow(ctx, `
		SELECT id, subject, department, year, division, date, duration_minutes, created_at, ends_at, ended_at, status
		FROM attendance_sessions
		WHERE id = $1
	`, id).Scan(&session.ID, &session.Subject,
		&session.Scope.Department, &session.Scope.Year, &session.Scope.Division,
		&session.Date, &session.DurationMinutes, &session.CreatedAt, &session.EndsAt, &endedAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	session.Status = store.SessionStatus(status)
	if endedAt.Valid {
		t := endedAt.Time
		session.EndedAt = &t
	}

	rows, err := s.pool.Query(ctx, `
		SELECT identity_id, name FROM session_roster WHERE session_id = $1 ORDER BY name
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry store.RosterEntry
		if err := rows.Scan(&entry.IdentityID, &entry.Name); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		session.Roster = append(session.Roster, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roster: %w", err)
	}

	return &session, nil
}

// UpdateSessionStatus transitions a session from one status to another.
// The WHERE clause on the current status makes the transition a no-op when
// another path (manual end vs. auto-close) already performed it.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, from, to store.SessionStatus, endedAt *time.Time) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE attendance_sessions
		SET status = $1, ended_at = COALESCE($2, ended_at)
		WHERE id = $3 AND status = $4
	`, string(to), nullableTime(endedAt), id, string(from))
	if err != nil {
		return false, fmt.Errorf("update session status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	// Distinguish "wrong status" from "unknown session".
	var exists bool
	if err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM attendance_sessions WHERE id = $1)
	`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking session existence: %w", err)
	}
	if !exists {
		return false, store.ErrNotFound
	}
	return false, nil
}

// ListSessions returns sessions with the given status, optionally filtered
// by scope, without roster snapshots.
func (s *Store) ListSessions(ctx context.Context, status store.SessionStatus, scope store.Scope) ([]store.Session, error) {
	query := `
		SELECT id, subject, department, year, division, date, duration_minutes, created_at, ends_at, ended_at, status
		FROM attendance_sessions
		WHERE status = $1
	`
	args := []any{string(status)}
	if scope.Department != "" {
		args = append(args, scope.Department)
		query += fmt.Sprintf(" AND department = $%d", len(args))
	}
	if scope.Year != "" {
		args = append(args, scope.Year)
		query += fmt.Sprintf(" AND year = $%d", len(args))
	}
	if scope.Division != "" {
		args = append(args, scope.Division)
		query += fmt.Sprintf(" AND division = $%d", len(args))
	}
	query += " ORDER BY created_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []store.Session
	for rows.Next() {
		var session store.Session
		var endedAt sql.NullTime
		var st string
		if err := rows.Scan(&session.ID, &session.Subject,
			&session.Scope.Department, &session.Scope.Year, &session.Scope.Division,
			&session.Date, &session.DurationMinutes, &session.CreatedAt, &session.EndsAt, &endedAt, &st); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.Status = store.SessionStatus(st)
		if endedAt.Valid {
			t := endedAt.Time
			session.EndedAt = &t
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
