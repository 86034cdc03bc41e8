package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/kozaktomas/facemark/internal/store"
)

// pq error code for unique constraint violations.
const uniqueViolation = "23505"

// InsertAttendance inserts a presence record. A violation of the
// (session_id, identity_id) unique constraint is returned as
// store.ErrConflict so the engine can treat the race loser as a duplicate
// rather than a failure.
func (s *Store) InsertAttendance(ctx context.Context, record *store.AttendanceRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance_records (id, session_id, identity_id, name, status, confidence, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, record.ID, record.SessionID, record.IdentityID, record.Name,
		record.Status, record.Confidence, record.MarkedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return store.ErrConflict
		}
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

// QueryAttendance returns all records for a session, newest first.
func (s *Store) QueryAttendance(ctx context.Context, sessionID string) ([]store.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, identity_id, name, status, confidence, marked_at
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY marked_at DESC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []store.AttendanceRecord
	for rows.Next() {
		var record store.AttendanceRecord
		if err := rows.Scan(&record.ID, &record.SessionID, &record.IdentityID,
			&record.Name, &record.Status, &record.Confidence, &record.MarkedAt); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attendance records: %w", err)
	}
	return records, nil
}
