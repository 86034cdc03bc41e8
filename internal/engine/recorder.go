package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/facemark/internal/store"
)

// AttendanceRecorder persists confirmed attendance events. Records carry
// the server-observed timestamp, never a client-supplied one.
type AttendanceRecorder struct {
	attendance store.AttendanceStore
	now        func() time.Time
}

// NewAttendanceRecorder creates a recorder over the given attendance store.
func NewAttendanceRecorder(attendance store.AttendanceStore) *AttendanceRecorder {
	return &AttendanceRecorder{
		attendance: attendance,
		now:        time.Now,
	}
}

// Record inserts a "present" record for (session, identity). A storage
// uniqueness conflict is returned as ErrDuplicateAttendance; any other
// persistence failure as a StorageError.
func (r *AttendanceRecorder) Record(ctx context.Context, sessionID, identityID, name string, confidence float64) (*store.AttendanceRecord, error) {
	record := &store.AttendanceRecord{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		IdentityID: identityID,
		Name:       name,
		Status:     store.AttendancePresent,
		Confidence: confidence,
		MarkedAt:   r.now().UTC(),
	}

	if err := r.attendance.InsertAttendance(ctx, record); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrDuplicateAttendance
		}
		return nil, storageError("inserting attendance record", err)
	}
	return record, nil
}
