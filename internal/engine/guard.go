package engine

import (
	"context"
	"errors"
	"log"

	"github.com/kozaktomas/facemark/internal/metrics"
	"github.com/kozaktomas/facemark/internal/store"
)

// DuplicateGuard enforces at-most-once attendance per (session, identity).
//
// The protocol is read-then-insert: the read is an advisory fast path that
// avoids a write for identities already marked, while the storage
// uniqueness constraint behind the insert is the sole arbiter when two
// requests race through the read window.
type DuplicateGuard struct {
	attendance store.AttendanceStore
	recorder   *AttendanceRecorder
}

// NewDuplicateGuard creates a guard using the given recorder for inserts.
func NewDuplicateGuard(attendance store.AttendanceStore, recorder *AttendanceRecorder) *DuplicateGuard {
	return &DuplicateGuard{attendance: attendance, recorder: recorder}
}

// ClaimResult is the outcome of a claim attempt. When Claimed is false the
// identity was already present; Record then refers to the existing record
// when it could be loaded.
type ClaimResult struct {
	Claimed bool
	Record  *store.AttendanceRecord
}

// ClaimOrReject records attendance for the identity unless it is already
// present in the session. A uniqueness conflict from the store means a
// concurrent request won the race; it is reported as already-present, not
// as an error.
func (g *DuplicateGuard) ClaimOrReject(ctx context.Context, sessionID, identityID, name string, confidence float64) (ClaimResult, error) {
	records, err := g.attendance.QueryAttendance(ctx, sessionID)
	if err != nil {
		return ClaimResult{}, storageError("reading session attendance", err)
	}
	for i := range records {
		if records[i].IdentityID == identityID {
			return ClaimResult{Record: &records[i]}, nil
		}
	}

	record, err := g.recorder.Record(ctx, sessionID, identityID, name, confidence)
	if errors.Is(err, ErrDuplicateAttendance) {
		metrics.ClaimConflicts.Inc()
		log.Printf("Storage constraint resolved concurrent claim for identity %s in session %s", identityID, sessionID)
		return ClaimResult{Record: g.findRecord(ctx, sessionID, identityID)}, nil
	}
	if err != nil {
		return ClaimResult{}, err
	}
	return ClaimResult{Claimed: true, Record: record}, nil
}

// findRecord fetches the existing record after a lost race. Best effort:
// the duplicate outcome stands even if the re-read fails.
func (g *DuplicateGuard) findRecord(ctx context.Context, sessionID, identityID string) *store.AttendanceRecord {
	records, err := g.attendance.QueryAttendance(ctx, sessionID)
	if err != nil {
		return nil
	}
	for i := range records {
		if records[i].IdentityID == identityID {
			return &records[i]
		}
	}
	return nil
}
