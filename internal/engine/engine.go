// Package engine implements the attendance session and matching core:
// session lifecycle with timed auto-close, TTL-cached scoped candidate
// sets, nearest-neighbor identity matching, and duplicate-safe attendance
// recording.
package engine

import (
	"context"
	"time"

	"github.com/kozaktomas/facemark/internal/metrics"
	"github.com/kozaktomas/facemark/internal/store"
)

// DefaultThreshold is the maximum cosine distance accepted as a positive
// identity match when no threshold is configured.
const DefaultThreshold = 0.6

// OutcomeStatus classifies the result of a recognition attempt.
type OutcomeStatus string

const (
	StatusMarkedPresent OutcomeStatus = "marked_present"
	StatusDuplicate     OutcomeStatus = "duplicate"
	StatusNoMatch       OutcomeStatus = "no_match"
	StatusError         OutcomeStatus = "error"
)

// MatchOutcome is the result of SubmitMatch. Identity fields are empty for
// no_match; Distance carries the observed minimum in every case so
// near-misses stay visible.
type MatchOutcome struct {
	Status     OutcomeStatus
	IdentityID string
	Name       string
	Distance   float64
	Confidence float64
	MarkedAt   time.Time
}

// Config carries the engine tuning knobs. Zero values fall back to the
// package defaults.
type Config struct {
	Threshold  float64
	CacheTTL   time.Duration
	HNSWCutoff int
}

// Engine wires the session manager, embedding cache, matcher and duplicate
// guard into the recognition flow consumed by the transport layer.
type Engine struct {
	Sessions *SessionManager
	Cache    *EmbeddingCache

	store     store.Store
	guard     *DuplicateGuard
	threshold float64
}

// New creates an engine over the given store.
func New(st store.Store, cfg Config) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}

	recorder := NewAttendanceRecorder(st)
	return &Engine{
		Sessions:  NewSessionManager(st, st),
		Cache:     NewEmbeddingCache(st, cfg.CacheTTL, cfg.HNSWCutoff),
		store:     st,
		guard:     NewDuplicateGuard(st, recorder),
		threshold: cfg.Threshold,
	}
}

// Threshold returns the configured maximum matching distance.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// SubmitMatch resolves a query embedding against the session's scoped
// roster and records attendance for the matched identity at most once.
func (e *Engine) SubmitMatch(ctx context.Context, sessionID string, query []float32) (MatchOutcome, error) {
	session, err := e.Sessions.Get(ctx, sessionID)
	if err != nil {
		return e.fail(err)
	}
	if session.Status != store.SessionActive {
		return e.fail(ErrSessionNotActive)
	}

	candidates, err := e.Cache.Get(ctx, session.Scope)
	if err != nil {
		return e.fail(err)
	}

	match, err := FindBestMatch(query, candidates, e.threshold)
	if err != nil {
		return e.fail(err)
	}

	if !match.Found {
		metrics.MatchOutcomes.WithLabelValues(string(StatusNoMatch)).Inc()
		return MatchOutcome{
			Status:     StatusNoMatch,
			Distance:   match.Distance,
			Confidence: match.Confidence,
		}, nil
	}

	claim, err := e.guard.ClaimOrReject(ctx, sessionID, match.Candidate.IdentityID, match.Candidate.Name, match.Confidence)
	if err != nil {
		return e.fail(err)
	}

	outcome := MatchOutcome{
		IdentityID: match.Candidate.IdentityID,
		Name:       match.Candidate.Name,
		Distance:   match.Distance,
		Confidence: match.Confidence,
	}
	if claim.Claimed {
		outcome.Status = StatusMarkedPresent
	} else {
		outcome.Status = StatusDuplicate
	}
	if claim.Record != nil {
		outcome.MarkedAt = claim.Record.MarkedAt
	}

	metrics.MatchOutcomes.WithLabelValues(string(outcome.Status)).Inc()
	return outcome, nil
}

// Attendance returns the session and its attendance records, newest first.
func (e *Engine) Attendance(ctx context.Context, sessionID string) (*store.Session, []store.AttendanceRecord, error) {
	session, err := e.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	records, err := e.store.QueryAttendance(ctx, sessionID)
	if err != nil {
		return nil, nil, storageError("reading session attendance", err)
	}
	return session, records, nil
}

// Close releases engine resources (pending auto-close timers).
func (e *Engine) Close() {
	e.Sessions.Close()
}

func (e *Engine) fail(err error) (MatchOutcome, error) {
	metrics.MatchOutcomes.WithLabelValues(string(StatusError)).Inc()
	return MatchOutcome{Status: StatusError}, err
}
