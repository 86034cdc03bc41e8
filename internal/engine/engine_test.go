package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kozaktomas/facemark/internal/store"
	"github.com/kozaktomas/facemark/internal/store/mock"
)

func newTestEngine(t *testing.T, st *mock.Store) *Engine {
	t.Helper()
	e := New(st, Config{Threshold: 0.6})
	t.Cleanup(e.Close)
	return e
}

func seedRoster(st *mock.Store) {
	st.AddIdentity(store.Identity{
		ID: "alice", Name: "Alice",
		Scope:      store.Scope{Department: "CS", Year: "2", Division: "A"},
		Embeddings: [][]float32{{1, 0, 0}},
	})
	st.AddIdentity(store.Identity{
		ID: "bob", Name: "Bob",
		Scope:      store.Scope{Department: "CS", Year: "2", Division: "A"},
		Embeddings: [][]float32{{0, 1, 0}},
	})
}

func TestSubmitMatchMarksPresent(t *testing.T) {
	st := mock.New()
	seedRoster(st)
	e := newTestEngine(t, st)
	ctx := context.Background()

	session, err := e.Sessions.Create(ctx, CreateSessionParams{
		Subject: "Algorithms", DurationMinutes: 30,
		Scope: store.Scope{Department: "CS", Year: "2", Division: "A"},
	})
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := e.SubmitMatch(ctx, session.ID, []float32{1, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status != StatusMarkedPresent {
		t.Fatalf("status = %q, want marked_present", outcome.Status)
	}
	if outcome.IdentityID != "alice" {
		t.Errorf("matched %q, want alice", outcome.IdentityID)
	}
	if outcome.Confidence != 100 {
		t.Errorf("confidence = %f, want 100", outcome.Confidence)
	}
	if outcome.MarkedAt.IsZero() {
		t.Error("MarkedAt is zero")
	}

	records, err := st.QueryAttendance(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].IdentityID != "alice" {
		t.Errorf("records = %+v, want one record for alice", records)
	}
	if records[0].Status != store.AttendancePresent {
		t.Errorf("record status = %q, want present", records[0].Status)
	}
}

func TestSubmitMatchDuplicate(t *testing.T) {
	st := mock.New()
	seedRoster(st)
	e := newTestEngine(t, st)
	ctx := context.Background()

	session, err := e.Sessions.Create(ctx, CreateSessionParams{
		Subject: "Algorithms", DurationMinutes: 30,
		Scope: store.Scope{Department: "CS", Year: "2", Division: "A"},
	})
	if err != nil {
		t.Fatal(err)
	}

	first, err := e.SubmitMatch(ctx, session.ID, []float32{1, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.SubmitMatch(ctx, session.ID, []float32{1, 0, 0})
	if err != nil {
		t.Fatal(err)
	}

	if second.Status != StatusDuplicate {
		t.Fatalf("second status = %q, want duplicate", second.Status)
	}
	if second.IdentityID != "alice" {
		t.Errorf("duplicate identity = %q, want alice", second.IdentityID)
	}
	if !second.MarkedAt.Equal(first.MarkedAt) {
		t.Errorf("duplicate MarkedAt = %v, want original %v", second.MarkedAt, first.MarkedAt)
	}

	records, _ := st.QueryAttendance(ctx, session.ID)
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}

func TestSubmitMatchNoMatch(t *testing.T) {
	st := mock.New()
	seedRoster(st)
	e := newTestEngine(t, st)
	ctx := context.Background()

	session, err := e.Sessions.Create(ctx, CreateSessionParams{
		Subject: "Algorithms", DurationMinutes: 30,
		Scope: store.Scope{Department: "CS", Year: "2", Division: "A"},
	})
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := e.SubmitMatch(ctx, session.ID, []float32{0, 0, 1})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status != StatusNoMatch {
		t.Fatalf("status = %q, want no_match", outcome.Status)
	}
	if outcome.IdentityID != "" {
		t.Errorf("no_match outcome carries identity %q", outcome.IdentityID)
	}

	records, _ := st.QueryAttendance(ctx, session.ID)
	if len(records) != 0 {
		t.Errorf("no_match created %d records, want 0", len(records))
	}
}

func TestSubmitMatchSessionGating(t *testing.T) {
	st := mock.New()
	seedRoster(st)
	e := newTestEngine(t, st)
	ctx := context.Background()

	if _, err := e.SubmitMatch(ctx, "nope", []float32{1, 0, 0}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session: got %v, want ErrSessionNotFound", err)
	}

	session, err := e.Sessions.Create(ctx, CreateSessionParams{
		Subject: "Algorithms", DurationMinutes: 30,
		Scope: store.Scope{Department: "CS", Year: "2", Division: "A"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Sessions.End(ctx, session.ID); err != nil {
		t.Fatal(err)
	}

	outcome, err := e.SubmitMatch(ctx, session.ID, []float32{1, 0, 0})
	if !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("ended session: got %v, want ErrSessionNotActive", err)
	}
	if outcome.Status != StatusError {
		t.Errorf("outcome status = %q, want error", outcome.Status)
	}

	records, _ := st.QueryAttendance(ctx, session.ID)
	if len(records) != 0 {
		t.Errorf("ended session accepted %d records", len(records))
	}
}

func TestSubmitMatchDimensionMismatch(t *testing.T) {
	st := mock.New()
	seedRoster(st)
	e := newTestEngine(t, st)
	ctx := context.Background()

	session, err := e.Sessions.Create(ctx, CreateSessionParams{
		Subject: "Algorithms", DurationMinutes: 30,
		Scope: store.Scope{Department: "CS", Year: "2", Division: "A"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.SubmitMatch(ctx, session.ID, []float32{1, 0}); !IsValidation(err) {
		t.Errorf("got %v, want validation error", err)
	}
}

func TestSubmitMatchConcurrentSameIdentity(t *testing.T) {
	st := mock.New()
	seedRoster(st)
	e := newTestEngine(t, st)
	ctx := context.Background()

	session, err := e.Sessions.Create(ctx, CreateSessionParams{
		Subject: "Algorithms", DurationMinutes: 30,
		Scope: store.Scope{Department: "CS", Year: "2", Division: "A"},
	})
	if err != nil {
		t.Fatal(err)
	}

	const workers = 16
	outcomes := make([]MatchOutcome, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = e.SubmitMatch(ctx, session.ID, []float32{1, 0, 0})
		}(i)
	}
	wg.Wait()

	var present, duplicate int
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		switch outcomes[i].Status {
		case StatusMarkedPresent:
			present++
		case StatusDuplicate:
			duplicate++
		default:
			t.Errorf("worker %d: unexpected status %q", i, outcomes[i].Status)
		}
	}
	if present != 1 {
		t.Errorf("marked_present count = %d, want exactly 1", present)
	}
	if duplicate != workers-1 {
		t.Errorf("duplicate count = %d, want %d", duplicate, workers-1)
	}

	records, _ := st.QueryAttendance(ctx, session.ID)
	if len(records) != 1 {
		t.Errorf("got %d records, want exactly 1", len(records))
	}
}

func TestClaimOrRejectAdvisoryFastPath(t *testing.T) {
	st := mock.New()
	recorder := NewAttendanceRecorder(st)
	guard := NewDuplicateGuard(st, recorder)
	ctx := context.Background()

	first, err := guard.ClaimOrReject(ctx, "s1", "alice", "Alice", 92.5)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Claimed || first.Record == nil {
		t.Fatalf("first claim = %+v, want claimed with record", first)
	}

	second, err := guard.ClaimOrReject(ctx, "s1", "alice", "Alice", 88.0)
	if err != nil {
		t.Fatal(err)
	}
	if second.Claimed {
		t.Error("second claim succeeded, want rejection")
	}
	if second.Record == nil || second.Record.ID != first.Record.ID {
		t.Errorf("rejection record = %+v, want the original record", second.Record)
	}

	// A different identity in the same session is unaffected.
	other, err := guard.ClaimOrReject(ctx, "s1", "bob", "Bob", 90.0)
	if err != nil {
		t.Fatal(err)
	}
	if !other.Claimed {
		t.Error("distinct identity claim was rejected")
	}
}

func TestRecorderMapsConflict(t *testing.T) {
	st := mock.New()
	recorder := NewAttendanceRecorder(st)
	ctx := context.Background()

	if _, err := recorder.Record(ctx, "s1", "alice", "Alice", 90); err != nil {
		t.Fatal(err)
	}
	if _, err := recorder.Record(ctx, "s1", "alice", "Alice", 90); !errors.Is(err, ErrDuplicateAttendance) {
		t.Errorf("got %v, want ErrDuplicateAttendance", err)
	}

	st.InsertAttendanceError = errors.New("disk full")
	if _, err := recorder.Record(ctx, "s2", "alice", "Alice", 90); !IsStorage(err) {
		t.Errorf("got %v, want storage error", err)
	}
}

func TestAttendanceReport(t *testing.T) {
	st := mock.New()
	seedRoster(st)
	e := newTestEngine(t, st)
	ctx := context.Background()

	session, err := e.Sessions.Create(ctx, CreateSessionParams{
		Subject: "Algorithms", DurationMinutes: 30,
		Scope: store.Scope{Department: "CS", Year: "2", Division: "A"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.SubmitMatch(ctx, session.ID, []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}

	got, records, err := e.Attendance(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != session.ID {
		t.Errorf("session ID = %q, want %q", got.ID, session.ID)
	}
	if len(records) != 1 || records[0].Name != "Alice" {
		t.Errorf("records = %+v, want one record for Alice", records)
	}

	if _, _, err := e.Attendance(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session: got %v, want ErrSessionNotFound", err)
	}
}
