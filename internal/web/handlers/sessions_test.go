package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facemark/internal/engine"
	"github.com/kozaktomas/facemark/internal/store"
	"github.com/kozaktomas/facemark/internal/store/mock"
)

// newSessionsRouter mounts the sessions handler on a chi router so URL
// params resolve like in production.
func newSessionsRouter(t *testing.T, st *mock.Store) (*chi.Mux, *engine.Engine) {
	t.Helper()
	eng := engine.New(st, engine.Config{})
	t.Cleanup(eng.Close)

	h := NewSessionsHandler(eng)
	r := chi.NewRouter()
	r.Post("/api/v1/sessions", h.Create)
	r.Get("/api/v1/sessions", h.List)
	r.Get("/api/v1/sessions/{id}", h.Status)
	r.Post("/api/v1/sessions/{id}/end", h.End)
	r.Post("/api/v1/sessions/{id}/finalize", h.Finalize)
	r.Get("/api/v1/sessions/{id}/attendance", h.Attendance)
	return r, eng
}

func seededStore() *mock.Store {
	st := mock.New()
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
	return st
}

func createSession(t *testing.T, router *chi.Mux, body string) SessionResponse {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/sessions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)
	var resp SessionResponse
	parseJSONResponse(t, recorder, &resp)
	return resp
}

func TestSessionsHandler_Create(t *testing.T) {
	router, _ := newSessionsRouter(t, seededStore())

	resp := createSession(t, router, `{
		"subject": "Algorithms",
		"department": "CS", "year": "2", "division": "A",
		"date": "2026-03-02",
		"duration_minutes": 45
	}`)

	if resp.ID == "" {
		t.Error("response has no session id")
	}
	if resp.Status != "active" {
		t.Errorf("status = %q, want active", resp.Status)
	}
	if resp.ExpectedCount != 2 {
		t.Errorf("expected_count = %d, want 2", resp.ExpectedCount)
	}
	if len(resp.Roster) != 2 {
		t.Errorf("roster has %d entries, want 2", len(resp.Roster))
	}
	if resp.RemainingMinutes != 45 {
		t.Errorf("remaining_minutes = %d, want 45", resp.RemainingMinutes)
	}
}

func TestSessionsHandler_CreateValidation(t *testing.T) {
	router, _ := newSessionsRouter(t, mock.New())

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json}`},
		{"duration too short", `{"subject": "Math", "duration_minutes": 4}`},
		{"duration too long", `{"subject": "Math", "duration_minutes": 121}`},
		{"missing subject", `{"duration_minutes": 45}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/sessions", bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, req)
			assertStatusCode(t, recorder, http.StatusBadRequest)
		})
	}
}

func TestSessionsHandler_StatusNotFound(t *testing.T) {
	router, _ := newSessionsRouter(t, mock.New())

	req := httptest.NewRequest("GET", "/api/v1/sessions/missing", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
	assertJSONError(t, recorder, "session not found")
}

func TestSessionsHandler_EndAndFinalize(t *testing.T) {
	router, _ := newSessionsRouter(t, seededStore())
	session := createSession(t, router, `{"subject": "Math", "duration_minutes": 30}`)

	req := httptest.NewRequest("POST", "/api/v1/sessions/"+session.ID+"/end", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	var ended SessionResponse
	parseJSONResponse(t, recorder, &ended)
	if ended.Status != "ended" {
		t.Errorf("status after end = %q, want ended", ended.Status)
	}
	if ended.EndedAt == nil {
		t.Error("ended session has no ended_at")
	}
	if ended.RemainingMinutes != 0 {
		t.Errorf("remaining_minutes after end = %d, want 0", ended.RemainingMinutes)
	}

	// Ending again is idempotent.
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest("POST", "/api/v1/sessions/"+session.ID+"/end", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest("POST", "/api/v1/sessions/"+session.ID+"/finalize", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var finalized SessionResponse
	parseJSONResponse(t, recorder, &finalized)
	if finalized.Status != "finalized" {
		t.Errorf("status after finalize = %q, want finalized", finalized.Status)
	}
}

func TestSessionsHandler_FinalizeActiveSession(t *testing.T) {
	router, _ := newSessionsRouter(t, seededStore())
	session := createSession(t, router, `{"subject": "Math", "duration_minutes": 30}`)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest("POST", "/api/v1/sessions/"+session.ID+"/finalize", nil))
	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestSessionsHandler_List(t *testing.T) {
	router, _ := newSessionsRouter(t, seededStore())
	createSession(t, router, `{"subject": "Math", "duration_minutes": 30, "department": "CS"}`)
	ended := createSession(t, router, `{"subject": "Physics", "duration_minutes": 30, "department": "EE"}`)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest("POST", "/api/v1/sessions/"+ended.ID+"/end", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/sessions?department=CS", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Count    int               `json:"count"`
		Sessions []SessionResponse `json:"sessions"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Count != 1 || len(resp.Sessions) != 1 {
		t.Fatalf("count = %d, sessions = %d, want 1 each", resp.Count, len(resp.Sessions))
	}
	if resp.Sessions[0].Subject != "Math" {
		t.Errorf("listed subject = %q, want Math", resp.Sessions[0].Subject)
	}
}

func TestSessionsHandler_AttendanceReport(t *testing.T) {
	st := seededStore()
	router, eng := newSessionsRouter(t, st)
	session := createSession(t, router, `{
		"subject": "Algorithms",
		"department": "CS", "year": "2", "division": "A",
		"duration_minutes": 45
	}`)

	if _, err := eng.SubmitMatch(httptest.NewRequest("GET", "/", nil).Context(), session.ID, []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/sessions/"+session.ID+"/attendance", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		PresentCount int                        `json:"present_count"`
		AbsentCount  int                        `json:"absent_count"`
		Records      []AttendanceRecordResponse `json:"records"`
		Absent       []RosterEntryResponse      `json:"absent"`
	}
	parseJSONResponse(t, recorder, &resp)

	if resp.PresentCount != 1 || len(resp.Records) != 1 {
		t.Fatalf("present_count = %d, records = %d, want 1 each", resp.PresentCount, len(resp.Records))
	}
	if resp.Records[0].Name != "Alice" {
		t.Errorf("present student = %q, want Alice", resp.Records[0].Name)
	}
	if resp.AbsentCount != 1 || len(resp.Absent) != 1 || resp.Absent[0].Name != "Bob" {
		t.Errorf("absent = %+v (count %d), want only Bob", resp.Absent, resp.AbsentCount)
	}
}
