package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facemark/internal/engine"
	"github.com/kozaktomas/facemark/internal/store"
)

// SessionsHandler serves session lifecycle endpoints.
type SessionsHandler struct {
	engine *engine.Engine
}

// NewSessionsHandler creates a sessions handler.
func NewSessionsHandler(eng *engine.Engine) *SessionsHandler {
	return &SessionsHandler{engine: eng}
}

// CreateSessionRequest represents a session creation request.
type CreateSessionRequest struct {
	Subject         string `json:"subject"`
	Department      string `json:"department"`
	Year            string `json:"year"`
	Division        string `json:"division"`
	Date            string `json:"date"`
	DurationMinutes int    `json:"duration_minutes"`
}

// RosterEntryResponse is one expected student in a session.
type RosterEntryResponse struct {
	IdentityID string `json:"identity_id"`
	Name       string `json:"name"`
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID               string                `json:"id"`
	Subject          string                `json:"subject"`
	Department       string                `json:"department,omitempty"`
	Year             string                `json:"year,omitempty"`
	Division         string                `json:"division,omitempty"`
	Date             string                `json:"date,omitempty"`
	DurationMinutes  int                   `json:"duration_minutes"`
	Status           string                `json:"status"`
	CreatedAt        time.Time             `json:"created_at"`
	EndsAt           time.Time             `json:"ends_at"`
	EndedAt          *time.Time            `json:"ended_at,omitempty"`
	RemainingMinutes int                   `json:"remaining_minutes"`
	ExpectedCount    int                   `json:"expected_count"`
	Roster           []RosterEntryResponse `json:"roster,omitempty"`
}

func (h *SessionsHandler) sessionResponse(session *store.Session, withRoster bool) SessionResponse {
	resp := SessionResponse{
		ID:               session.ID,
		Subject:          session.Subject,
		Department:       session.Scope.Department,
		Year:             session.Scope.Year,
		Division:         session.Scope.Division,
		Date:             session.Date,
		DurationMinutes:  session.DurationMinutes,
		Status:           string(session.Status),
		CreatedAt:        session.CreatedAt,
		EndsAt:           session.EndsAt,
		EndedAt:          session.EndedAt,
		RemainingMinutes: h.engine.Sessions.Remaining(session),
		ExpectedCount:    len(session.Roster),
	}
	if withRoster {
		for _, entry := range session.Roster {
			resp.Roster = append(resp.Roster, RosterEntryResponse{
				IdentityID: entry.IdentityID,
				Name:       entry.Name,
			})
		}
	}
	return resp
}

// Create starts a new attendance session.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	session, err := h.engine.Sessions.Create(r.Context(), engine.CreateSessionParams{
		Subject:         req.Subject,
		Date:            req.Date,
		DurationMinutes: req.DurationMinutes,
		Scope: store.Scope{
			Department: req.Department,
			Year:       req.Year,
			Division:   req.Division,
		},
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.sessionResponse(session, true))
}

// Status returns the current state of a session.
func (h *SessionsHandler) Status(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.sessionResponse(session, true))
}

// End closes a session before its deadline. Ending an already closed
// session returns the current state unchanged.
func (h *SessionsHandler) End(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.Sessions.End(r.Context(), id); err != nil {
		respondEngineError(w, err)
		return
	}
	session, err := h.engine.Sessions.Get(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.sessionResponse(session, false))
}

// Finalize marks an ended session's attendance as complete.
func (h *SessionsHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.Sessions.Finalize(r.Context(), id); err != nil {
		respondEngineError(w, err)
		return
	}
	session, err := h.engine.Sessions.Get(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.sessionResponse(session, false))
}

// List returns active sessions, optionally filtered by scope query params.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := store.Scope{
		Department: r.URL.Query().Get("department"),
		Year:       r.URL.Query().Get("year"),
		Division:   r.URL.Query().Get("division"),
	}

	sessions, err := h.engine.Sessions.ListActive(r.Context(), scope)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	responses := make([]SessionResponse, 0, len(sessions))
	for i := range sessions {
		responses = append(responses, h.sessionResponse(&sessions[i], false))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(responses),
		"sessions": responses,
	})
}

// AttendanceRecordResponse represents one attendance record.
type AttendanceRecordResponse struct {
	IdentityID string    `json:"identity_id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Confidence float64   `json:"confidence"`
	MarkedAt   time.Time `json:"marked_at"`
}

// Attendance returns the attendance report for a session.
func (h *SessionsHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	session, records, err := h.engine.Attendance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, err)
		return
	}

	present := make(map[string]bool, len(records))
	recordResponses := make([]AttendanceRecordResponse, 0, len(records))
	for _, record := range records {
		present[record.IdentityID] = true
		recordResponses = append(recordResponses, AttendanceRecordResponse{
			IdentityID: record.IdentityID,
			Name:       record.Name,
			Status:     record.Status,
			Confidence: round1(record.Confidence),
			MarkedAt:   record.MarkedAt,
		})
	}

	// Expected students without a record are reported absent.
	absent := make([]RosterEntryResponse, 0)
	for _, entry := range session.Roster {
		if !present[entry.IdentityID] {
			absent = append(absent, RosterEntryResponse{
				IdentityID: entry.IdentityID,
				Name:       entry.Name,
			})
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session":       h.sessionResponse(session, false),
		"present_count": len(recordResponses),
		"absent_count":  len(absent),
		"records":       recordResponses,
		"absent":        absent,
	})
}
