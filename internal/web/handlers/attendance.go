package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/facemark/internal/engine"
)

// maxImageBytes caps decoded capture uploads.
const maxImageBytes = 10 << 20

// Embedder computes a face embedding from image bytes.
type Embedder interface {
	ComputeFaceEmbedding(ctx context.Context, imageData []byte) ([]float32, error)
}

// AttendanceHandler serves recognition endpoints.
type AttendanceHandler struct {
	engine   *engine.Engine
	embedder Embedder
}

// NewAttendanceHandler creates an attendance handler.
func NewAttendanceHandler(eng *engine.Engine, emb Embedder) *AttendanceHandler {
	return &AttendanceHandler{engine: eng, embedder: emb}
}

// MarkRequest represents a camera capture submission.
type MarkRequest struct {
	SessionID string `json:"session_id"`
	Image     string `json:"image"` // base64, optionally a data URL
}

// MatchEmbeddingRequest represents a raw embedding submission.
type MatchEmbeddingRequest struct {
	SessionID string    `json:"session_id"`
	Embedding []float32 `json:"embedding"`
}

// MatchOutcomeResponse represents the result of a recognition attempt.
type MatchOutcomeResponse struct {
	Status     string     `json:"status"`
	IdentityID string     `json:"identity_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Distance   float64    `json:"distance"`
	Confidence float64    `json:"confidence"`
	MarkedAt   *time.Time `json:"marked_at,omitempty"`
}

func outcomeResponse(outcome engine.MatchOutcome) MatchOutcomeResponse {
	resp := MatchOutcomeResponse{
		Status:     string(outcome.Status),
		IdentityID: outcome.IdentityID,
		Name:       outcome.Name,
		Distance:   round4(outcome.Distance),
		Confidence: round1(outcome.Confidence),
	}
	if !outcome.MarkedAt.IsZero() {
		t := outcome.MarkedAt
		resp.MarkedAt = &t
	}
	return resp
}

// decodeImage decodes a base64 image, tolerating a data URL prefix.
func decodeImage(encoded string) ([]byte, error) {
	if idx := strings.Index(encoded, ","); idx != -1 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
}

// Mark accepts a camera capture, computes its face embedding, and submits
// it against the session.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	if h.embedder == nil {
		respondError(w, http.StatusServiceUnavailable, "face recognition not available")
		return
	}

	var req MarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.Image == "" {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}

	imageData, err := decodeImage(req.Image)
	if err != nil {
		respondError(w, http.StatusBadRequest, "image must be valid base64")
		return
	}
	if len(imageData) > maxImageBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}

	embedding, err := h.embedder.ComputeFaceEmbedding(r.Context(), imageData)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	h.submit(w, r, req.SessionID, embedding)
}

// Match submits a precomputed embedding against the session. Used by edge
// clients that run face detection locally.
func (h *AttendanceHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req MatchEmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if len(req.Embedding) == 0 {
		respondError(w, http.StatusBadRequest, "embedding is required")
		return
	}

	h.submit(w, r, req.SessionID, req.Embedding)
}

func (h *AttendanceHandler) submit(w http.ResponseWriter, r *http.Request, sessionID string, embedding []float32) {
	outcome, err := h.engine.SubmitMatch(r.Context(), sessionID, embedding)
	if err != nil {
		log.Printf("Match against session %s failed: %v", sanitizeForLog(sessionID), err)
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcomeResponse(outcome))
}
