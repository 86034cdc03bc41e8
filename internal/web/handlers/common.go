package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/kozaktomas/facemark/internal/embedder"
	"github.com/kozaktomas/facemark/internal/engine"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps engine errors onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, engine.ErrSessionNotActive):
		respondError(w, http.StatusConflict, "session is not active")
	case engine.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, embedder.ErrNoFace):
		respondError(w, http.StatusBadRequest, "no face detected in image")
	case errors.Is(err, embedder.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, "embedding server unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// round1 rounds to one decimal place for confidence percentages.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// round4 rounds to four decimal places for distances. Infinite distances
// (empty candidate set) are reported as -1.
func round4(v float64) float64 {
	if math.IsInf(v, 1) {
		return -1
	}
	return math.Round(v*10000) / 10000
}
