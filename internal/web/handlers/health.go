package handlers

import (
	"context"
	"net/http"
)

// Pinger reports storage connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports embedding server readiness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler serves the health endpoint with per-dependency status.
type HealthHandler struct {
	store    Pinger
	embedder HealthChecker
}

// NewHealthHandler creates a health handler. Either dependency may be nil.
func NewHealthHandler(store Pinger, embedder HealthChecker) *HealthHandler {
	return &HealthHandler{store: store, embedder: embedder}
}

// Check reports overall and per-dependency health. Storage failure makes
// the service unhealthy; a degraded embedder still allows raw-embedding
// submissions, so it only degrades the status.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	result := map[string]string{"status": "ok"}

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			result["status"] = "unhealthy"
			result["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			result["database"] = "ok"
		}
	}

	if h.embedder != nil {
		if err := h.embedder.Health(r.Context()); err != nil {
			if result["status"] == "ok" {
				result["status"] = "degraded"
			}
			result["embedder"] = err.Error()
		} else {
			result["embedder"] = "ok"
		}
	}

	respondJSON(w, status, result)
}
