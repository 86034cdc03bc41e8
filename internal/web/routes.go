package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facemark/internal/metrics"
	"github.com/kozaktomas/facemark/internal/web/handlers"
)

func (s *Server) setupRoutes(emb handlers.Embedder, pinger handlers.Pinger, embHealth handlers.HealthChecker) {
	sessionsHandler := handlers.NewSessionsHandler(s.engine)
	attendanceHandler := handlers.NewAttendanceHandler(s.engine, emb)
	healthHandler := handlers.NewHealthHandler(pinger, embHealth)

	s.router.Get("/health", healthHandler.Check)
	s.router.Method("GET", "/metrics", metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		// Sessions
		r.Post("/sessions", sessionsHandler.Create)
		r.Get("/sessions", sessionsHandler.List)
		r.Get("/sessions/{id}", sessionsHandler.Status)
		r.Post("/sessions/{id}/end", sessionsHandler.End)
		r.Post("/sessions/{id}/finalize", sessionsHandler.Finalize)
		r.Get("/sessions/{id}/attendance", sessionsHandler.Attendance)

		// Recognition
		r.Post("/attendance/mark", attendanceHandler.Mark)
		r.Post("/attendance/match", attendanceHandler.Match)
	})
}
