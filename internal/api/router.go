package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Liveness probe, path kept compatible with the original container.
	r.Get("/healthz", s.handleHealthz)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// No auth: token exchange and component health.
		r.Get("/health", s.handleHealth)
		r.Post("/auth/token", s.handleAuthToken)

		// Protected routes (pass-through when auth is disabled).
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/login", s.handleLogin)
			r.Post("/login/resume", s.handleLoginResume)

			r.Get("/summary", s.handleSummary)
			r.Get("/whoami", s.handleWhoami)

			r.Route("/activities", func(r chi.Router) {
				r.Get("/", s.handleActivities)
				r.Get("/cached", s.handleActivitiesCached)
				r.Get("/{id}/download", s.handleActivityDownload)
				r.Get("/{id}/track", s.handleActivityTrack)
			})

			r.Post("/sync", s.handleSyncTrigger)
			r.Get("/sync/status", s.handleSyncStatus)

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealthz is the liveness probe: process up, nothing else implied.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
