package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jjbrunton/garminconnect-webapi/internal/activity"
	"github.com/jjbrunton/garminconnect-webapi/internal/auth"
	"github.com/jjbrunton/garminconnect-webapi/internal/syncer"
)

// authTokenRequest is the body for POST /api/v1/auth/token.
type authTokenRequest struct {
	Password string `json:"password"`
}

// handleAuthToken exchanges the configured API password for a bearer token.
func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if !s.secCfg.Auth.Enabled {
		writeBadRequest(w, "API auth is disabled; no token required")
		return
	}

	var req authTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	match, err := auth.VerifyPassword(req.Password, s.secCfg.Auth.PasswordHash)
	if err != nil {
		s.logger.Error("password verification failed", "error", err)
		writeInternalError(w, "password verification failed")
		return
	}
	if !match {
		writeUnauthorized(w, "invalid password")
		return
	}

	token, err := auth.GenerateToken(s.secCfg.Auth.JWTSecret, s.secCfg.Auth.TokenTTL)
	if err != nil {
		writeInternalError(w, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   s.secCfg.Auth.TokenTTL * 60,
	})
}

// handleHealth reports per-component health.
//
// GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}
	healthy := true

	check := func(name string, err error) {
		if err != nil {
			components[name] = err.Error()
			healthy = false
			return
		}
		components[name] = "ok"
	}

	if s.db != nil {
		check("database", s.db.HealthCheck(r.Context()))
	}
	if s.mqtt != nil {
		check("mqtt", s.mqtt.HealthCheck(r.Context()))
	}
	if s.influx != nil {
		check("influxdb", s.influx.HealthCheck(r.Context()))
	}

	if s.garmin.LoggedIn() {
		components["garmin_session"] = "ok"
	} else {
		// Not logged in is a state, not a failure.
		components["garmin_session"] = "not_logged_in"
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

// handleSyncTrigger queues a sync run.
//
// POST /api/v1/sync
func (s *Server) handleSyncTrigger(w http.ResponseWriter, _ *http.Request) {
	if s.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable,
			"background sync is disabled")
		return
	}

	status := "queued"
	if err := s.syncer.TriggerSync(activity.ReasonManual); err != nil {
		if !errors.Is(err, syncer.ErrSyncInProgress) {
			writeInternalError(w, err.Error())
			return
		}
		status = "already_queued"
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": status})
}

// handleSyncStatus reports the most recent sync run.
//
// GET /api/v1/sync/status
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	run, err := s.repo.LatestSyncRun(r.Context())
	if err != nil {
		if errors.Is(err, activity.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "never_run"})
			return
		}
		writeInternalError(w, err.Error())
		return
	}

	status := "ok"
	if run.FinishedAt == nil {
		status = "running"
	} else if run.Error != "" {
		status = "failed"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"last_run": run,
	})
}
