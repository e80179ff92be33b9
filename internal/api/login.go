package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jjbrunton/garminconnect-webapi/internal/garmin"
)

// loginRequest is the body for POST /api/v1/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IsCN     bool   `json:"is_cn"`

	// ReturnOnMFA selects the needs_mfa/resume flow. When false an
	// MFA-protected account fails login outright.
	ReturnOnMFA bool `json:"return_on_mfa"`
}

// loginResumeRequest is the body for POST /api/v1/login/resume.
type loginResumeRequest struct {
	ClientState *garmin.MFAState `json:"client_state"`
	MFACode     string           `json:"mfa_code"`
}

// handleLogin establishes a Garmin session.
//
// Persisted tokens are tried first: when the token store holds a valid
// session no credentials are needed and none are sent to Garmin. Otherwise
// a full SSO login runs; an MFA-protected account gets a needs_mfa response
// whose client_state must be echoed back to /login/resume.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.IsCN != (s.garmin.Domain() == "garmin.cn") {
		writeBadRequest(w, "is_cn does not match the configured garmin domain")
		return
	}

	// Token store short-circuit.
	if err := s.garmin.LoginFromStore(r.Context(), s.tokens); err == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"source": "token_store",
		})
		return
	} else if !errors.Is(err, garmin.ErrTokenStoreEmpty) {
		s.logger.Warn("token store login failed, falling back to credentials", "error", err)
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnauthorized, ErrCodeNotLoggedIn,
			"No stored session. Provide email and password.")
		return
	}

	state, err := s.garmin.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, garmin.ErrMFARequired) && state != nil && req.ReturnOnMFA {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":       "needs_mfa",
				"client_state": state,
			})
			return
		}
		writeGarminError(w, err)
		return
	}

	s.persistTokens()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"source": "credentials",
	})
}

// handleLoginResume completes a login that stopped at an MFA challenge.
func (s *Server) handleLoginResume(w http.ResponseWriter, r *http.Request) {
	var req loginResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ClientState == nil || req.MFACode == "" {
		writeBadRequest(w, "client_state and mfa_code are required")
		return
	}

	if err := s.garmin.ResumeLogin(r.Context(), req.ClientState, req.MFACode); err != nil {
		writeGarminError(w, err)
		return
	}

	s.persistTokens()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// persistTokens saves the session to the token store. Best effort: a full
// disk or read-only volume must not fail a login that already succeeded.
func (s *Server) persistTokens() {
	if err := s.garmin.SaveTokens(s.tokens); err != nil {
		s.logger.Warn("failed to persist garmin tokens",
			"path", s.tokens.Dir(), "error", err)
	}
}
