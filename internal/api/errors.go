package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jjbrunton/garminconnect-webapi/internal/activity"
	"github.com/jjbrunton/garminconnect-webapi/internal/garmin"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeInternal        = "internal_error"
	ErrCodeNotLoggedIn     = "not_logged_in"
	ErrCodeAuthentication  = "authentication_error"
	ErrCodeTooManyRequests = "too_many_requests"
	ErrCodeUpstream        = "upstream_error"
	ErrCodeUnavailable     = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeGarminError maps an upstream Garmin error onto the API's status
// codes: auth failures 401, rate limiting 429, connectivity 502, missing
// cache rows 404, anything else 500.
func writeGarminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, garmin.ErrNotLoggedIn), errors.Is(err, garmin.ErrTokenStoreEmpty):
		writeError(w, http.StatusUnauthorized, ErrCodeNotLoggedIn,
			"Not logged in. Use /login first.")
	case errors.Is(err, garmin.ErrAuthentication):
		writeError(w, http.StatusUnauthorized, ErrCodeAuthentication, err.Error())
	case errors.Is(err, garmin.ErrMFARequired):
		// Surfaces only when the caller declined the resume flow.
		writeError(w, http.StatusUnauthorized, ErrCodeAuthentication,
			"MFA required. Retry with return_on_mfa and complete /login/resume.")
	case errors.Is(err, garmin.ErrTooManyRequests):
		writeError(w, http.StatusTooManyRequests, ErrCodeTooManyRequests,
			"Garmin is rate limiting requests. Try again later.")
	case errors.Is(err, garmin.ErrConnection):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	case errors.Is(err, activity.ErrNotFound):
		writeNotFound(w, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
