package api

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jjbrunton/garminconnect-webapi/internal/activity"
	"github.com/jjbrunton/garminconnect-webapi/internal/garmin"
)

// Activity list paging bounds.
const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// handleSummary returns the daily wellness summary for one calendar date.
//
// GET /api/v1/summary?cdate=YYYY-MM-DD
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	cdate := r.URL.Query().Get("cdate")
	if cdate == "" {
		writeBadRequest(w, "cdate query parameter is required")
		return
	}
	if _, err := time.Parse("2006-01-02", cdate); err != nil {
		writeBadRequest(w, "cdate must be YYYY-MM-DD")
		return
	}

	summary, err := s.garmin.UserSummary(r.Context(), cdate)
	if err != nil {
		writeGarminError(w, err)
		return
	}

	// Cache write-through; a cache failure never fails the request.
	if err := s.repo.UpsertDailySummary(r.Context(), cdate, summary); err != nil {
		s.logger.Warn("failed to cache daily summary", "cdate", cdate, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": summary})
}

// handleActivities lists activities from Garmin Connect.
//
// GET /api/v1/activities?start=0&limit=20&activitytype=running
func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	start, limit, ok := activityPaging(w, r)
	if !ok {
		return
	}
	activityType := r.URL.Query().Get("activitytype")

	docs, err := s.garmin.Activities(r.Context(), start, limit, activityType)
	if err != nil {
		writeGarminError(w, err)
		return
	}

	for _, doc := range docs {
		if _, err := s.repo.UpsertActivity(r.Context(), doc); err != nil {
			s.logger.Warn("failed to cache activity", "error", err)
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": docs})
}

// handleActivitiesCached lists activities from the local cache only. Works
// without a Garmin session, which makes it useful when Garmin is down or
// rate limiting.
//
// GET /api/v1/activities/cached?start=0&limit=20&activitytype=running
func (s *Server) handleActivitiesCached(w http.ResponseWriter, r *http.Request) {
	start, limit, ok := activityPaging(w, r)
	if !ok {
		return
	}

	activities, err := s.repo.ListActivities(r.Context(), activity.ListFilter{
		ActivityType: r.URL.Query().Get("activitytype"),
		Start:        start,
		Limit:        limit,
	})
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	if activities == nil {
		activities = []activity.Activity{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": activities})
}

// handleActivityDownload exports an activity and returns it base64-encoded
// in a JSON envelope.
//
// GET /api/v1/activities/{id}/download?fmt=ORIGINAL|TCX|GPX|KML|CSV
//
// fmt defaults to TCX when omitted.
func (s *Server) handleActivityDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		writeBadRequest(w, "activity id must be numeric")
		return
	}

	format := garmin.FormatTCX
	if raw := r.URL.Query().Get("fmt"); raw != "" {
		var ok bool
		format, ok = garmin.ParseDownloadFormat(raw)
		if !ok {
			writeBadRequest(w, "fmt must be one of ORIGINAL, TCX, GPX, KML, CSV")
			return
		}
	}

	data, err := s.garmin.DownloadActivity(r.Context(), id, format)
	if err != nil {
		writeGarminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"activity_id": id,
		"format":      string(format),
		"data_base64": base64.StdEncoding.EncodeToString(data),
	})
}

// handleActivityTrack downloads the original FIT recording, decodes it, and
// returns the GPS trace as a GPX document.
//
// GET /api/v1/activities/{id}/track
func (s *Server) handleActivityTrack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		writeBadRequest(w, "activity id must be numeric")
		return
	}

	data, err := s.garmin.DownloadActivity(r.Context(), id, garmin.FormatOriginal)
	if err != nil {
		writeGarminError(w, err)
		return
	}

	track, err := activity.DecodeTrack(data)
	if err != nil {
		writeInternalError(w, fmt.Sprintf("decoding activity recording: %v", err))
		return
	}

	name := "Activity " + id
	if cached, err := s.repo.GetActivity(r.Context(), numericID); err == nil && cached.Name != "" {
		name = cached.Name
	}

	gpx, err := activity.RenderGPX(track, name)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/gpx+xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".gpx"))
	w.WriteHeader(http.StatusOK)
	w.Write(gpx) //nolint:errcheck // Best-effort write to response
}

// handleWhoami returns the account holder's name and measurement system.
//
// GET /api/v1/whoami
func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	fullName, err := s.garmin.FullName(r.Context())
	if err != nil {
		writeGarminError(w, err)
		return
	}
	unitSystem, err := s.garmin.UnitSystem(r.Context())
	if err != nil {
		writeGarminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"full_name":   fullName,
		"unit_system": unitSystem,
	})
}

// activityPaging parses and validates start/limit. On failure it writes the
// error response and returns ok=false.
func activityPaging(w http.ResponseWriter, r *http.Request) (start, limit int, ok bool) {
	start, limit = 0, defaultActivityLimit

	if v := r.URL.Query().Get("start"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "start must be a non-negative integer")
			return 0, 0, false
		}
		start = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxActivityLimit {
			writeBadRequest(w, fmt.Sprintf("limit must be between 1 and %d", maxActivityLimit))
			return 0, 0, false
		}
		limit = n
	}
	return start, limit, true
}
