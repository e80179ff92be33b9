package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jjbrunton/garminconnect-webapi/internal/activity"
	"github.com/jjbrunton/garminconnect-webapi/internal/auth"
	"github.com/jjbrunton/garminconnect-webapi/internal/garmin"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/config"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/database"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/logging"
	"github.com/jjbrunton/garminconnect-webapi/internal/syncer"
	"github.com/jjbrunton/garminconnect-webapi/internal/tokenstore"
	_ "github.com/jjbrunton/garminconnect-webapi/migrations"
)

// fakeUpstream stands in for the Garmin SSO host and Connect API gateway.
type fakeUpstream struct {
	*httptest.Server

	mfaRequired bool
	badPassword bool
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()

	f := &fakeUpstream{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /sso/embed", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "GARMIN-SSO", Value: "1"})
		fmt.Fprint(w, "<html></html>")
	})
	mux.HandleFunc("GET /sso/signin", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><title>Sign In</title><input name="_csrf" value="csrf-1"></html>`)
	})
	mux.HandleFunc("POST /sso/signin", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case f.badPassword:
			fmt.Fprint(w, `<html><title>Sign In Failure</title></html>`)
		case f.mfaRequired:
			fmt.Fprint(w, `<html><title>MFA Required</title><input name="_csrf" value="csrf-mfa"></html>`)
		default:
			fmt.Fprint(w, `<html><title>Success</title><a href="embed?ticket=ticket-123"></a></html>`)
		}
	})
	mux.HandleFunc("POST /sso/verifyMFA/loginEnterMfaCode", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("mfa-code") != "123456" {
			fmt.Fprint(w, `<html><title>MFA Required</title></html>`)
			return
		}
		fmt.Fprint(w, `<html><title>Success</title><a href="embed?ticket=ticket-mfa"></a></html>`)
	})
	mux.HandleFunc("GET /oauth-service/oauth/preauthorized", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "oauth_token=o1-token&oauth_token_secret=o1-secret")
	})
	mux.HandleFunc("POST /oauth-service/oauth/exchange/user/2.0", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(garmin.OAuth2Token{
			TokenType:   "Bearer",
			AccessToken: "bearer-abc",
			ExpiresIn:   3600,
		})
	})
	mux.HandleFunc("GET /userprofile-service/socialProfile", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(garmin.Profile{DisplayName: "runner-1", FullName: "Test Runner"})
	})
	mux.HandleFunc("GET /userprofile-service/userprofile/user-settings", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"userData":{"measurementSystem":"metric"}}`)
	})
	mux.HandleFunc("GET /usersummary-service/usersummary/daily/runner-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"calendarDate":%q,"totalSteps":12345}`, r.URL.Query().Get("calendarDate"))
	})
	mux.HandleFunc("GET /activitylist-service/activities/search/activities", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[
			{"activityId":101,"activityName":"Morning Run","activityType":{"typeKey":"running"},"startTimeLocal":"2026-08-24 07:00:00","distance":5012.5,"duration":1800.0,"calories":320.0},
			{"activityId":102,"activityName":"Evening Ride","activityType":{"typeKey":"cycling"},"startTimeLocal":"2026-08-24 18:00:00","distance":20500.0,"duration":3600.0,"calories":600.0}
		]`)
	})
	mux.HandleFunc("GET /download-service/export/tcx/activity/101", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<TrainingCenterDatabase/>")
	})
	mux.HandleFunc("GET /download-service/files/activity/101", func(w http.ResponseWriter, _ *http.Request) {
		// Not a valid FIT recording; exercises decode error handling.
		w.Write([]byte("not-a-fit-file"))
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// testEnv bundles a running API server with its backing pieces.
type testEnv struct {
	srv      *Server
	api      *httptest.Server
	upstream *fakeUpstream
	repo     activity.Repository
	tokens   *tokenstore.Store
}

type envOptions struct {
	auth   config.AuthConfig
	syncer SyncController
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	upstream := newFakeUpstream(t)

	client, err := garmin.NewClient(garmin.Options{
		Domain:         "garmin.com",
		Timeout:        5 * time.Second,
		ConsumerKey:    "test-key",
		ConsumerSecret: "test-secret",
		ReturnOnMFA:    true,
		SSOBase:        upstream.URL + "/sso",
		APIBase:        upstream.URL,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	dir := t.TempDir()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(dir, "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	repo := activity.NewSQLiteRepository(db.DB)

	tokens := tokenstore.New(filepath.Join(dir, "tokens"))
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")

	srv, err := New(Deps{
		WS:         config.WebSocketConfig{PingInterval: 30, PongTimeout: 60, MaxMessageSize: 4096},
		Security:   config.SecurityConfig{Auth: opts.auth},
		Logger:     logger,
		Garmin:     client,
		TokenStore: tokens,
		Repo:       repo,
		DB:         db,
		Syncer:     opts.syncer,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Run the hub directly instead of binding a listener via Start().
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.hub = NewHub(srv.wsCfg, logger)
	go srv.hub.Run(ctx)

	api := httptest.NewServer(srv.buildRouter())
	t.Cleanup(api.Close)

	return &testEnv{srv: srv, api: api, upstream: upstream, repo: repo, tokens: tokens}
}

func (e *testEnv) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshalling body: %v", err)
	}
	resp, err := http.Post(e.api.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(e.api.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	resp, body := e.post(t, "/api/v1/login", map[string]any{
		"email":    "user@example.com",
		"password": "secret",
	})
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("login: status %d body %v", resp.StatusCode, body)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, body := env.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthComponents(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, body := env.get(t, "/api/v1/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	components, _ := body["components"].(map[string]any)
	if components["database"] != "ok" {
		t.Errorf("database health = %v, want ok", components["database"])
	}
	if components["garmin_session"] != "not_logged_in" {
		t.Errorf("garmin_session = %v, want not_logged_in", components["garmin_session"])
	}
}

func TestLoginWithCredentials(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, body := env.post(t, "/api/v1/login", map[string]any{
		"email":    "user@example.com",
		"password": "secret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["source"] != "credentials" {
		t.Errorf("source = %v, want credentials", body["source"])
	}

	// Tokens must have been persisted for the next boot.
	if !env.tokens.Exists() {
		t.Error("token store empty after successful login")
	}
}

func TestLoginFromTokenStore(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.login(t)

	// A second login needs no credentials: the persisted session wins.
	resp, body := env.post(t, "/api/v1/login", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["source"] != "token_store" {
		t.Errorf("source = %v, want token_store", body["source"])
	}
}

func TestLoginNoCredentialsNoStore(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, body := env.post(t, "/api/v1/login", map[string]any{})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if body["code"] != ErrCodeNotLoggedIn {
		t.Errorf("code = %v, want %s", body["code"], ErrCodeNotLoggedIn)
	}
}

func TestLoginDomainMismatch(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, _ := env.post(t, "/api/v1/login", map[string]any{
		"email":    "user@example.com",
		"password": "secret",
		"is_cn":    true,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLoginMFAFlow(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.upstream.mfaRequired = true

	resp, body := env.post(t, "/api/v1/login", map[string]any{
		"email":         "user@example.com",
		"password":      "secret",
		"return_on_mfa": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "needs_mfa" {
		t.Fatalf("status = %v, want needs_mfa", body["status"])
	}
	if body["client_state"] == nil {
		t.Fatal("needs_mfa response missing client_state")
	}

	resp, body = env.post(t, "/api/v1/login/resume", map[string]any{
		"client_state": body["client_state"],
		"mfa_code":     "123456",
	})
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("resume: status %d body %v", resp.StatusCode, body)
	}
}

func TestLoginMFAWithoutResumeFlow(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.upstream.mfaRequired = true

	resp, body := env.post(t, "/api/v1/login", map[string]any{
		"email":    "user@example.com",
		"password": "secret",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if body["code"] != ErrCodeAuthentication {
		t.Errorf("code = %v, want %s", body["code"], ErrCodeAuthentication)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.upstream.badPassword = true

	resp, body := env.post(t, "/api/v1/login", map[string]any{
		"email":    "user@example.com",
		"password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if body["code"] != ErrCodeAuthentication {
		t.Errorf("code = %v, want %s", body["code"], ErrCodeAuthentication)
	}
}

func TestLoginResumeMissingFields(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, _ := env.post(t, "/api/v1/login/resume", map[string]any{"mfa_code": "123456"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.login(t)

	resp, body := env.get(t, "/api/v1/summary?cdate=2026-08-24")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, _ := body["data"].(map[string]any)
	if data["calendarDate"] != "2026-08-24" {
		t.Errorf("calendarDate = %v", data["calendarDate"])
	}

	// Write-through cache.
	if _, err := env.repo.GetDailySummary(context.Background(), "2026-08-24"); err != nil {
		t.Errorf("summary not cached: %v", err)
	}
}

func TestSummaryValidation(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, _ := env.get(t, "/api/v1/summary")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing cdate: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = env.get(t, "/api/v1/summary?cdate=24-08-2026")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad cdate: status = %d, want 400", resp.StatusCode)
	}
}

func TestSummaryRequiresLogin(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, body := env.get(t, "/api/v1/summary?cdate=2026-08-24")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if body["code"] != ErrCodeNotLoggedIn {
		t.Errorf("code = %v, want %s", body["code"], ErrCodeNotLoggedIn)
	}
}

func TestActivities(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.login(t)

	resp, body := env.get(t, "/api/v1/activities?limit=20")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, _ := body["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("activities = %d, want 2", len(data))
	}

	// Listing writes through to the cache, so /cached now serves offline.
	resp, body = env.get(t, "/api/v1/activities/cached")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cached: status = %d, want 200", resp.StatusCode)
	}
	cached, _ := body["data"].([]any)
	if len(cached) != 2 {
		t.Errorf("cached activities = %d, want 2", len(cached))
	}
}

func TestActivitiesCachedEmpty(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, body := env.get(t, "/api/v1/activities/cached")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, ok := body["data"].([]any)
	if !ok || len(data) != 0 {
		t.Errorf("data = %v, want empty array", body["data"])
	}
}

func TestActivitiesPagingValidation(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for _, query := range []string{"start=-1", "start=abc", "limit=0", "limit=101", "limit=x"} {
		resp, _ := env.get(t, "/api/v1/activities/cached?"+query)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", query, resp.StatusCode)
		}
	}
}

func TestActivityDownload(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.login(t)

	resp, body := env.get(t, "/api/v1/activities/101/download?fmt=TCX")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["format"] != "TCX" || body["activity_id"] != "101" {
		t.Errorf("envelope = %v", body)
	}
	raw, err := base64.StdEncoding.DecodeString(body["data_base64"].(string))
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if string(raw) != "<TrainingCenterDatabase/>" {
		t.Errorf("payload = %q", raw)
	}
}

func TestActivityDownloadDefaultsToTCX(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.login(t)

	resp, body := env.get(t, "/api/v1/activities/101/download")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["format"] != "TCX" {
		t.Errorf("format = %v, want TCX", body["format"])
	}
}

func TestActivityDownloadValidation(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, _ := env.get(t, "/api/v1/activities/abc/download?fmt=TCX")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-numeric id: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = env.get(t, "/api/v1/activities/101/download?fmt=PDF")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad format: status = %d, want 400", resp.StatusCode)
	}
}

func TestActivityTrackBadRecording(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.login(t)

	// Upstream serves junk for the original export; decode must fail cleanly.
	resp, body := env.get(t, "/api/v1/activities/101/track")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if body["code"] != ErrCodeInternal {
		t.Errorf("code = %v", body["code"])
	}
}

func TestWhoami(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.login(t)

	resp, body := env.get(t, "/api/v1/whoami")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["full_name"] != "Test Runner" || body["unit_system"] != "metric" {
		t.Errorf("body = %v", body)
	}
}

// stubSync records trigger calls.
type stubSync struct {
	calls []string
	err   error
}

func (s *stubSync) TriggerSync(reason string) error {
	s.calls = append(s.calls, reason)
	return s.err
}

func TestSyncTrigger(t *testing.T) {
	stub := &stubSync{}
	env := newTestEnv(t, envOptions{syncer: stub})

	resp, body := env.post(t, "/api/v1/sync", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if body["status"] != "queued" {
		t.Errorf("status = %v, want queued", body["status"])
	}
	if len(stub.calls) != 1 || stub.calls[0] != activity.ReasonManual {
		t.Errorf("trigger calls = %v", stub.calls)
	}
}

func TestSyncTriggerAlreadyQueued(t *testing.T) {
	stub := &stubSync{err: syncer.ErrSyncInProgress}
	env := newTestEnv(t, envOptions{syncer: stub})

	resp, body := env.post(t, "/api/v1/sync", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if body["status"] != "already_queued" {
		t.Errorf("status = %v, want already_queued", body["status"])
	}
}

func TestSyncTriggerDisabled(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, _ := env.post(t, "/api/v1/sync", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestSyncStatusNeverRun(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, body := env.get(t, "/api/v1/sync/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "never_run" {
		t.Errorf("status = %v, want never_run", body["status"])
	}
}

func TestSyncStatusReportsLastRun(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	run, err := env.repo.StartSyncRun(ctx, activity.ReasonInterval)
	if err != nil {
		t.Fatalf("StartSyncRun: %v", err)
	}
	run.ActivitiesNew = 3
	if err := env.repo.FinishSyncRun(ctx, run, nil); err != nil {
		t.Fatalf("FinishSyncRun: %v", err)
	}

	resp, body := env.get(t, "/api/v1/sync/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["last_run"] == nil {
		t.Error("missing last_run")
	}
}

func authEnabledConfig(t *testing.T, password string) config.AuthConfig {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return config.AuthConfig{
		Enabled:      true,
		PasswordHash: hash,
		JWTSecret:    "test-jwt-secret-0123456789abcdef",
		TokenTTL:     60,
	}
}

func TestAuthTokenExchange(t *testing.T) {
	env := newTestEnv(t, envOptions{auth: authEnabledConfig(t, "api-password")})

	// Protected routes reject anonymous callers.
	resp, _ := env.get(t, "/api/v1/whoami")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous: status = %d, want 401", resp.StatusCode)
	}

	// Wrong password is refused.
	resp, _ = env.post(t, "/api/v1/auth/token", map[string]any{"password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: status = %d, want 401", resp.StatusCode)
	}

	// Correct password yields a bearer token.
	resp, body := env.post(t, "/api/v1/auth/token", map[string]any{"password": "api-password"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token exchange: status = %d, want 200", resp.StatusCode)
	}
	token, _ := body["access_token"].(string)
	if token == "" || body["token_type"] != "bearer" {
		t.Fatalf("token response = %v", body)
	}

	// The token opens protected routes.
	req, _ := http.NewRequest(http.MethodGet, env.api.URL+"/api/v1/sync/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authed request: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Errorf("authed request: status = %d, want 200", authed.StatusCode)
	}
}

func TestAuthTokenWhenDisabled(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, _ := env.post(t, "/api/v1/auth/token", map[string]any{"password": "anything"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, _ := env.get(t, "/healthz")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	req, _ := http.NewRequest(http.MethodGet, env.api.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp2.Body.Close()
	if got := resp2.Header.Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}
}

func TestStatusWriterSupportsUpgrades(t *testing.T) {
	w := &statusWriter{ResponseWriter: httptest.NewRecorder()}

	if _, ok := any(w).(http.Hijacker); !ok {
		t.Error("statusWriter does not implement http.Hijacker")
	}
	if w.Unwrap() == nil {
		t.Error("Unwrap() returned nil")
	}

	// A recorder cannot hijack; the wrapper must surface that as an error
	// instead of panicking.
	if _, _, err := w.Hijack(); err == nil {
		t.Error("expected hijack error from a non-hijackable writer")
	}
}

func TestWebSocketEventFlow(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	wsURL := "ws" + strings.TrimPrefix(env.api.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialling websocket: %v", err)
	}
	defer conn.Close()

	// Subscribe to the activity channel.
	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{ChannelActivity}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("writing subscribe: %v", err)
	}

	var ack WSMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("reading ack: %v", err)
	}
	if ack.Type != WSTypeResponse {
		t.Fatalf("ack type = %q, want response", ack.Type)
	}

	// Wait for the registration to land before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for env.srv.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	env.srv.hub.Broadcast(ChannelActivity, map[string]any{"activity_id": int64(101)})

	var event WSMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != ChannelActivity {
		t.Errorf("event = %+v", event)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	env := newTestEnv(t, envOptions{auth: authEnabledConfig(t, "api-password")})

	wsURL := "ws" + strings.TrimPrefix(env.api.URL, "http") + "/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("handshake status = %v, want 401", resp)
	}
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Errorf("err = %v, want ErrBadHandshake", err)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")

	if _, err := New(Deps{}); err == nil {
		t.Error("expected error with no dependencies")
	}
	if _, err := New(Deps{Logger: logger}); err == nil {
		t.Error("expected error without garmin client")
	}
}
