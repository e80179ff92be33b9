// Package auth secures the wrapper's own HTTP API.
//
// The model is deliberately small: one shared API password, stored as an
// Argon2id hash in config, exchanged at /api/v1/auth/token for a short-lived
// HS256 JWT. There are no users, roles, or refresh tokens; anyone holding
// the password gets the same access. Auth is disabled by default, matching
// the upstream wrapper's open behaviour, and enabled via config for
// deployments exposed beyond the local network.
//
// Garmin credentials are never involved here; they only pass through the
// login endpoints to Garmin's SSO.
package auth
