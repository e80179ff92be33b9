// Package garmin implements a Garmin Connect client: SSO login (including
// MFA), OAuth1→OAuth2 token exchange, token refresh, and the data endpoints
// the web API exposes (daily summary, activity list, activity export, user
// profile).
//
// # Session lifecycle
//
// A session starts one of two ways:
//
//   - Login / ResumeLogin: full SSO flow against sso.garmin.com (or .cn),
//     producing an OAuth1 token which is exchanged for an OAuth2 bearer.
//   - LoginFromStore: resume from tokens persisted by a previous login.
//
// The OAuth2 bearer is short-lived and refreshed transparently from the
// long-lived OAuth1 token before each request when expired.
//
// # Errors
//
// Upstream failures map onto sentinel errors (ErrAuthentication,
// ErrTooManyRequests, ErrConnection, ErrMFARequired, ErrNotLoggedIn) so the
// HTTP layer can translate them to status codes with errors.Is.
package garmin
