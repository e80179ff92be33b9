package garmin

import "time"

// OAuth1Token is the long-lived token obtained from the SSO ticket exchange.
// Garmin keeps these valid for roughly a year; it is the root credential
// from which OAuth2 bearers are minted.
type OAuth1Token struct {
	Token    string `json:"oauth_token"`
	Secret   string `json:"oauth_token_secret"`
	MFAToken string `json:"mfa_token,omitempty"`
	Domain   string `json:"domain"`
}

// OAuth2Token is the short-lived bearer used on data requests.
type OAuth2Token struct {
	Scope                 string `json:"scope"`
	JTI                   string `json:"jti"`
	TokenType             string `json:"token_type"`
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int64  `json:"expires_in"`
	ExpiresAt             int64  `json:"expires_at"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in,omitempty"`
	RefreshTokenExpiresAt int64  `json:"refresh_token_expires_at,omitempty"`
}

// Expired reports whether the access token has passed its expiry, with a
// one-minute safety margin so in-flight requests don't race the deadline.
func (t *OAuth2Token) Expired() bool {
	if t == nil {
		return true
	}
	return time.Now().Unix() >= t.ExpiresAt-60
}

// TokenStore persists a Garmin session across process restarts.
// Implemented by the tokenstore package (GARMINTOKENS directory).
type TokenStore interface {
	// Load returns the persisted tokens. It returns an error satisfying
	// errors.Is(err, ErrTokenStoreEmpty) semantics via the implementation's
	// own not-found error when nothing is stored.
	Load() (*OAuth1Token, *OAuth2Token, error)

	// Save persists both tokens atomically enough for a single-process
	// service (write-then-rename per file).
	Save(o1 *OAuth1Token, o2 *OAuth2Token) error
}

// MFAState is the opaque, JSON-serialisable state returned when login hits a
// multi-factor challenge. It round-trips through the API client unchanged and
// resumes the flow in ResumeLogin.
type MFAState struct {
	Domain  string          `json:"domain"`
	CSRF    string          `json:"csrf"`
	Cookies []SessionCookie `json:"cookies"`
}

// SessionCookie is the subset of an SSO cookie needed to resume a login.
type SessionCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DownloadFormat selects the export encoding for DownloadActivity.
type DownloadFormat string

// Supported export formats, matching Garmin's download service.
const (
	FormatOriginal DownloadFormat = "ORIGINAL" // zipped FIT as uploaded
	FormatTCX      DownloadFormat = "TCX"
	FormatGPX      DownloadFormat = "GPX"
	FormatKML      DownloadFormat = "KML"
	FormatCSV      DownloadFormat = "CSV"
)

// ParseDownloadFormat validates a user-supplied format string.
func ParseDownloadFormat(s string) (DownloadFormat, bool) {
	switch DownloadFormat(s) {
	case FormatOriginal, FormatTCX, FormatGPX, FormatKML, FormatCSV:
		return DownloadFormat(s), true
	}
	return "", false
}

// Profile is the subset of the Garmin social profile the API exposes.
type Profile struct {
	DisplayName string `json:"displayName"`
	FullName    string `json:"fullName"`
}
