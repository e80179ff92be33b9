package garmin

import "errors"

// Sentinel errors for upstream Garmin failures.
// Use errors.Is() to check for these in calling code.
var (
	// ErrAuthentication is returned when Garmin rejects credentials or tokens.
	ErrAuthentication = errors.New("garmin: authentication error")

	// ErrTooManyRequests is returned when Garmin rate-limits the client.
	ErrTooManyRequests = errors.New("garmin: too many requests")

	// ErrConnection is returned on transport failures and upstream 5xx responses.
	ErrConnection = errors.New("garmin: connection error")

	// ErrMFARequired is returned by Login when the account needs a second
	// factor. The accompanying MFAState resumes the flow via ResumeLogin.
	ErrMFARequired = errors.New("garmin: mfa required")

	// ErrNotLoggedIn is returned when an operation needs a session and none
	// exists (no login, no usable token store).
	ErrNotLoggedIn = errors.New("garmin: not logged in")

	// ErrTokenStoreEmpty is returned by LoginFromStore when the store has no
	// persisted tokens.
	ErrTokenStoreEmpty = errors.New("garmin: token store empty")
)
