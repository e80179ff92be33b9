package auth

import "errors"

var (
	// ErrTokenInvalid is returned when a bearer token fails validation
	// (bad signature, expired, malformed).
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInvalidCredentials is returned when the presented API password
	// does not match the configured hash.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)
