// Package logging provides structured logging for the Garmin Connect web API.
//
// It wraps Go's standard log/slog package to give every component the same
// output shape and default fields.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Security
//
// Never log Garmin credentials, OAuth tokens, or bearer tokens. Log token
// presence or a short prefix, never the value.
package logging
