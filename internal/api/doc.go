// Package api provides the HTTP REST API and WebSocket event stream.
//
// It exposes the Garmin Connect operations (login with MFA support, daily
// wellness summaries, activity listing and export) together with the local
// cache, sync control, and health endpoints.
//
// The server follows the same lifecycle pattern as the other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
