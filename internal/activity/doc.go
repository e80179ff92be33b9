// Package activity caches Garmin activity and wellness data in SQLite and
// turns downloaded FIT recordings into track data the API can serve.
//
// The cache is write-through: every page of activities fetched from Garmin
// Connect is upserted here, keyed by the Garmin activity ID, with the raw
// JSON payload preserved alongside a few indexed columns. Cached rows let
// the API answer list queries while Garmin is unreachable or rate-limiting,
// and give the background syncer a way to tell new activities from ones it
// has already seen.
//
// The FIT side decodes the ORIGINAL export (a zip wrapping the device's FIT
// file) into a Track of GPS points, which the GPX renderer serialises for
// mapping clients.
package activity
