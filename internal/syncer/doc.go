// Package syncer runs the background refresh worker.
//
// On a configurable interval (and on demand from the API) the worker pages
// the most recent activities from Garmin Connect into the local cache and
// refreshes the daily wellness summaries for yesterday and today. Each run
// is recorded in sync_runs, newly discovered activities are announced over
// MQTT, and wellness/activity metrics are exported to InfluxDB when those
// integrations are enabled.
//
// A failing run never takes the service down: errors are recorded on the
// run and logged, and the worker waits for the next tick. Runs are skipped
// entirely while no Garmin session exists.
package syncer
