// Package influxdb exports wellness and activity metrics to InfluxDB v2.
//
// The integration is optional; when disabled in config nothing is written
// and the rest of the service is unaffected. When enabled, the background
// syncer pushes daily wellness numbers (steps, resting heart rate, stress,
// sleep) and per-activity totals so they can be graphed alongside other
// household time series.
//
// Writes go through the non-blocking batched WriteAPI: a failed InfluxDB
// write never slows down or fails a sync run, it only surfaces through the
// error callback.
package influxdb
