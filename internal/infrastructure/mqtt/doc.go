// Package mqtt publishes service events to an MQTT broker.
//
// The broker is optional: when disabled in config the rest of the service
// runs without it. When enabled, the client announces availability on a
// retained status topic (with a Last Will for crash detection) and emits
// events as activities are discovered and sync runs complete, so home
// automation systems can react to new workouts without polling the API.
//
// Topics live under the garminapi/ prefix; see topics.go for the scheme.
package mqtt
