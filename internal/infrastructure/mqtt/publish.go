package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// ActivityEvent is published to garminapi/event/activity when the syncer
// discovers an activity it has not cached before.
type ActivityEvent struct {
	ActivityID int64   `json:"activity_id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	StartTime  string  `json:"start_time"`
	DistanceM  float64 `json:"distance_m"`
	DurationS  float64 `json:"duration_s"`
	Calories   float64 `json:"calories"`
	Timestamp  string  `json:"timestamp"`
}

// SyncEvent is published to garminapi/event/sync when a sync run finishes,
// successfully or not.
type SyncEvent struct {
	RunID          string `json:"run_id"`
	Reason         string `json:"reason"`
	ActivitiesNew  int    `json:"activities_new"`
	ActivitiesSeen int    `json:"activities_seen"`
	Error          string `json:"error,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Retained Messages:
//   - Use for state topics (system status)
//   - Don't use for events
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishJSON marshals v and publishes it at the configured default QoS.
func (c *Client) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshalling payload: %w", ErrPublishFailed, err)
	}
	return c.Publish(topic, payload, byte(c.cfg.QoS), false)
}

// PublishActivityEvent announces a newly discovered activity.
func (c *Client) PublishActivityEvent(event ActivityEvent) error {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return c.PublishJSON(TopicActivityEvent, event)
}

// PublishSyncEvent announces a completed sync run.
func (c *Client) PublishSyncEvent(event SyncEvent) error {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return c.PublishJSON(TopicSyncEvent, event)
}
