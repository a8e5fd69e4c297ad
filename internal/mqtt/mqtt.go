// Package mqtt publishes alarm telemetry with abstraction for testing.
// Publishing is one-way by design: nothing subscribes and nothing commands
// the alarm over the network.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topic is the MQTT topic for alarm state events.
const Topic = "security/alarm/events"

// TopicSystem is the MQTT topic for daemon lifecycle events.
const TopicSystem = "security/alarm/system"

// EventType labels an alarm state transition.
type EventType string

const (
	EventArmed     EventType = "ARMED"
	EventDisarmed  EventType = "DISARMED"
	EventTriggered EventType = "TRIGGERED"
	EventReset     EventType = "RESET"
)

// Event is an alarm state transition together with a status snapshot.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Armed     bool
	Active    bool
	Unsealed  []int
}

// SystemEvent is a daemon lifecycle event (startup, shutdown).
type SystemEvent struct {
	Timestamp time.Time
	Event     string // "STARTUP", "SHUTDOWN"
	Reason    string // e.g. "SIGTERM" (shutdown only)
	Retained  bool
}

// Publisher publishes alarm telemetry.
type Publisher interface {
	// Publish sends an alarm state event.
	// Failures must not take the alarm down; callers log and move on.
	Publish(event Event) error

	// PublishSystem sends a daemon lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the broker connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Payload is the JSON structure for alarm state events.
type Payload struct {
	Alarm AlarmPayload `json:"alarm"`
}

// AlarmPayload carries the event details.
type AlarmPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Armed     bool   `json:"armed"`
	Active    bool   `json:"active"`
	Unsealed  []int  `json:"unsealed"`
}

// FormatPayload creates the JSON payload for an alarm state event.
func FormatPayload(event Event) ([]byte, error) {
	unsealed := event.Unsealed
	if unsealed == nil {
		unsealed = []int{}
	}
	payload := Payload{
		Alarm: AlarmPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Armed:     event.Armed,
			Active:    event.Active,
			Unsealed:  unsealed,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the JSON structure for lifecycle events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner carries the lifecycle event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a lifecycle event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
