package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func TestFormatPayload(t *testing.T) {
	data, err := FormatPayload(Event{
		Timestamp: testTime,
		Type:      EventTriggered,
		Armed:     true,
		Active:    true,
		Unsealed:  []int{3, 8},
	})
	require.NoError(t, err)

	var payload Payload
	require.NoError(t, json.Unmarshal(data, &payload))
	require.Equal(t, "2024-03-15T10:30:00Z", payload.Alarm.Timestamp)
	require.Equal(t, "TRIGGERED", payload.Alarm.Event)
	require.True(t, payload.Alarm.Armed)
	require.True(t, payload.Alarm.Active)
	require.Equal(t, []int{3, 8}, payload.Alarm.Unsealed)
}

func TestFormatPayloadEmptyUnsealed(t *testing.T) {
	// A nil slice must serialize as [], not null; consumers expect an array.
	data, err := FormatPayload(Event{Timestamp: testTime, Type: EventDisarmed})
	require.NoError(t, err)
	require.Contains(t, string(data), `"unsealed":[]`)
}

func TestFormatPayloadTimestampIsUTC(t *testing.T) {
	lisbon := time.FixedZone("WET", 3600)
	data, err := FormatPayload(Event{
		Timestamp: time.Date(2024, 3, 15, 11, 30, 0, 0, lisbon),
		Type:      EventArmed,
	})
	require.NoError(t, err)

	var payload Payload
	require.NoError(t, json.Unmarshal(data, &payload))
	require.Equal(t, "2024-03-15T10:30:00Z", payload.Alarm.Timestamp)
}

func TestFormatSystemPayload(t *testing.T) {
	data, err := FormatSystemPayload(SystemEvent{
		Timestamp: testTime,
		Event:     "SHUTDOWN",
		Reason:    "signal",
	})
	require.NoError(t, err)

	var payload SystemPayload
	require.NoError(t, json.Unmarshal(data, &payload))
	require.Equal(t, "SHUTDOWN", payload.System.Event)
	require.Equal(t, "signal", payload.System.Reason)

	// Reason is omitted when empty.
	data, err = FormatSystemPayload(SystemEvent{Timestamp: testTime, Event: "STARTUP"})
	require.NoError(t, err)
	require.NotContains(t, string(data), "reason")
}

func TestFakePublisherRecords(t *testing.T) {
	pub := NewFakePublisher()

	require.NoError(t, pub.Publish(Event{Timestamp: testTime, Type: EventArmed}))
	require.NoError(t, pub.PublishSystem(SystemEvent{Timestamp: testTime, Event: "STARTUP"}))

	require.Len(t, pub.Events, 1)
	require.Equal(t, EventArmed, pub.Events[0].Type)
	require.Len(t, pub.Payloads, 1)
	require.Len(t, pub.SystemEvents, 1)

	pub.PublishError = errors.New("broker down")
	require.Error(t, pub.Publish(Event{Type: EventReset}))
	require.Len(t, pub.Events, 1)

	require.NoError(t, pub.Close())
	require.True(t, pub.Closed)
}
