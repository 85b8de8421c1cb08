package server

import "time"

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type CaptionEvent struct {
	Event
	Speaker     string `json:"speaker"`
	Text        string `json:"text"`
	TimestampMs int64  `json:"timestamp_ms"`
	IsFinal     bool   `json:"is_final"`
}

type ErrorEvent struct {
	Event
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

type CaptureStartedEvent struct {
	Event
	CaptureID string `json:"capture_id"`
	DeviceID  string `json:"device_id,omitempty"`
}

type CaptureStoppedEvent struct {
	Event
	CaptureID string `json:"capture_id"`
}

type ConnectionEvent struct {
	Event
	Connected bool   `json:"connected"`
	ClientID  string `json:"client_id"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
