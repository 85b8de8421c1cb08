package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/livecapd/livecap/internal/transcribe"
)

func TestWSBroadcastCaptionShape(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.BroadcastCaption(transcribe.CaptionEvent{
		Speaker:     "Speaker 2",
		Text:        "test line",
		TimestampMs: time.Now().UnixMilli(),
		IsFinal:     true,
	})

	select {
	case msg := <-ch:
		var payload map[string]any
		if err := json.Unmarshal(msg, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if payload["type"] != "caption" {
			t.Fatalf("expected event type caption, got %#v", payload["type"])
		}
		if payload["speaker"] != "Speaker 2" {
			t.Fatalf("expected speaker label, got %#v", payload["speaker"])
		}
		if payload["is_final"] != true {
			t.Fatalf("expected is_final true, got %#v", payload["is_final"])
		}
		if payload["version"] == nil {
			t.Fatalf("expected version field in payload: %s", string(msg))
		}
		if payload["timestamp"] == nil {
			t.Fatalf("expected timestamp field in payload: %s", string(msg))
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for websocket broadcast")
	}
}

func TestWSBroadcastErrorShape(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.BroadcastError(transcribe.ErrorEvent{Message: "socket lost", Recoverable: false})

	select {
	case msg := <-ch:
		var payload map[string]any
		if err := json.Unmarshal(msg, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if payload["type"] != "error" {
			t.Fatalf("expected event type error, got %#v", payload["type"])
		}
		if payload["message"] != "socket lost" {
			t.Fatalf("expected error message, got %#v", payload["message"])
		}
		if payload["recoverable"] != false {
			t.Fatalf("expected recoverable false, got %#v", payload["recoverable"])
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for websocket broadcast")
	}
}

func TestWSSlowClientDoesNotBlockBroadcast(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	// Fill the client buffer past capacity; Broadcast must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Broadcast([]byte(`{"type":"caption"}`))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}
