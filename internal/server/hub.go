package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/livecapd/livecap/internal/transcribe"
)

type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastCaption(ev transcribe.CaptionEvent) {
	h.broadcastEvent(CaptionEvent{
		Event:       newEvent("caption", time.UnixMilli(ev.TimestampMs)),
		Speaker:     ev.Speaker,
		Text:        ev.Text,
		TimestampMs: ev.TimestampMs,
		IsFinal:     ev.IsFinal,
	})
}

func (h *Hub) BroadcastError(ev transcribe.ErrorEvent) {
	h.broadcastEvent(ErrorEvent{
		Event:       newEvent("error", time.Now().UTC()),
		Message:     ev.Message,
		Recoverable: ev.Recoverable,
	})
}

func (h *Hub) BroadcastCaptureStarted(captureID, deviceID string) {
	h.broadcastEvent(CaptureStartedEvent{
		Event:     newEvent("capture_started", time.Now().UTC()),
		CaptureID: captureID,
		DeviceID:  deviceID,
	})
}

func (h *Hub) BroadcastCaptureStopped(captureID string) {
	h.broadcastEvent(CaptureStoppedEvent{
		Event:     newEvent("capture_stopped", time.Now().UTC()),
		CaptureID: captureID,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
