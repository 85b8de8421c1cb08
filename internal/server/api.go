package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/livecapd/livecap/internal/audio"
)

// Controller is the capture surface the HTTP layer drives. A
// *session.Session satisfies it.
type Controller interface {
	Start(ctx context.Context, deviceID string) error
	Stop()
	IsActive() bool
	AudioDevices() []audio.Device
}

// captureTracker assigns an id to each capture run so clients can
// correlate start and stop notifications.
type captureTracker struct {
	mu sync.Mutex
	id string
}

func (t *captureTracker) begin() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.id = uuid.NewString()
	return t.id
}

func (t *captureTracker) end() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.id
	t.id = ""
	return id
}

func (t *captureTracker) current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

type startCaptureRequest struct {
	DeviceID string `json:"device_id"`
}

func registerAPIRoutes(mux *http.ServeMux, hub *Hub, ctrl Controller) {
	tracker := &captureTracker{}

	mux.HandleFunc("GET /api/devices", func(w http.ResponseWriter, r *http.Request) {
		devices := ctrl.AudioDevices()
		if devices == nil {
			devices = []audio.Device{}
		}
		writeJSON(w, http.StatusOK, devices)
	})

	mux.HandleFunc("POST /api/capture/start", func(w http.ResponseWriter, r *http.Request) {
		var req startCaptureRequest
		if r.Body != nil {
			// Empty body means default device.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		if err := ctrl.Start(r.Context(), req.DeviceID); err != nil {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("start capture: %v", err))
			return
		}

		id := tracker.begin()
		hub.BroadcastCaptureStarted(id, req.DeviceID)
		writeJSON(w, http.StatusOK, map[string]string{"capture_id": id})
	})

	mux.HandleFunc("POST /api/capture/stop", func(w http.ResponseWriter, r *http.Request) {
		ctrl.Stop()
		if id := tracker.end(); id != "" {
			hub.BroadcastCaptureStopped(id)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/capture/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"active":     ctrl.IsActive(),
			"capture_id": tracker.current(),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
