package session

import (
	"github.com/livecapd/livecap/internal/deepgram"
	"github.com/livecapd/livecap/internal/transcribe"
)

// transportHandler adapts connection notifications onto the session's
// event bus and drives teardown on close.
type transportHandler struct {
	s *Session
}

func (h transportHandler) OnMessage(raw []byte) {
	caption, errEvent := h.s.normalizer.Normalize(raw)
	if errEvent != nil {
		h.s.events.EmitError(*errEvent)
		return
	}
	if caption != nil {
		h.s.events.EmitCaption(*caption)
	}
}

// OnTransportError reports the failure without touching connection state;
// the close notification that follows is authoritative for cleanup.
func (h transportHandler) OnTransportError(err error) {
	h.s.events.EmitError(transcribe.ErrorEvent{
		Message:     "transport error: " + err.Error(),
		Recoverable: true,
	})
}

func (h transportHandler) OnClose(code int, reason string) {
	if !deepgram.IsNormalClose(code) {
		h.s.events.EmitError(transcribe.ErrorEvent{
			Message:     deepgram.CloseCodeMessage(code, reason),
			Recoverable: false,
		})
	}
	h.s.Stop()
}
