package transcribe

import "fmt"

// FixedSpeakerLabel is used when diarization is disabled for the session.
const FixedSpeakerLabel = "Speaker"

// CaptionEvent is one normalized transcript fragment. Events are immutable
// once emitted; their order follows connection receipt order.
type CaptionEvent struct {
	Text        string `json:"text"`
	Speaker     string `json:"speaker"`
	TimestampMs int64  `json:"timestamp_ms"`
	IsFinal     bool   `json:"is_final"`
}

// ErrorEvent reports a failure through the event bus. Recoverable errors
// leave the session running; unrecoverable ones precede a full teardown.
type ErrorEvent struct {
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// SpeakerLabel renders a diarization tag as a display label.
func SpeakerLabel(tag int) string {
	return fmt.Sprintf("Speaker %d", tag)
}
