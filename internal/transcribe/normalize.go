package transcribe

import (
	"encoding/json"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
)

// Normalizer maps raw recognition frames to caption or error events. All
// vendor-specific payload access lives here so the rest of the pipeline
// only ever sees CaptionEvent and ErrorEvent.
type Normalizer struct {
	diarize bool
	now     func() time.Time
}

func NewNormalizer(diarize bool) *Normalizer {
	return &Normalizer{diarize: diarize, now: time.Now}
}

// Normalize parses one inbound frame. A service-reported error produces an
// ErrorEvent; an empty or missing transcript produces nothing; malformed
// frames without an error field are ignored.
func (n *Normalizer) Normalize(raw []byte) (*CaptionEvent, *ErrorEvent) {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, nil
	}
	if envelope.Error != "" {
		return nil, &ErrorEvent{
			Message:     "recognition service error: " + envelope.Error,
			Recoverable: true,
		}
	}

	var mr api.MessageResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		return nil, nil
	}
	if len(mr.Channel.Alternatives) == 0 {
		return nil, nil
	}

	alt := mr.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return nil, nil
	}

	speaker := FixedSpeakerLabel
	if n.diarize {
		tag := 0
		if len(alt.Words) > 0 && alt.Words[0].Speaker != nil {
			tag = *alt.Words[0].Speaker
		}
		speaker = SpeakerLabel(tag)
	}

	return &CaptionEvent{
		Text:        text,
		Speaker:     speaker,
		TimestampMs: n.now().UnixMilli(),
		IsFinal:     mr.IsFinal,
	}, nil
}
