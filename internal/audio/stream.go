package audio

import "io"

// TrackKind distinguishes the media carried by a track.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Track is one media track of a captured stream. Audio tracks carry
// PCM16-LE samples on PCM; other kinds leave it nil.
type Track struct {
	Kind TrackKind
	PCM  io.ReadCloser
}

// Stream is a caller-supplied capture (screen share, system loopback)
// offered to the mixer as a secondary source.
type Stream struct {
	ID     string
	Tracks []Track
}

// AudioTrack returns the first audio track with a PCM reader, or nil when
// the stream carries no usable audio (e.g. a video-only screen share).
func (s *Stream) AudioTrack() *Track {
	if s == nil {
		return nil
	}
	for i := range s.Tracks {
		if s.Tracks[i].Kind == TrackAudio && s.Tracks[i].PCM != nil {
			return &s.Tracks[i]
		}
	}
	return nil
}
