// Package session implements the capture session: the surface a UI embeds
// to run one live transcription at a time.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/livecapd/livecap/internal/audio"
	"github.com/livecapd/livecap/internal/bus"
	"github.com/livecapd/livecap/internal/deepgram"
	"github.com/livecapd/livecap/internal/transcribe"
)

// Config fixes the per-session capture and transport parameters.
type Config struct {
	Transport       deepgram.Options
	SampleRate      int
	FramesPerBuffer int
	ChunkInterval   time.Duration
}

// TokenFetcher obtains the short-lived recognition credential.
type TokenFetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Transport is the live connection used by the session.
type Transport interface {
	WriteChunk(p []byte) error
	Close() error
}

// AudioMixer owns the mixing graph and its sources.
type AudioMixer interface {
	Start(deviceID string, sampleRate, framesPerBuffer int) error
	AttachSecondary(s *audio.Stream)
	DetachSecondary()
	Graph() *audio.Graph
	Close()
}

type dialFunc func(ctx context.Context, rawURL, key string, h deepgram.Handler) (Transport, error)

// Session owns one logical transcription run. Construct with New and keep
// for the lifetime of the owning component; at most one live capture
// exists per Session, and Start while active is a no-op.
type Session struct {
	cfg        Config
	tokens     TokenFetcher
	events     *bus.Bus
	normalizer *transcribe.Normalizer
	mixer      AudioMixer
	dial       dialFunc

	mu        sync.Mutex
	conn      Transport
	encoder   *audio.Encoder
	connected bool
	recording bool
}

func New(cfg Config, tokens TokenFetcher) *Session {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 512
	}
	if cfg.Transport.SampleRate <= 0 {
		cfg.Transport.SampleRate = cfg.SampleRate
	}

	return &Session{
		cfg:        cfg,
		tokens:     tokens,
		events:     bus.New(),
		normalizer: transcribe.NewNormalizer(cfg.Transport.Diarize),
		mixer:      audio.NewMixer(),
		dial: func(ctx context.Context, rawURL, key string, h deepgram.Handler) (Transport, error) {
			return deepgram.Dial(ctx, rawURL, key, h)
		},
	}
}

// OnCaption registers a caption subscriber; the returned function removes
// it without affecting other subscriptions.
func (s *Session) OnCaption(fn func(transcribe.CaptionEvent)) func() {
	return s.events.OnCaption(fn)
}

// OnError registers an error subscriber; the returned function removes it.
func (s *Session) OnError(fn func(transcribe.ErrorEvent)) func() {
	return s.events.OnError(fn)
}

// IsActive reports whether the session holds a live connection.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Start fetches a credential, opens the connection, and begins capture. A
// credential failure is returned synchronously so the caller learns
// immediately; everything after the handshake is reported through the
// error channel instead. Starting an active session is a no-op.
func (s *Session) Start(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	key, err := s.tokens.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch recognition credential: %w", err)
	}

	conn, err := s.dial(ctx, deepgram.ListenURL(s.cfg.Transport), key, transportHandler{s})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.connected {
		// a concurrent Start won the race
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	go s.acquireAudio(deviceID, conn)
	return nil
}

// acquireAudio runs after the handshake: it builds the mix graph, acquires
// the primary input, and starts the chunk encoder. A device failure is
// reported through the error channel but leaves the healthy socket up, so
// secondary audio can still flow.
func (s *Session) acquireAudio(deviceID string, conn Transport) {
	acquireErr := s.mixer.Start(deviceID, s.cfg.SampleRate, s.cfg.FramesPerBuffer)
	graph := s.mixer.Graph()

	s.mu.Lock()
	if !s.connected || s.conn != conn {
		// torn down while acquisition was in flight
		s.mu.Unlock()
		return
	}
	var enc *audio.Encoder
	if graph != nil {
		enc = audio.NewEncoder(graph, conn, s.cfg.ChunkInterval)
		s.encoder = enc
		s.recording = true
	}
	s.mu.Unlock()

	if enc != nil {
		enc.Start()
	}
	if acquireErr != nil {
		s.events.EmitError(transcribe.ErrorEvent{
			Message:     fmt.Sprintf("audio capture unavailable: %v", acquireErr),
			Recoverable: true,
		})
	}
}

// Stop tears the whole pipeline down: encoder, audio sources, mixing
// graph, connection. Idempotent and safe to call from any state,
// including mid-acquisition and before the first Start.
func (s *Session) Stop() {
	s.mu.Lock()
	conn := s.conn
	enc := s.encoder
	s.conn = nil
	s.encoder = nil
	s.connected = false
	s.recording = false
	s.mu.Unlock()

	if enc != nil {
		enc.Stop()
	}
	s.mixer.Close()
	if conn != nil {
		_ = conn.Close()
	}
}

// AudioDevices enumerates input devices. Enumeration triggers the platform
// permission prompt; on denial the list is empty rather than an error.
func (s *Session) AudioDevices() []audio.Device {
	devices, err := audio.InputDevices()
	if err != nil {
		log.Printf("warning: audio device enumeration failed: %v", err)
		return nil
	}
	return devices
}

// AddSecondaryAudio mixes a caller-supplied stream (screen share, system
// loopback) alongside the primary input. Usable before Start; the request
// is held until the mix graph is ready.
func (s *Session) AddSecondaryAudio(stream *audio.Stream) {
	s.mixer.AttachSecondary(stream)
}

// RemoveSecondaryAudio disconnects the current secondary stream, if any.
func (s *Session) RemoveSecondaryAudio() {
	s.mixer.DetachSecondary()
}
