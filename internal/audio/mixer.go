package audio

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

type micSource interface {
	Start() error
	Stop() error
	Close() error
	Stream(w io.Writer) error
}

// Mixer owns the mixing graph plus the primary and secondary inputs. The
// secondary source may be attached before the graph exists; the request is
// held in a pending slot and applied once Start builds the graph.
type Mixer struct {
	mu        sync.Mutex
	graph     *Graph
	mic       micSource
	primary   *Node
	secondary *secondaryFeed
	pending   *Stream

	openMic func(deviceID string, sampleRate, framesPerBuffer int) (micSource, error)
	logf    func(format string, args ...any)
}

type secondaryFeed struct {
	stream *Stream
	track  *Track
	node   *Node
}

func NewMixer() *Mixer {
	return &Mixer{
		openMic: func(deviceID string, sampleRate, framesPerBuffer int) (micSource, error) {
			return NewMic(deviceID, sampleRate, framesPerBuffer)
		},
		logf: log.Printf,
	}
}

// Start builds the mixing graph, applies any pending secondary attachment,
// and acquires the primary input. A primary acquisition failure is
// returned, but the graph stays ready so secondary audio can still flow.
func (m *Mixer) Start(deviceID string, sampleRate, framesPerBuffer int) error {
	m.mu.Lock()
	if m.graph == nil {
		m.graph = NewGraph()
	}
	if pending := m.pending; pending != nil {
		m.pending = nil
		m.attachLocked(pending)
	}
	m.mu.Unlock()

	mic, err := m.openMic(deviceID, sampleRate, framesPerBuffer)
	if err != nil {
		return fmt.Errorf("open primary input: %w", err)
	}
	if err := mic.Start(); err != nil {
		_ = mic.Close()
		return fmt.Errorf("start primary input: %w", err)
	}

	m.mu.Lock()
	if m.graph == nil {
		// torn down while the device was being acquired
		m.mu.Unlock()
		_ = mic.Stop()
		_ = mic.Close()
		return nil
	}
	node := m.graph.NewNode()
	m.mic = mic
	m.primary = node
	m.mu.Unlock()

	go m.pumpPrimary(mic, node)
	return nil
}

func (m *Mixer) pumpPrimary(mic micSource, node *Node) {
	for {
		err := mic.Stream(node)
		if err == nil || errors.Is(err, io.ErrClosedPipe) {
			return
		}
		if strings.Contains(strings.ToLower(err.Error()), "overflow") {
			m.logf("warning: primary input overflow, restarting stream")
			time.Sleep(250 * time.Millisecond)
			continue
		}
		m.logf("primary input stream error: %v", err)
		return
	}
}

// AttachSecondary mixes the stream's audio track in alongside the primary
// input. At most one secondary is mixed at a time; a previous one is
// disconnected first. Streams without an audio track are skipped.
func (m *Mixer) AttachSecondary(s *Stream) {
	if s == nil {
		return
	}
	if s.AudioTrack() == nil {
		m.logf("secondary stream %q has no audio track, skipping", s.ID)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.graph == nil {
		m.pending = s
		return
	}
	m.attachLocked(s)
}

// attachLocked requires m.mu held and m.graph non-nil.
func (m *Mixer) attachLocked(s *Stream) {
	track := s.AudioTrack()
	if track == nil {
		return
	}
	m.detachLocked()
	node := m.graph.NewNode()
	m.secondary = &secondaryFeed{stream: s, track: track, node: node}
	go m.pumpSecondary(track, node)
}

func (m *Mixer) pumpSecondary(track *Track, node *Node) {
	if _, err := io.Copy(node, track.PCM); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		m.logf("secondary input stream error: %v", err)
	}
}

// DetachSecondary disconnects the current secondary source, if any. The
// primary input and the graph itself are untouched.
func (m *Mixer) DetachSecondary() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	m.detachLocked()
}

func (m *Mixer) detachLocked() {
	feed := m.secondary
	if feed == nil {
		return
	}
	m.secondary = nil
	if m.graph != nil {
		m.graph.Disconnect(feed.node)
	} else {
		feed.node.detach()
	}
	_ = feed.track.PCM.Close()
}

// Graph exposes the mix destination for the capture encoder. Nil until
// Start has built the graph.
func (m *Mixer) Graph() *Graph {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph
}

// Close releases every source and the graph. Safe to call at any point,
// including before Start and more than once.
func (m *Mixer) Close() {
	m.mu.Lock()
	mic := m.mic
	graph := m.graph
	feed := m.secondary
	m.mic = nil
	m.primary = nil
	m.graph = nil
	m.pending = nil
	m.secondary = nil
	m.mu.Unlock()

	if feed != nil {
		feed.node.detach()
		_ = feed.track.PCM.Close()
	}
	if mic != nil {
		_ = mic.Stop()
		_ = mic.Close()
	}
	if graph != nil {
		graph.Close()
	}
}
