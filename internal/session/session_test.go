package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/livecapd/livecap/internal/audio"
	"github.com/livecapd/livecap/internal/deepgram"
	"github.com/livecapd/livecap/internal/token"
	"github.com/livecapd/livecap/internal/transcribe"
)

type fakeTransport struct {
	mu     sync.Mutex
	chunks [][]byte
	closed int
}

func (f *fakeTransport) WriteChunk(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, append([]byte(nil), p...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) closeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) chunkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}

type fakeMixer struct {
	mu       sync.Mutex
	graph    *audio.Graph
	started  []string
	startErr error
	closed   int
	attached []*audio.Stream
	detached int
}

func (m *fakeMixer) Start(deviceID string, sampleRate, framesPerBuffer int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, deviceID)
	if m.graph == nil {
		m.graph = audio.NewGraph()
	}
	return m.startErr
}

func (m *fakeMixer) AttachSecondary(s *audio.Stream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = append(m.attached, s)
}

func (m *fakeMixer) DetachSecondary() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detached++
}

func (m *fakeMixer) Graph() *audio.Graph {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph
}

func (m *fakeMixer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	if m.graph != nil {
		m.graph.Close()
		m.graph = nil
	}
}

func (m *fakeMixer) startCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}

type testSession struct {
	*Session
	mixer     *fakeMixer
	transport *fakeTransport
	dialCalls *int
}

func newTestSession(t *testing.T, tokens TokenFetcher) *testSession {
	t.Helper()
	s := New(Config{ChunkInterval: 5 * time.Millisecond}, tokens)
	mixer := &fakeMixer{}
	transport := &fakeTransport{}
	dialCalls := 0
	s.mixer = mixer
	s.dial = func(ctx context.Context, rawURL, key string, h deepgram.Handler) (Transport, error) {
		dialCalls++
		return transport, nil
	}
	t.Cleanup(s.Stop)
	return &testSession{Session: s, mixer: mixer, transport: transport, dialCalls: &dialCalls}
}

func (ts *testSession) waitRecording(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ts.mu.Lock()
		recording := ts.recording
		ts.mu.Unlock()
		if recording {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for audio acquisition")
}

func collectErrors(s *Session) chan transcribe.ErrorEvent {
	ch := make(chan transcribe.ErrorEvent, 8)
	s.OnError(func(ev transcribe.ErrorEvent) { ch <- ev })
	return ch
}

func collectCaptions(s *Session) chan transcribe.CaptionEvent {
	ch := make(chan transcribe.CaptionEvent, 8)
	s.OnCaption(func(ev transcribe.CaptionEvent) { ch <- ev })
	return ch
}

func TestStartTwiceIsNoOp(t *testing.T) {
	ts := newTestSession(t, token.Static("key"))

	if err := ts.Start(context.Background(), ""); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	ts.waitRecording(t)
	if err := ts.Start(context.Background(), ""); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	if *ts.dialCalls != 1 {
		t.Fatalf("expected 1 connection, got %d", *ts.dialCalls)
	}
	if ts.mixer.startCalls() != 1 {
		t.Fatalf("expected 1 audio acquisition, got %d", ts.mixer.startCalls())
	}
	if !ts.IsActive() {
		t.Fatal("session must be active after Start")
	}
}

func TestStopSafeFromAnyState(t *testing.T) {
	ts := newTestSession(t, token.Static("key"))

	ts.Stop()
	ts.Stop()
	if ts.IsActive() {
		t.Fatal("never-started session must be inactive")
	}

	if err := ts.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ts.waitRecording(t)
	ts.Stop()
	ts.Stop()

	if ts.IsActive() {
		t.Fatal("stopped session must be inactive")
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.conn != nil || ts.encoder != nil || ts.recording {
		t.Fatal("handles not cleared on stop")
	}
}

func TestCredentialFailureRejectsStart(t *testing.T) {
	ts := newTestSession(t, token.Static(""))

	err := ts.Start(context.Background(), "")
	if !errors.Is(err, token.ErrNoKey) {
		t.Fatalf("expected credential failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "credential") {
		t.Fatalf("expected credential-related message, got %q", err.Error())
	}
	if ts.IsActive() {
		t.Fatal("session must stay inactive after credential failure")
	}
	if *ts.dialCalls != 0 {
		t.Fatal("no connection attempt without a credential")
	}
}

func TestAbnormalCloseEmitsErrorThenTearsDown(t *testing.T) {
	ts := newTestSession(t, token.Static("key"))
	errCh := collectErrors(ts.Session)

	if err := ts.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ts.waitRecording(t)

	transportHandler{ts.Session}.OnClose(4001, "auth")

	select {
	case ev := <-errCh:
		if !strings.Contains(ev.Message, "authentication") {
			t.Fatalf("expected authentication failure message, got %q", ev.Message)
		}
		if ev.Recoverable {
			t.Fatal("abnormal close is not recoverable")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close error event")
	}

	if ts.IsActive() {
		t.Fatal("session must be inactive after abnormal close")
	}
	if ts.transport.closeCalls() == 0 {
		t.Fatal("connection not closed during teardown")
	}
	ts.mixer.mu.Lock()
	closed := ts.mixer.closed
	ts.mixer.mu.Unlock()
	if closed == 0 {
		t.Fatal("audio sources not released during teardown")
	}
}

func TestNormalCloseTearsDownSilently(t *testing.T) {
	ts := newTestSession(t, token.Static("key"))
	errCh := collectErrors(ts.Session)

	if err := ts.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ts.waitRecording(t)

	transportHandler{ts.Session}.OnClose(1000, "")

	if ts.IsActive() {
		t.Fatal("session must be inactive after close")
	}
	select {
	case ev := <-errCh:
		t.Fatalf("normal close must not emit an error event, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServiceErrorPayloadIsNonFatal(t *testing.T) {
	ts := newTestSession(t, token.Static("key"))
	errCh := collectErrors(ts.Session)
	captionCh := collectCaptions(ts.Session)

	if err := ts.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ts.waitRecording(t)

	transportHandler{ts.Session}.OnMessage([]byte(`{"error": "model overloaded"}`))

	select {
	case ev := <-errCh:
		if !strings.Contains(ev.Message, "model overloaded") {
			t.Fatalf("unexpected error message %q", ev.Message)
		}
		if !ev.Recoverable {
			t.Fatal("service error payloads are non-fatal")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for service error event")
	}

	select {
	case ev := <-captionCh:
		t.Fatalf("error payload must not produce a caption, got %+v", ev)
	default:
	}
	if !ts.IsActive() {
		t.Fatal("session must survive a service error payload")
	}
}

func TestInterimThenFinalCaptions(t *testing.T) {
	ts := newTestSession(t, token.Static("key"))
	captionCh := collectCaptions(ts.Session)

	if err := ts.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ts.waitRecording(t)

	h := transportHandler{ts.Session}
	h.OnMessage([]byte(`{"channel": {"alternatives": [{"transcript": "hel"}]}, "is_final": false}`))
	h.OnMessage([]byte(`{"channel": {"alternatives": [{"transcript": "hello world"}]}, "is_final": true}`))
	h.OnMessage([]byte(`{"channel": {"alternatives": [{"transcript": ""}]}, "is_final": false}`))

	interim := <-captionCh
	final := <-captionCh
	if interim.IsFinal {
		t.Fatalf("expected interim first, got %+v", interim)
	}
	if !final.IsFinal {
		t.Fatalf("expected final second, got %+v", final)
	}
	select {
	case ev := <-captionCh:
		t.Fatalf("empty transcript must emit nothing, got %+v", ev)
	default:
	}
}

func TestAcquisitionFailureKeepsConnection(t *testing.T) {
	ts := newTestSession(t, token.Static("key"))
	ts.mixer.startErr = errors.New("permission denied")
	errCh := collectErrors(ts.Session)

	if err := ts.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start must not fail on audio acquisition: %v", err)
	}

	select {
	case ev := <-errCh:
		if !strings.Contains(ev.Message, "audio capture unavailable") {
			t.Fatalf("unexpected error message %q", ev.Message)
		}
		if !ev.Recoverable {
			t.Fatal("acquisition failure leaves the socket healthy")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for acquisition error event")
	}

	if !ts.IsActive() {
		t.Fatal("socket must stay up after acquisition failure")
	}
	if ts.transport.closeCalls() != 0 {
		t.Fatal("connection must not be closed on acquisition failure")
	}
}

func TestMixedAudioReachesTransport(t *testing.T) {
	ts := newTestSession(t, token.Static("key"))

	if err := ts.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ts.waitRecording(t)

	node := ts.mixer.Graph().NewNode()
	if _, err := node.Write([]byte{1, 0, 2, 0, 3, 0}); err != nil {
		t.Fatalf("write pcm: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ts.transport.chunkCount() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for audio chunk on transport")
}

func TestSecondaryAudioDelegation(t *testing.T) {
	ts := newTestSession(t, token.Static("key"))

	stream := &audio.Stream{ID: "share-1"}
	ts.AddSecondaryAudio(stream)
	ts.RemoveSecondaryAudio()

	ts.mixer.mu.Lock()
	defer ts.mixer.mu.Unlock()
	if len(ts.mixer.attached) != 1 || ts.mixer.attached[0] != stream {
		t.Fatal("secondary stream not forwarded to the mixer")
	}
	if ts.mixer.detached != 1 {
		t.Fatal("secondary detach not forwarded to the mixer")
	}
}
