package audio

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/gordonklaus/portaudio"
)

// DeviceSecondaryOnly is an advisory device selector: it suppresses any
// device-specific constraint and captures from the platform default input.
const DeviceSecondaryOnly = "secondary-only"

// Initialize prepares the PortAudio subsystem. Call once before any
// capture; pair with Teardown on shutdown.
func Initialize() error {
	return portaudio.Initialize()
}

func Teardown() {
	_ = portaudio.Terminate()
}

// Mic wraps a PortAudio capture stream with a configurable buffer size.
type Mic struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewMic opens a capture stream on the named input device, falling back to
// the platform default when the identifier is empty, advisory, or unknown.
func NewMic(deviceID string, sampleRate, framesPerBuffer int) (*Mic, error) {
	buf := make([]int16, framesPerBuffer)
	stream, err := openInputStream(deviceID, float64(sampleRate), buf)
	if err != nil {
		return nil, err
	}
	return &Mic{stream: stream, buf: buf}, nil
}

func openInputStream(deviceID string, sampleRate float64, buf []int16) (*portaudio.Stream, error) {
	if deviceID == "" || deviceID == DeviceSecondaryOnly {
		return portaudio.OpenDefaultStream(1, 0, sampleRate, len(buf), buf)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 || dev.Name != deviceID {
			continue
		}
		params := portaudio.HighLatencyParameters(dev, nil)
		params.Input.Channels = 1
		params.SampleRate = sampleRate
		params.FramesPerBuffer = len(buf)
		return portaudio.OpenStream(params, buf)
	}

	// unknown selector falls back to the default input
	return portaudio.OpenDefaultStream(1, 0, sampleRate, len(buf), buf)
}

func (m *Mic) Start() error { return m.stream.Start() }
func (m *Mic) Stop() error  { return m.stream.Stop() }
func (m *Mic) Close() error { return m.stream.Close() }

// Stream reads from the mic and writes PCM16-LE to w until an error or stop.
func (m *Mic) Stream(w io.Writer) error {
	var out bytes.Buffer
	out.Grow(len(m.buf) * 2) // pre-allocate: int16 = 2 bytes per sample
	for {
		if err := m.stream.Read(); err != nil {
			return err
		}
		out.Reset()
		if err := binary.Write(&out, binary.LittleEndian, m.buf); err != nil {
			return err
		}
		if _, err := w.Write(out.Bytes()); err != nil {
			return err
		}
	}
}
