// Package deepgram implements the persistent streaming connection to the
// recognition service: dial and authenticate, outbound audio frames,
// inbound message delivery, and close-code reporting.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	keepAliveInterval = 8 * time.Second
	handshakeTimeout  = 10 * time.Second
)

// Options are the fixed query configuration flags for the listen endpoint.
// They are configuration constants for the life of a session, not
// behavioral branches.
type Options struct {
	Host           string
	Model          string
	Language       string
	SmartFormat    bool
	InterimResults bool
	Diarize        bool
	Punctuate      bool
	EndpointingMs  int
	Encoding       string
	SampleRate     int
	Channels       int
}

// ListenURL renders Options as the wss listen URL.
func ListenURL(opts Options) string {
	host := opts.Host
	if host == "" {
		host = "api.deepgram.com"
	}
	model := opts.Model
	if model == "" {
		model = "nova-2"
	}
	language := opts.Language
	if language == "" {
		language = "en-US"
	}
	encoding := opts.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := opts.Channels
	if channels <= 0 {
		channels = 1
	}

	q := url.Values{}
	q.Set("model", model)
	q.Set("language", language)
	q.Set("smart_format", strconv.FormatBool(opts.SmartFormat))
	q.Set("interim_results", strconv.FormatBool(opts.InterimResults))
	q.Set("diarize", strconv.FormatBool(opts.Diarize))
	q.Set("punctuate", strconv.FormatBool(opts.Punctuate))
	if opts.EndpointingMs > 0 {
		q.Set("endpointing", strconv.Itoa(opts.EndpointingMs))
	}
	q.Set("encoding", encoding)
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", strconv.Itoa(channels))

	u := url.URL{Scheme: "wss", Host: host, Path: "/v1/listen", RawQuery: q.Encode()}
	return u.String()
}

// Handler receives connection notifications. Calls arrive from the read
// loop goroutine, one at a time, in receipt order. OnClose is the final
// call for a connection unless Close was invoked locally first.
type Handler interface {
	OnMessage(raw []byte)
	OnTransportError(err error)
	OnClose(code int, reason string)
}

// Client is one live connection to the recognition service.
type Client struct {
	conn    *websocket.Conn
	handler Handler

	writeMu sync.Mutex

	mu       sync.Mutex
	stopping bool

	done chan struct{}
}

// Dial opens the connection, carrying the credential as a token-style
// subprotocol pair in the handshake, and starts the read loop.
func Dial(ctx context.Context, rawURL, key string, handler Handler) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     []string{"token", key},
	}
	conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial recognition service: %w", err)
	}

	c := &Client{conn: conn, handler: handler, done: make(chan struct{})}
	go c.readLoop()
	go c.keepAlive()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.isStopping() {
				return
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				c.handler.OnClose(ce.Code, ce.Text)
				return
			}
			// the close notification stays authoritative for cleanup
			c.handler.OnTransportError(err)
			c.handler.OnClose(websocket.CloseAbnormalClosure, err.Error())
			return
		}
		c.handler.OnMessage(raw)
	}
}

// keepAlive keeps the recognition service from idling the connection out
// between audio chunks.
func (c *Client) keepAlive() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.isStopping() {
				return
			}
			c.writeMu.Lock()
			err := c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// WriteChunk sends one encoded audio chunk. Chunks written after the
// connection has closed are dropped silently; the encoder may still be
// draining during the teardown race.
func (c *Client) WriteChunk(p []byte) error {
	if c.isStopping() {
		return nil
	}
	select {
	case <-c.done:
		return nil
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return fmt.Errorf("write audio chunk: %w", err)
	}
	return nil
}

func (c *Client) isStopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}

// Close finalizes the stream and tears the connection down. Idempotent;
// suppresses further handler notifications.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}

// IsNormalClose reports whether a close code represents orderly shutdown.
func IsNormalClose(code int) bool {
	return code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway
}

// CloseCodeMessage maps known service close codes to readable messages;
// unknown codes report the raw code and reason.
func CloseCodeMessage(code int, reason string) string {
	switch code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway:
		return "connection closed"
	case websocket.CloseAbnormalClosure:
		if reason != "" {
			return "connection lost: " + reason
		}
		return "connection lost"
	case websocket.CloseInternalServerErr:
		return "recognition service internal error"
	case 4000:
		return "recognition service rejected the request"
	case 4001:
		return "recognition service authentication failed"
	case 4008:
		return "recognition service rate limit exceeded"
	default:
		return fmt.Sprintf("connection closed unexpectedly (code %d: %s)", code, reason)
	}
}
