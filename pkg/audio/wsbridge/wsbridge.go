// Package wsbridge connects a browser (or any websocket client) to Nara's
// voice path.
//
// A [Bridge] is an [http.Handler] that accepts one client at a time. It is
// both the microphone [audio.Source] and the answer [audio.Sink]:
//
//   - inbound binary messages are 16-bit little-endian PCM frames in the
//     bridge's capture format;
//   - outbound binary messages carry synthesised answer audio;
//   - text messages are small JSON control messages.
//
// Client to server control messages:
//
//	{"type":"mute","muted":true}
//
// Server to client control messages bracket each answer so the client can
// flush or drop buffered audio:
//
//	{"type":"answer_start"}
//	{"type":"answer_end"}
//	{"type":"answer_stop"}   // interrupted, discard anything buffered
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/nara/pkg/audio"
)

// ErrNoClient is returned by Play when no client is connected.
var ErrNoClient = errors.New("wsbridge: no client connected")

const (
	defaultFrameBuffer = 256
	defaultReadLimit   = 1 << 20
	controlTimeout     = 2 * time.Second
)

// ControlMessage is a JSON text message exchanged with the client.
type ControlMessage struct {
	Type  string `json:"type"`
	Muted *bool  `json:"muted,omitempty"`
}

// Option configures a [Bridge].
type Option func(*Bridge)

// WithMuteHandler is called when the client toggles mute.
func WithMuteHandler(fn func(muted bool)) Option {
	return func(b *Bridge) { b.onMute = fn }
}

// WithConnectionHandler is called with +1 when a client connects and -1 when
// it leaves.
func WithConnectionHandler(fn func(delta int64)) Option {
	return func(b *Bridge) { b.onConn = fn }
}

// WithOriginPatterns allows cross-origin clients matching the given host
// patterns. See [websocket.AcceptOptions].
func WithOriginPatterns(patterns ...string) Option {
	return func(b *Bridge) { b.origins = patterns }
}

// WithFrameBuffer sets the capacity of the capture channel.
func WithFrameBuffer(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// Bridge is a single-client websocket audio bridge.
type Bridge struct {
	format  audio.Format
	onMute  func(bool)
	onConn  func(int64)
	origins []string
	bufSize int

	frames chan audio.AudioFrame

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	dropped int
}

// New creates a Bridge whose clients send audio in format.
func New(format audio.Format, opts ...Option) *Bridge {
	b := &Bridge{format: format, bufSize: defaultFrameBuffer}
	for _, opt := range opts {
		opt(b)
	}
	b.frames = make(chan audio.AudioFrame, b.bufSize)
	return b
}

// Frames implements [audio.Source]. The channel closes when the bridge is
// closed, not when a client disconnects.
func (b *Bridge) Frames() <-chan audio.AudioFrame { return b.frames }

// Format implements [audio.Source].
func (b *Bridge) Format() audio.Format { return b.format }

// Connected reports whether a client is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
// A second concurrent client is rejected with 409 Conflict.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	busy, closed := b.conn != nil, b.closed
	b.mu.Unlock()
	if closed {
		http.Error(w, "bridge closed", http.StatusServiceUnavailable)
		return
	}
	if busy {
		http.Error(w, "a client is already connected", http.StatusConflict)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: b.origins})
	if err != nil {
		slog.Warn("wsbridge: accept failed", "err", err)
		return
	}
	conn.SetReadLimit(defaultReadLimit)

	b.mu.Lock()
	if b.conn != nil || b.closed {
		b.mu.Unlock()
		conn.Close(websocket.StatusTryAgainLater, "a client is already connected")
		return
	}
	b.conn = conn
	b.mu.Unlock()

	if b.onConn != nil {
		b.onConn(1)
	}
	slog.Info("wsbridge: client connected", "remote", r.RemoteAddr)

	err = b.readLoop(r.Context(), conn)

	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.mu.Unlock()
	if b.onConn != nil {
		b.onConn(-1)
	}

	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		slog.Info("wsbridge: client disconnected")
	case errors.Is(err, context.Canceled):
		slog.Info("wsbridge: client connection cancelled")
	default:
		slog.Warn("wsbridge: client connection ended", "err", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn) error {
	start := time.Now()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			b.push(audio.AudioFrame{
				Data:       data,
				SampleRate: b.format.SampleRate,
				Channels:   b.format.Channels,
				Timestamp:  time.Since(start),
			})
		case websocket.MessageText:
			b.handleControl(data)
		}
	}
}

// push delivers a frame without blocking the websocket reader. Frames are
// dropped when the consumer falls behind.
func (b *Bridge) push(f audio.AudioFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.frames <- f:
	default:
		b.dropped++
		if b.dropped == 1 || b.dropped%100 == 0 {
			slog.Warn("wsbridge: capture buffer full, dropping frames", "dropped", b.dropped)
		}
	}
}

func (b *Bridge) handleControl(data []byte) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("wsbridge: ignoring malformed control message", "err", err)
		return
	}
	switch msg.Type {
	case "mute":
		if msg.Muted == nil {
			slog.Debug("wsbridge: mute message without muted field")
			return
		}
		if b.onMute != nil {
			b.onMute(*msg.Muted)
		}
	default:
		slog.Debug("wsbridge: ignoring control message", "type", msg.Type)
	}
}

// Play implements [audio.Sink]. It streams pcm to the connected client as
// binary messages bracketed by answer_start and answer_end. If ctx is
// cancelled the client is told to stop and pcm is drained in the background.
func (b *Bridge) Play(ctx context.Context, pcm <-chan []byte) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		go audio.Drain(pcm)
		return ErrNoClient
	}

	if err := b.control(ctx, conn, "answer_start"); err != nil {
		go audio.Drain(pcm)
		return err
	}
	for {
		select {
		case <-ctx.Done():
			go audio.Drain(pcm)
			_ = b.control(context.WithoutCancel(ctx), conn, "answer_stop")
			return ctx.Err()
		case chunk, ok := <-pcm:
			if !ok {
				return b.control(ctx, conn, "answer_end")
			}
			if len(chunk) == 0 {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				go audio.Drain(pcm)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("wsbridge: write audio: %w", err)
			}
		}
	}
}

func (b *Bridge) control(ctx context.Context, conn *websocket.Conn, typ string) error {
	data, err := json.Marshal(ControlMessage{Type: typ})
	if err != nil {
		return fmt.Errorf("wsbridge: encode %s: %w", typ, err)
	}
	wctx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("wsbridge: write %s: %w", typ, err)
	}
	return nil
}

// Close disconnects the client and closes the Frames channel.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.frames)
	conn := b.conn
	b.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return nil
}

var (
	_ audio.Source = (*Bridge)(nil)
	_ audio.Sink   = (*Bridge)(nil)
)
