// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// Deepgram finalises audio in segments (is_final) and marks the end of a spoken
// utterance separately (speech_final, or an UtteranceEnd message). The session
// stitches finalised segments together and emits one Final per utterance so the
// recognizer always sees the complete question.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/nara/pkg/provider/stt"
	"github.com/MrWong99/nara/pkg/types"
)

const (
	deepgramEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel       = "nova-3"
	defaultLanguage    = "en"
	defaultSampleRate  = 16000
	defaultEndpointing = 300 * time.Millisecond
	utteranceEndMs     = 1000
	keepAliveInterval  = 5 * time.Second
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the audio sample rate in Hz for the provider-level default.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the streaming endpoint. Intended for tests and
// self-hosted deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	role := cfg.Role
	if role == "" {
		role = types.RoleListener
	}

	sess := &session{
		conn:     conn,
		role:     role,
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}
	endpointing := cfg.Endpointing
	if endpointing <= 0 {
		endpointing = defaultEndpointing
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("endpointing", strconv.FormatInt(endpointing.Milliseconds(), 10))
	q.Set("utterance_end_ms", strconv.Itoa(utteranceEndMs))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}

	for _, kw := range cfg.Keywords {
		// Deepgram keyword format: word:boost (e.g., "Nara:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// deepgramMessage is the subset of Deepgram's streaming messages we consume.
// Results carry transcripts; UtteranceEnd closes an utterance when endpointing
// did not fire.
type deepgramMessage struct {
	Type        string  `json:"type"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Start       float64 `json:"start"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session. It implements stt.SessionHandle.
type session struct {
	conn     *websocket.Conn
	role     types.Role
	partials chan types.Transcript
	finals   chan types.Transcript
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	// utt accumulates finalised segments of the utterance in progress.
	// Only touched by readLoop.
	utt utterance
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

// Partials returns the channel of interim transcripts.
func (s *session) Partials() <-chan types.Transcript { return s.partials }

// Finals returns the channel of completed utterances.
func (s *session) Finals() <-chan types.Transcript { return s.finals }

// Close terminates the session cleanly.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		// Ask Deepgram to flush pending audio before the socket closes.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

// writeLoop forwards audio chunks as binary messages and keeps the socket
// alive while the microphone is silent.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
			keepAlive.Reset(keepAliveInterval)
		case <-keepAlive.C:
			if err := s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"KeepAlive"}`)); err != nil {
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches them to the
// partials and finals channels.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation; flush what we have.
			if t, ok := s.utt.flush(s.role); ok {
				s.emit(s.finals, t)
			}
			return
		}

		var m deepgramMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			continue
		}
		for _, t := range s.handle(m) {
			if t.IsFinal {
				s.emit(s.finals, t)
			} else {
				s.emit(s.partials, t)
			}
		}
	}
}

// handle converts one Deepgram message into zero or more transcripts.
func (s *session) handle(m deepgramMessage) []types.Transcript {
	switch m.Type {
	case "UtteranceEnd":
		if t, ok := s.utt.flush(s.role); ok {
			return []types.Transcript{t}
		}
		return nil
	case "Results":
	default:
		return nil
	}

	seg, ok := parseSegment(m)
	if !ok {
		return nil
	}
	if !m.IsFinal {
		partial := s.utt.preview(seg)
		partial.Role = s.role
		return []types.Transcript{partial}
	}

	s.utt.add(seg)
	if !m.SpeechFinal {
		return nil
	}
	if t, ok := s.utt.flush(s.role); ok {
		return []types.Transcript{t}
	}
	return nil
}

func (s *session) emit(ch chan types.Transcript, t types.Transcript) {
	select {
	case ch <- t:
	case <-s.done:
	}
}

// parseSegment extracts the best alternative of a Results message.
// Empty transcripts are ignored.
func parseSegment(m deepgramMessage) (types.Transcript, bool) {
	if len(m.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}
	alt := m.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return types.Transcript{}, false
	}
	return types.Transcript{
		Text:       text,
		Confidence: alt.Confidence,
		Timestamp:  time.Duration(m.Start * float64(time.Second)),
	}, true
}

// utterance stitches finalised Deepgram segments into a single utterance.
type utterance struct {
	parts      []string
	confidence float64
	start      time.Duration
}

func (u *utterance) add(seg types.Transcript) {
	if len(u.parts) == 0 {
		u.start = seg.Timestamp
		u.confidence = seg.Confidence
	} else {
		u.confidence = min(u.confidence, seg.Confidence)
	}
	u.parts = append(u.parts, seg.Text)
}

// preview returns the utterance so far followed by an interim segment.
func (u *utterance) preview(seg types.Transcript) types.Transcript {
	if len(u.parts) == 0 {
		return seg
	}
	return types.Transcript{
		Text:       strings.Join(append(append([]string(nil), u.parts...), seg.Text), " "),
		Confidence: min(u.confidence, seg.Confidence),
		Timestamp:  u.start,
	}
}

// flush returns the completed utterance and clears the accumulator.
func (u *utterance) flush(role types.Role) (types.Transcript, bool) {
	if len(u.parts) == 0 {
		return types.Transcript{}, false
	}
	t := types.Transcript{
		Text:       strings.Join(u.parts, " "),
		IsFinal:    true,
		Confidence: u.confidence,
		Timestamp:  u.start,
		Role:       role,
	}
	*u = utterance{}
	return t, true
}
