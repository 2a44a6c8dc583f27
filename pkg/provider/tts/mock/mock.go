// Package mock provides a test double for the tts.Provider interface.
//
// Provider reads every text fragment it is given, records it, and emits one
// audio chunk per fragment. By default the chunk is the fragment's bytes, so a
// test can assert on what was "spoken" by inspecting the audio sink.
//
// Example:
//
//	p := &mock.Provider{}
//	audio, _ := p.SynthesizeStream(ctx, textCh, voice)
//	// ... later
//	p.Spoken() // ["Rand is a shepherd."]
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/nara/pkg/provider/tts"
	"github.com/MrWong99/nara/pkg/types"
)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	// Voice is the VoiceProfile passed to SynthesizeStream.
	Voice types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// ChunkFor maps a text fragment to the audio emitted for it. When nil the
	// fragment's bytes are emitted.
	ChunkFor func(text string) []byte

	// SynthesizeErr, if non-nil, is returned from SynthesizeStream instead of
	// starting a stream.
	SynthesizeErr error

	// Hold keeps the audio channel open after the text channel closes until
	// ctx is cancelled. Use it to simulate a long answer that can be interrupted.
	Hold bool

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []types.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// SynthesizeStreamCalls records every call to SynthesizeStream in order.
	SynthesizeStreamCalls []SynthesizeStreamCall

	// ListVoicesCallCount is the number of ListVoices calls.
	ListVoicesCallCount int

	spoken []string
}

// SynthesizeStream records the call and returns a channel emitting one chunk
// per received text fragment. The channel closes when text closes (or, with
// Hold, when ctx is cancelled).
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunkFor := p.ChunkFor
	hold := p.Hold
	p.mu.Unlock()

	if chunkFor == nil {
		chunkFor = func(s string) []byte { return []byte(s) }
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for {
			select {
			case s, ok := <-text:
				if !ok {
					if hold {
						<-ctx.Done()
					}
					return
				}
				p.mu.Lock()
				p.spoken = append(p.spoken, s)
				p.mu.Unlock()
				select {
				case out <- chunkFor(s):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCallCount++
	return p.ListVoicesResult, p.ListVoicesErr
}

// Spoken returns every text fragment received across all streams. Thread-safe.
func (p *Provider) Spoken() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.spoken...)
}

// CallCount returns the number of SynthesizeStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeStreamCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeStreamCalls = nil
	p.ListVoicesCallCount = 0
	p.spoken = nil
}

var _ tts.Provider = (*Provider)(nil)
