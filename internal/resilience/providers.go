package resilience

import (
	"context"

	"github.com/MrWong99/nara/pkg/provider/llm"
	"github.com/MrWong99/nara/pkg/provider/stt"
	"github.com/MrWong99/nara/pkg/provider/tts"
	"github.com/MrWong99/nara/pkg/types"
)

// Provider-typed wrappers around [FallbackGroup]. Each one satisfies the
// interface it wraps so the app never needs to know failover is in play.

var (
	_ llm.Provider = (*LLMFallback)(nil)
	_ stt.Provider = (*STTFallback)(nil)
	_ tts.Provider = (*TTSFallback)(nil)
)

// ── LLM ──────────────────────────────────────────────────────────────────────

// LLMFallback fails a completion over to the next model backend.
type LLMFallback struct {
	*FallbackGroup[llm.Provider]
}

// NewLLMFallback returns an [LLMFallback] preferring primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities reports the smallest context window and output cap across
// all backends, so a packed prompt fits whichever one ends up answering.
// JSON mode follows the primary; backends without it ignore the flag.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	caps := f.Primary().Capabilities()
	for _, e := range f.entries[1:] {
		c := e.value.Capabilities()
		if c.ContextWindow > 0 && c.ContextWindow < caps.ContextWindow {
			caps.ContextWindow = c.ContextWindow
		}
		if c.MaxOutputTokens > 0 && c.MaxOutputTokens < caps.MaxOutputTokens {
			caps.MaxOutputTokens = c.MaxOutputTokens
		}
	}
	return caps
}

// ── STT ──────────────────────────────────────────────────────────────────────

// STTFallback fails stream setup over to the next transcription backend.
// A live session's later failures belong to the caller.
type STTFallback struct {
	*FallbackGroup[stt.Provider]
}

// NewSTTFallback returns an [STTFallback] preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

// ── TTS ──────────────────────────────────────────────────────────────────────

// TTSFallback fails stream setup over to the next synthesis backend. Once a
// backend returns its audio channel it owns the text channel.
type TTSFallback struct {
	*FallbackGroup[tts.Provider]
}

// NewTTSFallback returns a [TTSFallback] preferring primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
