package app

import (
	"context"
	"time"

	"github.com/MrWong99/nara/internal/observe"
	"github.com/MrWong99/nara/internal/resilience"
	"github.com/MrWong99/nara/pkg/provider/llm"
	"github.com/MrWong99/nara/pkg/provider/tts"
	"github.com/MrWong99/nara/pkg/types"
)

// ── LLM ──────────────────────────────────────────────────────────────────────

// meteredLLM records latency, request and error counts for every completion.
type meteredLLM struct {
	llm.Provider
	name    string
	metrics *observe.Metrics
}

func instrumentLLM(p llm.Provider, name string, m *observe.Metrics) llm.Provider {
	return &meteredLLM{Provider: p, name: name, metrics: m}
}

func (p *meteredLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := p.Provider.Complete(ctx, req)
	p.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	recordProvider(ctx, p.metrics, p.name, "llm", err)
	return resp, err
}

// Healthy forwards to the wrapped provider when it reports breaker health.
func (p *meteredLLM) Healthy(ctx context.Context) error {
	if h, ok := p.Provider.(interface{ Healthy(context.Context) error }); ok {
		return h.Healthy(ctx)
	}
	return nil
}

// ── TTS ──────────────────────────────────────────────────────────────────────

// meteredTTS records stream setup errors and the time from stream start to
// the last audio chunk.
type meteredTTS struct {
	tts.Provider
	name    string
	metrics *observe.Metrics
}

func instrumentTTS(p tts.Provider, name string, m *observe.Metrics) tts.Provider {
	return &meteredTTS{Provider: p, name: name, metrics: m}
}

func (p *meteredTTS) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	start := time.Now()
	audio, err := p.Provider.SynthesizeStream(ctx, text, voice)
	if err != nil {
		recordProvider(ctx, p.metrics, p.name, "tts", err)
		return nil, err
	}

	out := make(chan []byte, cap(audio))
	go func() {
		defer close(out)
		for chunk := range audio {
			out <- chunk
		}
		p.metrics.TTSDuration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds())
		recordProvider(context.WithoutCancel(ctx), p.metrics, p.name, "tts", ctx.Err())
	}()
	return out, nil
}

// recordProvider counts one provider call. Cancellation is counted as its own
// status rather than an error.
func recordProvider(ctx context.Context, m *observe.Metrics, name, kind string, err error) {
	switch {
	case err == nil:
		m.RecordProviderRequest(ctx, name, kind, "ok")
	case resilience.IsCancellation(err):
		m.RecordProviderRequest(ctx, name, kind, "cancelled")
	default:
		m.RecordProviderRequest(ctx, name, kind, "error")
		m.RecordProviderError(ctx, name, kind)
	}
}
