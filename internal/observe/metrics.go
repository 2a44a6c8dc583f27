// Package observe provides application-wide observability primitives for
// Nara: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Nara metrics.
const meterName = "github.com/MrWong99/nara"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// STTDuration tracks speech-to-text session setup latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks time from the first text fragment to stream end.
	TTSDuration metric.Float64Histogram

	// AnswerStageDuration tracks each answering pipeline stage. Use with
	// attribute:
	//   attribute.String("stage", ...)
	AnswerStageDuration metric.Float64Histogram

	// InteractionDuration tracks wall time from question to outcome. Use with
	// attribute:
	//   attribute.String("outcome", ...)
	InteractionDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Interactions counts finished interactions by outcome.
	Interactions metric.Int64Counter

	// AnswerModes counts content-inclusion modes chosen by the planner.
	AnswerModes metric.Int64Counter

	// VADEvents counts speech start/end transitions.
	VADEvents metric.Int64Counter

	// WakeDetections counts wake phrase detections.
	WakeDetections metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveInteractions is 1 while an interaction owns playback, else 0.
	ActiveInteractions metric.Int64UpDownCounter

	// BridgeClients tracks connected audio bridge clients.
	BridgeClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time by method,
	// matched route pattern and status code. Recorded by [Middleware].
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "nara.stt.duration", "Latency of speech-to-text session setup."},
		{&met.LLMDuration, "nara.llm.duration", "Latency of LLM completions."},
		{&met.TTSDuration, "nara.tts.duration", "Latency of text-to-speech synthesis."},
		{&met.AnswerStageDuration, "nara.answer.stage.duration", "Latency of each answering pipeline stage."},
		{&met.InteractionDuration, "nara.interaction.duration", "Wall time from question to outcome."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	// Counters.
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "nara.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.Interactions, "nara.interactions", "Finished interactions by outcome."},
		{&met.AnswerModes, "nara.answer.modes", "Content-inclusion modes chosen by the budget planner."},
		{&met.VADEvents, "nara.vad.events", "Voice activity transitions by type."},
		{&met.WakeDetections, "nara.wake.detections", "Wake phrase detections."},
		{&met.ProviderErrors, "nara.provider.errors", "Total provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	// Gauges (UpDownCounters).
	if met.ActiveInteractions, err = m.Int64UpDownCounter("nara.active_interactions",
		metric.WithDescription("Number of interactions currently holding playback."),
	); err != nil {
		return nil, err
	}
	if met.BridgeClients, err = m.Int64UpDownCounter("nara.bridge.clients",
		metric.WithDescription("Number of connected audio bridge clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("nara.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordStage records one answering pipeline stage latency.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.AnswerStageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordInteraction counts a finished interaction and its duration.
func (m *Metrics) RecordInteraction(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Interactions.Add(ctx, 1, attrs)
	m.InteractionDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordAnswerMode counts one planner decision.
func (m *Metrics) RecordAnswerMode(ctx context.Context, mode string) {
	m.AnswerModes.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordVADEvent counts one voice activity transition.
func (m *Metrics) RecordVADEvent(ctx context.Context, kind string) {
	m.VADEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", kind)))
}
