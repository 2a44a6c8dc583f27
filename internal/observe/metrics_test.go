package observe

import (
	"context"
	"slices"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// observed adds up the data points of met whose attribute key equals value:
// counter and gauge sums, or histogram sample counts. An empty key matches
// every point.
func observed(met *metricdata.Metrics, key, value string) int64 {
	if met == nil {
		return 0
	}
	match := func(set attribute.Set) bool {
		if key == "" {
			return true
		}
		v, ok := set.Value(attribute.Key(key))
		return ok && v.Emit() == value
	}
	var n int64
	switch data := met.Data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range data.DataPoints {
			if match(dp.Attributes) {
				n += dp.Value
			}
		}
	case metricdata.Histogram[float64]:
		for _, dp := range data.DataPoints {
			if match(dp.Attributes) {
				n += int64(dp.Count)
			}
		}
	}
	return n
}

func TestMetrics_RecordHelpers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	// A realistic interaction: wake, a couple of provider calls, one retry
	// on a failing TTS backend, then a completed outcome.
	m.WakeDetections.Add(ctx, 1)
	m.RecordVADEvent(ctx, "speech_started")
	m.RecordVADEvent(ctx, "speech_ended")
	m.RecordStage(ctx, "load", 20*time.Millisecond)
	m.RecordStage(ctx, "plan", time.Millisecond)
	m.RecordStage(ctx, "answer", 1200*time.Millisecond)
	m.RecordAnswerMode(ctx, "focused")
	m.RecordProviderRequest(ctx, "openai", "llm", "ok")
	m.RecordProviderRequest(ctx, "elevenlabs", "tts", "error")
	m.RecordProviderError(ctx, "elevenlabs", "tts")
	m.RecordProviderRequest(ctx, "elevenlabs", "tts", "ok")
	m.RecordInteraction(ctx, "completed", 3*time.Second)
	m.RecordInteraction(ctx, "aborted", time.Second)

	rm := collect(t, reader)
	tests := []struct {
		metric string
		key    string
		value  string
		want   int64
	}{
		{"nara.wake.detections", "", "", 1},
		{"nara.vad.events", "type", "speech_started", 1},
		{"nara.vad.events", "", "", 2},
		{"nara.answer.stage.duration", "stage", "answer", 1},
		{"nara.answer.stage.duration", "", "", 3},
		{"nara.answer.modes", "mode", "focused", 1},
		{"nara.answer.modes", "mode", "full", 0},
		{"nara.provider.requests", "status", "ok", 2},
		{"nara.provider.requests", "provider", "elevenlabs", 2},
		{"nara.provider.errors", "kind", "tts", 1},
		{"nara.interactions", "outcome", "completed", 1},
		{"nara.interaction.duration", "outcome", "aborted", 1},
	}
	for _, tt := range tests {
		name := tt.metric
		if tt.key != "" {
			name += "/" + tt.key + "=" + tt.value
		}
		t.Run(name, func(t *testing.T) {
			if got := observed(findMetric(rm, tt.metric), tt.key, tt.value); got != tt.want {
				t.Errorf("observed = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMetrics_LatencyHistogramsUseVoiceBuckets(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.STTDuration.Record(ctx, 0.08)
	m.LLMDuration.Record(ctx, 1.7)
	m.TTSDuration.Record(ctx, 0.3)

	rm := collect(t, reader)
	for _, name := range []string{"nara.stt.duration", "nara.llm.duration", "nara.tts.duration"} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("%s not recorded", name)
		}
		if met.Unit != "s" {
			t.Errorf("%s unit = %q, want s", name, met.Unit)
		}
		hist := met.Data.(metricdata.Histogram[float64])
		if got := hist.DataPoints[0].Bounds; !slices.Equal(got, latencyBuckets) {
			t.Errorf("%s bounds = %v, want %v", name, got, latencyBuckets)
		}
	}
}

func TestMetrics_OccupancyGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	// Two interactions in a row, and a bridge client that reconnects.
	m.ActiveInteractions.Add(ctx, 1)
	m.ActiveInteractions.Add(ctx, -1)
	m.ActiveInteractions.Add(ctx, 1)
	m.BridgeClients.Add(ctx, 1)
	m.BridgeClients.Add(ctx, -1)
	m.BridgeClients.Add(ctx, 1)

	rm := collect(t, reader)
	if got := observed(findMetric(rm, "nara.active_interactions"), "", ""); got != 1 {
		t.Errorf("active interactions = %d, want 1", got)
	}
	if got := observed(findMetric(rm, "nara.bridge.clients"), "", ""); got != 1 {
		t.Errorf("bridge clients = %d, want 1", got)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
