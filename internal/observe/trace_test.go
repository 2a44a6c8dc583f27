package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer provider as the global provider for
// the duration of the test. Tests calling it must not run in parallel.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestStartSpan(t *testing.T) {
	exp := useTracer(t)

	ctx, span := StartSpan(context.Background(), "answer.load")
	if len(CorrelationID(ctx)) != 32 {
		t.Errorf("CorrelationID = %q, want 32 hex chars", CorrelationID(ctx))
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "answer.load" {
		t.Fatalf("spans = %v, want one answer.load span", spans)
	}
	if got := spans[0].InstrumentationScope.Name; got != tracerName {
		t.Errorf("scope = %q, want %q", got, tracerName)
	}
}

func TestCorrelationID_NoSpan(t *testing.T) {
	t.Parallel()
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty", got)
	}
}

func TestInteractionID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	if got := InteractionID(ctx); got != "" {
		t.Errorf("InteractionID(empty) = %q", got)
	}
	ctx = WithInteractionID(ctx, "int-1")
	if got := InteractionID(ctx); got != "int-1" {
		t.Errorf("InteractionID = %q, want int-1", got)
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)

	tests := []struct {
		name    string
		ctx     func() context.Context
		want    []string
		notWant []string
	}{
		{
			name:    "bare context",
			ctx:     context.Background,
			notWant: []string{"trace_id", "interaction_id"},
		},
		{
			name: "interaction only",
			ctx: func() context.Context {
				return WithInteractionID(context.Background(), "int-7")
			},
			want:    []string{"interaction_id=int-7"},
			notWant: []string{"trace_id"},
		},
		{
			name: "interaction and span",
			ctx: func() context.Context {
				ctx, _ := StartSpan(WithInteractionID(context.Background(), "int-8"), "interaction")
				return ctx
			},
			want: []string{"interaction_id=int-8", "trace_id=", "span_id="},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := captureLogs(t)
			Logger(tc.ctx()).Info("hello")
			out := buf.String()
			for _, w := range tc.want {
				if !strings.Contains(out, w) {
					t.Errorf("log %q missing %q", out, w)
				}
			}
			for _, n := range tc.notWant {
				if strings.Contains(out, n) {
					t.Errorf("log %q should not contain %q", out, n)
				}
			}
		})
	}
}
