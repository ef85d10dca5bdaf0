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

// useTestTracer installs an in-memory tracer as the global provider for the
// duration of the test. Tests using it must not run in parallel.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
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

func TestStartSpan_DispatchSpanCarriesCorrelationID(t *testing.T) {
	exp := useTestTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "controller.dispatch")
	cid := CorrelationID(ctx)
	span.End()

	if len(cid) != 32 {
		t.Errorf("correlation id = %q, want 32 hex chars", cid)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "controller.dispatch" {
		t.Fatalf("spans = %+v, want one controller.dispatch", spans)
	}
	if spans[0].SpanContext.TraceID().String() != cid {
		t.Errorf("span trace id %s != correlation id %s", spans[0].SpanContext.TraceID(), cid)
	}
}

func TestLogger_TraceFields(t *testing.T) {
	useTestTracer(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	ctx, span := StartSpan(context.Background(), "controller.dispatch")
	defer span.End()

	tests := []struct {
		name      string
		ctx       context.Context
		wantTrace bool
	}{
		{"with span", ctx, true},
		{"without span", context.Background(), false},
	}
	for _, tc := range tests {
		buf.Reset()
		Logger(tc.ctx).Info("session dispatched")
		out := buf.String()
		hasTrace := strings.Contains(out, "trace_id=") && strings.Contains(out, "span_id=")
		if hasTrace != tc.wantTrace {
			t.Errorf("%s: trace fields present = %v, want %v: %s", tc.name, hasTrace, tc.wantTrace, out)
		}
	}
}
