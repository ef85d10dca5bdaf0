// Package observe provides observability primitives for prepvoice:
// OpenTelemetry metrics, tracing, trace-aware logging and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/prepvoice"

// Outcome values for [Metrics.RecordSessionOutcome].
const (
	OutcomePersisted = "persisted"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics holds all metric instruments. The underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SessionsStarted counts calls begun. Attributes: mode.
	SessionsStarted metric.Int64Counter

	// ActiveSessions tracks sessions between begin and finish.
	ActiveSessions metric.Int64UpDownCounter

	// SessionOutcomes counts finished sessions by what their dispatch did.
	// Attributes: mode, outcome.
	SessionOutcomes metric.Int64Counter

	// TranscriptEntries counts final utterances appended. Attributes: speaker.
	TranscriptEntries metric.Int64Counter

	// VoiceErrors counts error events from the voice engine.
	VoiceErrors metric.Int64Counter

	// PersistenceRequests counts persistence calls. Attributes: op, status.
	PersistenceRequests metric.Int64Counter

	// PersistenceDuration tracks persistence call latency. Attributes: op.
	PersistenceDuration metric.Float64Histogram

	// ExtractionFallbacks counts spec fields filled from defaults.
	// Attributes: field.
	ExtractionFallbacks metric.Int64Counter

	// HTTPRequestDuration tracks control-server request time.
	// Attributes: method, route.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds for remote calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.SessionsStarted, err = m.Int64Counter("prepvoice.sessions.started",
		metric.WithDescription("Sessions begun, by mode."),
	); err != nil {
		return nil, err
	}
	if met.SessionOutcomes, err = m.Int64Counter("prepvoice.sessions.outcomes",
		metric.WithDescription("Finished sessions by mode and dispatch outcome."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptEntries, err = m.Int64Counter("prepvoice.transcript.entries",
		metric.WithDescription("Final transcript entries appended, by speaker."),
	); err != nil {
		return nil, err
	}
	if met.VoiceErrors, err = m.Int64Counter("prepvoice.voice.errors",
		metric.WithDescription("Error events reported by the voice engine."),
	); err != nil {
		return nil, err
	}
	if met.PersistenceRequests, err = m.Int64Counter("prepvoice.persistence.requests",
		metric.WithDescription("Persistence calls by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.ExtractionFallbacks, err = m.Int64Counter("prepvoice.extraction.fallbacks",
		metric.WithDescription("Interview spec fields filled from defaults, by field."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("prepvoice.sessions.active",
		metric.WithDescription("Sessions currently connecting or in a call."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.PersistenceDuration, err = m.Float64Histogram("prepvoice.persistence.duration",
		metric.WithDescription("Latency of persistence calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("prepvoice.http.request.duration",
		metric.WithDescription("Control server request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Call it after [InitProvider] so the
// instruments bind to the exporting provider.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSessionStarted increments the started counter and the active gauge.
func (m *Metrics) RecordSessionStarted(ctx context.Context, mode string) {
	m.SessionsStarted.Add(ctx, 1, metric.WithAttributes(Attr("mode", mode)))
	m.ActiveSessions.Add(ctx, 1)
}

// RecordSessionFinished decrements the active gauge.
func (m *Metrics) RecordSessionFinished(ctx context.Context) {
	m.ActiveSessions.Add(ctx, -1)
}

// RecordSessionOutcome counts one dispatched session.
func (m *Metrics) RecordSessionOutcome(ctx context.Context, mode, outcome string) {
	m.SessionOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			Attr("mode", mode),
			Attr("outcome", outcome),
		),
	)
}

// RecordTranscriptEntry counts one appended utterance.
func (m *Metrics) RecordTranscriptEntry(ctx context.Context, speaker string) {
	m.TranscriptEntries.Add(ctx, 1, metric.WithAttributes(Attr("speaker", speaker)))
}

// RecordVoiceError counts one engine error event.
func (m *Metrics) RecordVoiceError(ctx context.Context) {
	m.VoiceErrors.Add(ctx, 1)
}

// RecordPersistence records the count and latency of one persistence call.
func (m *Metrics) RecordPersistence(ctx context.Context, op, status string, seconds float64) {
	m.PersistenceRequests.Add(ctx, 1,
		metric.WithAttributes(
			Attr("op", op),
			Attr("status", status),
		),
	)
	m.PersistenceDuration.Record(ctx, seconds, metric.WithAttributes(Attr("op", op)))
}

// RecordExtractionFallback counts one defaulted spec field.
func (m *Metrics) RecordExtractionFallback(ctx context.Context, field string) {
	m.ExtractionFallbacks.Add(ctx, 1, metric.WithAttributes(Attr("field", field)))
}
