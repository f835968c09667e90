// Package observe provides application-wide observability primitives for
// unamentis: OpenTelemetry metrics, distributed tracing, and structured
// logging glue.
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all unamentis metrics.
const meterName = "github.com/unamentis/unamentis"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks latency from end of user speech to final transcript.
	STTDuration metric.Float64Histogram

	// LLMTimeToFirstToken tracks latency from LLM request to first token.
	LLMTimeToFirstToken metric.Float64Histogram

	// TTSTimeToFirstByte tracks latency from TTS request to first audio byte.
	TTSTimeToFirstByte metric.Float64Histogram

	// TurnDuration tracks end-to-end latency from end of user speech to
	// start of audio playback.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed conversation turns. Use with attribute:
	//   attribute.String("outcome", ...) — "completed", "cancelled", "error"
	Turns metric.Int64Counter

	// BargeIns counts user interruptions of in-progress responses.
	BargeIns metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live tutoring sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Cost ---

	// ProviderCost accumulates estimated provider spend in USD. Use with
	// attributes:
	//   attribute.String("provider", ...), attribute.String("type", ...)
	ProviderCost metric.Float64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("unamentis.stt.duration",
		metric.WithDescription("Latency from end of user speech to final transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMTimeToFirstToken, err = m.Float64Histogram("unamentis.llm.ttft",
		metric.WithDescription("Latency from LLM request to first streamed token."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSTimeToFirstByte, err = m.Float64Histogram("unamentis.tts.ttfb",
		metric.WithDescription("Latency from TTS request to first audio byte."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("unamentis.turn.duration",
		metric.WithDescription("End-to-end latency from end of user speech to start of playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("unamentis.turns",
		metric.WithDescription("Total conversation turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("unamentis.barge_ins",
		metric.WithDescription("Total user interruptions of in-progress responses."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("unamentis.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("unamentis.active_sessions",
		metric.WithDescription("Number of live tutoring sessions."),
	); err != nil {
		return nil, err
	}

	// Cost.
	if met.ProviderCost, err = m.Float64Counter("unamentis.provider.cost",
		metric.WithDescription("Accumulated estimated provider spend by provider and type."),
		metric.WithUnit("{USD}"),
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

// RecordTurn records a completed turn with its outcome.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordBargeIn records a user interruption.
func (m *Metrics) RecordBargeIn(ctx context.Context) {
	m.BargeIns.Add(ctx, 1)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCost records estimated provider spend in USD.
func (m *Metrics) RecordCost(ctx context.Context, provider, costType string, usd float64) {
	m.ProviderCost.Add(ctx, usd,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("type", costType),
		),
	)
}
