// Package observe provides application-wide observability primitives for
// Voxwire: OpenTelemetry metrics, distributed tracing, structured logging,
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxwire metrics.
const meterName = "github.com/voxwire/voxwire"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ASRFinalDelay tracks the time from the first audio frame of an
	// utterance to its final transcript.
	ASRFinalDelay metric.Float64Histogram

	// LLMFirstToken tracks the time from turn start to the first model token.
	LLMFirstToken metric.Float64Histogram

	// TTSFirstChunk tracks the time from segment dispatch to the first PCM
	// chunk of the turn.
	TTSFirstChunk metric.Float64Histogram

	// TurnDuration tracks end-to-end turn latency: final transcript to last
	// outbound frame of the turn.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts turns by outcome. Use with attribute:
	//   attribute.String("outcome", "completed"|"interrupted"|"error")
	Turns metric.Int64Counter

	// BargeIns counts detected barge-ins by trigger. Use with attribute:
	//   attribute.String("trigger", "vad"|"client"|"asr_final")
	BargeIns metric.Int64Counter

	// MalformedFrames counts dropped malformed inbound frames. Use with
	// attribute: attribute.String("class", "text"|"binary")
	MalformedFrames metric.Int64Counter

	// StaleDropped counts outbound items suppressed by the scheduler because
	// their epoch was superseded.
	StaleDropped metric.Int64Counter

	// ProviderErrors counts adapter errors. Use with attributes:
	//   attribute.String("kind", "asr"|"llm"|"tts"), attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live client sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
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
	if met.ASRFinalDelay, err = m.Float64Histogram("voxwire.asr.final_delay",
		metric.WithDescription("Time from first utterance audio to final transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMFirstToken, err = m.Float64Histogram("voxwire.llm.first_token",
		metric.WithDescription("Time from turn start to first model token."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSFirstChunk, err = m.Float64Histogram("voxwire.tts.first_chunk",
		metric.WithDescription("Time from segment dispatch to first synthesised PCM chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("voxwire.turn.duration",
		metric.WithDescription("End-to-end turn latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("voxwire.turns",
		metric.WithDescription("Total turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("voxwire.barge_ins",
		metric.WithDescription("Total detected barge-ins by trigger."),
	); err != nil {
		return nil, err
	}
	if met.MalformedFrames, err = m.Int64Counter("voxwire.frames.malformed",
		metric.WithDescription("Total malformed inbound frames dropped, by frame class."),
	); err != nil {
		return nil, err
	}
	if met.StaleDropped, err = m.Int64Counter("voxwire.frames.stale_dropped",
		metric.WithDescription("Total outbound items suppressed after turn cancellation."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxwire.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxwire.active_sessions",
		metric.WithDescription("Number of live client sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxwire.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// RecordBargeIn records a barge-in counter increment with its trigger.
func (m *Metrics) RecordBargeIn(ctx context.Context, trigger string) {
	m.BargeIns.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// RecordTurn records a turn counter increment with its outcome.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordMalformedFrame records a dropped malformed inbound frame.
func (m *Metrics) RecordMalformedFrame(ctx context.Context, class string) {
	m.MalformedFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("class", class)))
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
