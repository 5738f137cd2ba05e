// Package observe provides application-wide observability primitives for
// Huayu: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Huayu metrics.
const meterName = "github.com/kaiwenlu/huayu"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TurnDuration tracks the end-to-end latency of a full conversation
	// turn: persistence, compaction, generation, and annotation.
	TurnDuration metric.Float64Histogram

	// GenerationDuration tracks LLM inference latency.
	GenerationDuration metric.Float64Histogram

	// SummarisationDuration tracks history-compaction summarisation latency.
	SummarisationDuration metric.Float64Histogram

	// ReportDuration tracks coach report generation latency.
	ReportDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed conversation turns. Use with attributes:
	//   attribute.String("scenario", ...), attribute.String("mode", "batch"|"stream")
	Turns metric.Int64Counter

	// Completions counts conversations reaching a terminal status. Use with:
	//   attribute.String("scenario", ...), attribute.String("status", ...)
	Completions metric.Int64Counter

	// Summarisations counts history compaction events.
	Summarisations metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// MalformedReplies counts model replies whose metadata block was missing
	// or failed to decode.
	MalformedReplies metric.Int64Counter

	// --- Gauges ---

	// ActiveConversations tracks the number of conversations in ACTIVE status.
	ActiveConversations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM round trips rather than sub-millisecond local work.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("huayu.turn.duration",
		metric.WithDescription("End-to-end latency of a conversation turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = m.Float64Histogram("huayu.generation.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SummarisationDuration, err = m.Float64Histogram("huayu.summarisation.duration",
		metric.WithDescription("Latency of history-compaction summarisation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReportDuration, err = m.Float64Histogram("huayu.report.duration",
		metric.WithDescription("Latency of coach report generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("huayu.turns",
		metric.WithDescription("Total completed conversation turns by scenario and mode."),
	); err != nil {
		return nil, err
	}
	if met.Completions, err = m.Int64Counter("huayu.completions",
		metric.WithDescription("Total conversations reaching a terminal status by scenario and status."),
	); err != nil {
		return nil, err
	}
	if met.Summarisations, err = m.Int64Counter("huayu.summarisations",
		metric.WithDescription("Total history compaction events."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("huayu.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.MalformedReplies, err = m.Int64Counter("huayu.malformed_replies",
		metric.WithDescription("Total model replies with missing or undecodable metadata."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConversations, err = m.Int64UpDownCounter("huayu.active_conversations",
		metric.WithDescription("Number of conversations currently in ACTIVE status."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("huayu.http.request.duration",
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

// RecordTurn is a convenience method that records a turn counter increment
// with the standard attribute set.
func (m *Metrics) RecordTurn(ctx context.Context, scenario, mode string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("scenario", scenario),
			attribute.String("mode", mode),
		),
	)
}

// RecordCompletion is a convenience method that records a terminal-status
// counter increment with the standard attribute set.
func (m *Metrics) RecordCompletion(ctx context.Context, scenario, status string) {
	m.Completions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("scenario", scenario),
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

// RecordMalformedReply is a convenience method that records a malformed-reply
// counter increment.
func (m *Metrics) RecordMalformedReply(ctx context.Context, scenario string) {
	m.MalformedReplies.Add(ctx, 1,
		metric.WithAttributes(attribute.String("scenario", scenario)),
	)
}
