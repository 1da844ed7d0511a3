// Package observe provides application-wide observability primitives for
// Chica: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all Chica metrics.
const meterName = "github.com/MrWong99/chica"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks the time from utterance hand-off to the end of
	// playback.
	TurnDuration metric.Float64Histogram

	// UtteranceDuration tracks the length of captured utterances.
	UtteranceDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Utterances counts segmented utterances. Use with attribute:
	//   attribute.String("result", "accepted"|"too_short"|"too_quiet"|"dropped")
	Utterances metric.Int64Counter

	// AttentionEvents counts attention transitions. Use with attribute:
	//   attribute.String("event", "woken"|"stopped"|"slept")
	AttentionEvents metric.Int64Counter

	// Playbacks counts playback outcomes. Use with attribute:
	//   attribute.String("outcome", "finished"|"cancelled"|"error")
	Playbacks metric.Int64Counter

	// Interruptions counts stop commands heard while speaking.
	Interruptions metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// Speaking is 1 while audio is being played, 0 otherwise.
	Speaking metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
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
		{&met.STTDuration, "chica.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "chica.llm.duration", "Latency of LLM inference."},
		{&met.TTSDuration, "chica.tts.duration", "Latency of text-to-speech synthesis."},
		{&met.TurnDuration, "chica.turn.duration", "Time from utterance hand-off to end of playback."},
		{&met.UtteranceDuration, "chica.utterance.duration", "Length of captured utterances."},
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
		{&met.ProviderRequests, "chica.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.Utterances, "chica.utterances", "Total segmented utterances by result."},
		{&met.AttentionEvents, "chica.attention.events", "Total attention transitions by event."},
		{&met.Playbacks, "chica.playbacks", "Total playbacks by outcome."},
		{&met.Interruptions, "chica.interruptions", "Total stop commands heard while speaking."},
		{&met.ProviderErrors, "chica.provider.errors", "Total provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	// Gauges (UpDownCounters).
	if met.Speaking, err = m.Int64UpDownCounter("chica.speaking",
		metric.WithDescription("1 while the assistant is speaking."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("chica.http.request.duration",
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

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
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

// RecordUtterance counts an utterance with the given result.
func (m *Metrics) RecordUtterance(ctx context.Context, result string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordAttention counts an attention transition.
func (m *Metrics) RecordAttention(ctx context.Context, event string) {
	m.AttentionEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordPlayback counts a playback outcome.
func (m *Metrics) RecordPlayback(ctx context.Context, outcome string) {
	m.Playbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
