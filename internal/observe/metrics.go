// Package observe provides the observability primitives for tutorvoz:
// OpenTelemetry metrics, tracing helpers, trace-aware structured logging and
// HTTP middleware for the health/metrics server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. Engines receive a *Metrics through their
// options; when none is given they fall back to [DefaultMetrics]. Tests should
// build their own instance with [NewMetrics] and a ManualReader.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tutorvoz metrics.
const meterName = "github.com/MrWong99/tutorvoz"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// Utterances counts utterances handed to the synthesis provider. Use with
	// attribute "effect".
	Utterances metric.Int64Counter

	// SpeechErrors counts synthesis failures, including capability absence.
	// Use with attribute "reason".
	SpeechErrors metric.Int64Counter

	// RecognitionResults counts recognition results by "kind" (interim, final)
	// and "outcome" (surfaced, dropped).
	RecognitionResults metric.Int64Counter

	// RecognitionErrors counts platform-reported recognition errors by "code".
	RecognitionErrors metric.Int64Counter

	// Verdicts counts answer verdicts by "domain" and "outcome" (correct,
	// incorrect, unrecognized).
	Verdicts metric.Int64Counter

	// ListeningSessions tracks the number of open capture sessions.
	ListeningSessions metric.Int64UpDownCounter

	// PhraseDuration tracks phrase-service request latency. Use with
	// attribute "endpoint" and "status".
	PhraseDuration metric.Float64Histogram

	// HTTPRequestDuration tracks request time of the local HTTP server.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for remote
// phrase lookups.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Utterances, err = m.Int64Counter("tutorvoz.speech.utterances",
		metric.WithDescription("Utterances sent to the synthesis provider."),
	); err != nil {
		return nil, err
	}
	if met.SpeechErrors, err = m.Int64Counter("tutorvoz.speech.errors",
		metric.WithDescription("Speech synthesis failures by reason."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionResults, err = m.Int64Counter("tutorvoz.recognition.results",
		metric.WithDescription("Recognition results by kind and outcome."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("tutorvoz.recognition.errors",
		metric.WithDescription("Platform recognition errors by code."),
	); err != nil {
		return nil, err
	}
	if met.Verdicts, err = m.Int64Counter("tutorvoz.answer.verdicts",
		metric.WithDescription("Answer verdicts by domain and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ListeningSessions, err = m.Int64UpDownCounter("tutorvoz.recognition.active_sessions",
		metric.WithDescription("Number of open listening sessions."),
	); err != nil {
		return nil, err
	}
	if met.PhraseDuration, err = m.Float64Histogram("tutorvoz.phrases.duration",
		metric.WithDescription("Latency of phrase service requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("tutorvoz.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// RecordUtterance increments the utterance counter.
func (m *Metrics) RecordUtterance(ctx context.Context, effect string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("effect", effect)))
}

// RecordSpeechError increments the synthesis failure counter.
func (m *Metrics) RecordSpeechError(ctx context.Context, reason string) {
	m.SpeechErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordRecognitionResult increments the recognition result counter.
func (m *Metrics) RecordRecognitionResult(ctx context.Context, kind, outcome string) {
	m.RecognitionResults.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordRecognitionError increments the recognition error counter.
func (m *Metrics) RecordRecognitionError(ctx context.Context, code string) {
	m.RecognitionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordVerdict increments the verdict counter.
func (m *Metrics) RecordVerdict(ctx context.Context, domain, outcome string) {
	m.Verdicts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("domain", domain),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordPhraseRequest records the latency of one phrase service request.
func (m *Metrics) RecordPhraseRequest(ctx context.Context, endpoint, status string, seconds float64) {
	m.PhraseDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		),
	)
}
