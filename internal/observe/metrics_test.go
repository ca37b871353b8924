package observe

import (
	"context"
	"testing"

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

// sumFor returns the counter value for the data point carrying all attrs.
func sumFor(t *testing.T, m *metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q: data type %T, want Sum[int64]", m.Name, m.Data)
	}
	for _, dp := range sum.DataPoints {
		match := true
		for _, a := range attrs {
			v, ok := dp.Attributes.Value(a.Key)
			if !ok || v != a.Value {
				match = false
				break
			}
		}
		if match {
			return dp.Value
		}
	}
	return 0
}

func TestRecordHelpers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUtterance(ctx, "excited")
	m.RecordUtterance(ctx, "excited")
	m.RecordSpeechError(ctx, "unavailable")
	m.RecordRecognitionResult(ctx, "final", "dropped")
	m.RecordRecognitionError(ctx, "no-speech")
	m.RecordVerdict(ctx, "color", "correct")
	m.ListeningSessions.Add(ctx, 1)

	rm := collect(t, reader)

	tests := []struct {
		metric string
		attrs  []attribute.KeyValue
		want   int64
	}{
		{"tutorvoz.speech.utterances", []attribute.KeyValue{attribute.String("effect", "excited")}, 2},
		{"tutorvoz.speech.errors", []attribute.KeyValue{attribute.String("reason", "unavailable")}, 1},
		{"tutorvoz.recognition.results", []attribute.KeyValue{attribute.String("kind", "final"), attribute.String("outcome", "dropped")}, 1},
		{"tutorvoz.recognition.errors", []attribute.KeyValue{attribute.String("code", "no-speech")}, 1},
		{"tutorvoz.answer.verdicts", []attribute.KeyValue{attribute.String("domain", "color"), attribute.String("outcome", "correct")}, 1},
		{"tutorvoz.recognition.active_sessions", nil, 1},
	}
	for _, tc := range tests {
		t.Run(tc.metric, func(t *testing.T) {
			got := findMetric(rm, tc.metric)
			if got == nil {
				t.Fatalf("metric %q not found", tc.metric)
			}
			if v := sumFor(t, got, tc.attrs...); v != tc.want {
				t.Errorf("%s = %d, want %d", tc.metric, v, tc.want)
			}
		})
	}
}

func TestPhraseDurationHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordPhraseRequest(context.Background(), "frase", "ok", 0.2)

	got := findMetric(collect(t, reader), "tutorvoz.phrases.duration")
	if got == nil {
		t.Fatal("histogram not found")
	}
	h, ok := got.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data type %T, want Histogram[float64]", got.Data)
	}
	if len(h.DataPoints) != 1 || h.DataPoints[0].Count != 1 {
		t.Fatalf("histogram data points = %+v, want one point with count 1", h.DataPoints)
	}
	if v, ok := h.DataPoints[0].Attributes.Value("endpoint"); !ok || v.AsString() != "frase" {
		t.Errorf("endpoint attribute = %v, want frase", v)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
