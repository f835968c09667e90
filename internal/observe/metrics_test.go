package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
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

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"unamentis.stt.duration", m.STTDuration},
		{"unamentis.llm.ttft", m.LLMTimeToFirstToken},
		{"unamentis.tts.ttfb", m.TTSTimeToFirstByte},
		{"unamentis.turn.duration", m.TurnDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestCounterIncrement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTurn(ctx, "completed")
	m.RecordTurn(ctx, "completed")
	m.RecordTurn(ctx, "cancelled")
	m.RecordBargeIn(ctx)
	m.RecordProviderError(ctx, "deepgram", "stt")

	rm := collect(t, reader)

	turns := findMetric(rm, "unamentis.turns")
	if turns == nil {
		t.Fatal("unamentis.turns not found")
	}
	sum, ok := turns.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("unamentis.turns is not an int64 sum")
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("turn total = %d, want 3", total)
	}

	bargeIns := findMetric(rm, "unamentis.barge_ins")
	if bargeIns == nil {
		t.Fatal("unamentis.barge_ins not found")
	}
	errs := findMetric(rm, "unamentis.provider.errors")
	if errs == nil {
		t.Fatal("unamentis.provider.errors not found")
	}
}

func TestActiveSessionsUpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "unamentis.active_sessions")
	if met == nil {
		t.Fatal("unamentis.active_sessions not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("unamentis.active_sessions is not an int64 sum")
	}
	if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 1 {
		t.Errorf("active sessions = %+v, want 1", sum.DataPoints)
	}
}

func TestCostAccumulation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCost(ctx, "openai", "llm", 0.02)
	m.RecordCost(ctx, "openai", "llm", 0.03)

	rm := collect(t, reader)
	met := findMetric(rm, "unamentis.provider.cost")
	if met == nil {
		t.Fatal("unamentis.provider.cost not found")
	}
	sum, ok := met.Data.(metricdata.Sum[float64])
	if !ok {
		t.Fatal("unamentis.provider.cost is not a float64 sum")
	}
	var total float64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total < 0.049 || total > 0.051 {
		t.Errorf("cost total = %f, want 0.05", total)
	}
}
