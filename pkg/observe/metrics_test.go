package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/chriscow/callpipe-go/pkg/frame"
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

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestObserverCountsFrames(t *testing.T) {
	m, reader := newTestMetrics(t)
	obs := NewMetricsObserver(m)

	var seq frame.Sequencer
	obs.OnFrame("transport_in", frame.NewAudio(&seq, make([]byte, 320), 8000, 1))
	obs.OnFrame("stt", frame.NewTranscriptFinal(&seq, frame.RoleUser, "hello"))
	obs.OnFrame("llm", frame.NewTranscriptPartial(&seq, frame.RoleAssistant, "Hi "))

	rm := collect(t, reader)
	if got := sumValue(t, rm, "callpipe.frames"); got != 3 {
		t.Errorf("frame count = %d, want 3", got)
	}
}

func TestObserverRecordsResponseLatency(t *testing.T) {
	m, reader := newTestMetrics(t)
	obs := NewMetricsObserver(m)

	var seq frame.Sequencer
	obs.OnFrame("user_aggregator", frame.NewContextUpdate(&seq, frame.RoleUser, "hello"))
	obs.OnFrame("tts", frame.NewAudio(&seq, make([]byte, 320), 8000, 1))
	// A second chunk of the same response must not record again.
	obs.OnFrame("tts", frame.NewAudio(&seq, make([]byte, 320), 8000, 1))

	rm := collect(t, reader)
	met := findMetric(rm, "callpipe.response.latency")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestObserverCountsInterruptionsAndErrors(t *testing.T) {
	m, reader := newTestMetrics(t)
	obs := NewMetricsObserver(m)

	var seq frame.Sequencer
	obs.OnFrame("pipeline", frame.NewCancel(&seq))
	obs.OnFrame("llm", frame.NewError(&seq, "llm", context.DeadlineExceeded, false))
	obs.OnFrame("llm", frame.NewError(&seq, "llm", context.DeadlineExceeded, true))

	rm := collect(t, reader)
	if got := sumValue(t, rm, "callpipe.interruptions"); got != 1 {
		t.Errorf("interruption count = %d, want 1", got)
	}
	if got := sumValue(t, rm, "callpipe.stage.errors"); got != 2 {
		t.Errorf("stage error count = %d, want 2", got)
	}
}

func TestSessionGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SessionStarted(ctx)
	m.SessionStarted(ctx)
	m.SessionEnded(ctx)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "callpipe.active_sessions"); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
