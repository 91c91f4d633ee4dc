// Package observe provides the OpenTelemetry metrics for the call pipeline
// and the observer that feeds them from the frame flow.
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

// meterName is the instrumentation scope name used for all pipeline metrics.
const meterName = "github.com/chriscow/callpipe-go"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// Frames counts frames by emitting stage and frame kind.
	Frames metric.Int64Counter

	// StageErrors counts stage errors by stage and severity.
	StageErrors metric.Int64Counter

	// Interruptions counts barge-in turn cancellations.
	Interruptions metric.Int64Counter

	// ResponseLatency tracks the time from a committed user turn to the
	// first synthesized audio chunk of the response.
	ResponseLatency metric.Float64Histogram

	// AudioSeconds accumulates synthesized audio playback time.
	AudioSeconds metric.Float64Counter

	// ActiveSessions tracks the number of live calls.
	ActiveSessions metric.Int64UpDownCounter

	// ObserverDrops counts tap copies dropped by slow observers.
	ObserverDrops metric.Int64Counter
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

	if met.Frames, err = m.Int64Counter("callpipe.frames",
		metric.WithDescription("Total frames by emitting stage and kind."),
	); err != nil {
		return nil, err
	}
	if met.StageErrors, err = m.Int64Counter("callpipe.stage.errors",
		metric.WithDescription("Total stage errors by stage and severity."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("callpipe.interruptions",
		metric.WithDescription("Total barge-in turn cancellations."),
	); err != nil {
		return nil, err
	}
	if met.ResponseLatency, err = m.Float64Histogram("callpipe.response.latency",
		metric.WithDescription("Time from committed user turn to first response audio."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AudioSeconds, err = m.Float64Counter("callpipe.audio.seconds",
		metric.WithDescription("Synthesized audio playback time."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("callpipe.active_sessions",
		metric.WithDescription("Number of live calls."),
	); err != nil {
		return nil, err
	}
	if met.ObserverDrops, err = m.Int64Counter("callpipe.observer.drops",
		metric.WithDescription("Tap copies dropped by slow observers."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// SessionStarted records a new live call.
func (m *Metrics) SessionStarted(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded records a finished call.
func (m *Metrics) SessionEnded(ctx context.Context) {
	m.ActiveSessions.Add(ctx, -1)
}

// RecordStageError records one stage error.
func (m *Metrics) RecordStageError(ctx context.Context, stage string, fatal bool) {
	severity := "recoverable"
	if fatal {
		severity = "fatal"
	}
	m.StageErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("severity", severity),
		),
	)
}
