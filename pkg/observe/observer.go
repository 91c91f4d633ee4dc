package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/chriscow/callpipe-go/pkg/frame"
)

// MetricsObserver feeds the pipeline's observer tap into the OTel
// instruments. It never blocks: recording an instrument is lock-free in the
// SDK, and the latency bookkeeping is a single mutex around two fields.
type MetricsObserver struct {
	metrics *Metrics

	mu            sync.Mutex
	turnStart     time.Time
	awaitingAudio bool
}

// NewMetricsObserver creates an observer recording into m, or into
// DefaultMetrics when m is nil.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	if m == nil {
		m = DefaultMetrics()
	}
	return &MetricsObserver{metrics: m}
}

// OnFrame implements pipeline.Observer.
func (o *MetricsObserver) OnFrame(stage string, f frame.Frame) {
	ctx := context.Background()
	o.metrics.Frames.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("kind", f.Kind().String()),
		),
	)

	switch f := f.(type) {
	case frame.ContextUpdate:
		if f.Role != frame.RoleAssistant {
			o.mu.Lock()
			o.turnStart = time.Now()
			o.awaitingAudio = true
			o.mu.Unlock()
		}

	case frame.Audio:
		if stage != "tts" {
			return
		}
		o.metrics.AudioSeconds.Add(ctx, f.Duration().Seconds())

		o.mu.Lock()
		record := o.awaitingAudio
		start := o.turnStart
		o.awaitingAudio = false
		o.mu.Unlock()
		if record {
			o.metrics.ResponseLatency.Record(ctx, time.Since(start).Seconds())
		}

	case frame.Cancel:
		o.metrics.Interruptions.Add(ctx, 1)

	case frame.Error:
		o.metrics.RecordStageError(ctx, f.Stage, f.Fatal)
	}
}
