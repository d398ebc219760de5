package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pipeline's OTel instruments.
type Metrics struct {
	meter          metric.Meter
	segments       metric.Int64Counter
	entries        metric.Int64Counter
	engineFailures metric.Int64Counter
}

// NewMetrics registers the pipeline instruments, including a queue-depth
// gauge observed from q.
func NewMetrics(q *Queue) (*Metrics, error) {
	meter := otel.Meter("github.com/loqalabs/loqa-listen/pipeline")

	segments, err := meter.Int64Counter("listen.segments.processed",
		metric.WithDescription("Audio segments drained from the work queue"))
	if err != nil {
		return nil, err
	}
	entries, err := meter.Int64Counter("listen.transcript.entries",
		metric.WithDescription("Transcript entries published"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("listen.engine.failures",
		metric.WithDescription("Per-segment transcription failures"))
	if err != nil {
		return nil, err
	}
	depth, err := meter.Int64ObservableGauge("listen.queue.depth",
		metric.WithDescription("Segments waiting for transcription"))
	if err != nil {
		return nil, err
	}
	if _, err := meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(depth, int64(q.Len()))
		return nil
	}, depth); err != nil {
		return nil, err
	}

	return &Metrics{
		meter:          meter,
		segments:       segments,
		entries:        entries,
		engineFailures: failures,
	}, nil
}

func (m *Metrics) segmentProcessed(ctx context.Context) {
	if m == nil {
		return
	}
	m.segments.Add(ctx, 1)
}

func (m *Metrics) entriesPublished(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.entries.Add(ctx, int64(n))
}

func (m *Metrics) engineFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.engineFailures.Add(ctx, 1)
}
