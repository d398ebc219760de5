package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-listen/internal/stt"
)

// Sink receives each published transcript entry. Sinks run on the worker
// goroutine and must not block for long.
type Sink func(Entry)

// Transcriber is the single worker that drains the queue: one segment in
// flight at any instant, transcript order equal to queue order. It survives
// per-segment engine failures by logging, counting, and dropping the
// segment rather than dying.
type Transcriber struct {
	engine  stt.Engine
	queue   *Queue
	box     *ResultBox
	log     *slog.Logger
	pacing  time.Duration
	metrics *Metrics
	sinks   []Sink
	done    chan struct{}
}

func NewTranscriber(engine stt.Engine, queue *Queue, box *ResultBox, log *slog.Logger, pacing time.Duration, metrics *Metrics) *Transcriber {
	return &Transcriber{
		engine:  engine,
		queue:   queue,
		box:     box,
		log:     log.With(slog.String("component", "transcriber")),
		pacing:  pacing,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// AddSink registers a transcript consumer. Must be called before Run starts.
func (t *Transcriber) AddSink(sink Sink) {
	t.sinks = append(t.sinks, sink)
}

// Done is closed when the worker has exited.
func (t *Transcriber) Done() <-chan struct{} {
	return t.done
}

// Run drains the queue until the shutdown sentinel is seen. It is the body
// of the worker goroutine; exactly one Run must be active per Transcriber.
func (t *Transcriber) Run(ctx context.Context) {
	defer close(t.done)

	for {
		item := t.queue.Dequeue()
		if item.Stop {
			t.log.Info("shutdown sentinel received, worker exiting")
			return
		}

		seg := item.Segment
		entries, err := t.engine.Transcribe(ctx, seg.PCM, seg.SampleRate, seg.Channels)
		if err != nil {
			// The segment is dropped; the worker keeps draining.
			t.log.Warn("transcription failed, dropping segment",
				slog.Duration("audio", seg.Duration()),
				slog.String("error", err.Error()))
			t.metrics.engineFailed(ctx)
		} else {
			for _, s := range entries {
				entry := Entry{Start: s.Start, End: s.End, Text: s.Text}
				t.box.Publish(entry)
				t.log.Info("segment transcribed",
					slog.Float64("start", entry.Start),
					slog.Float64("end", entry.End),
					slog.String("text", entry.Text))
				for _, sink := range t.sinks {
					sink(entry)
				}
			}
			t.metrics.entriesPublished(ctx, len(entries))
		}
		t.metrics.segmentProcessed(ctx)

		// Throttle between segments to bound the engine invocation rate.
		if t.pacing > 0 {
			time.Sleep(t.pacing)
		}
	}
}
