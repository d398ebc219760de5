package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-listen/internal/capture"
	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/stt"
)

// Listener ties the pipeline together: it owns the queue, the result box,
// the worker, and the capture bridge, exposes Stop and the polling surface,
// and runs the caller-facing poll loop with keyword-triggered shutdown.
//
// Startup order is strict: the engine is constructed by the caller before
// NewListener (engine failures are fatal before any goroutine exists), the
// worker starts first, then ambient-noise calibration, then background
// capture.
type Listener struct {
	cfg    config.ListenConfig
	source capture.Source
	log    *slog.Logger

	queue  *Queue
	box    *ResultBox
	worker *Transcriber

	// onText surfaces each polled transcription to the caller.
	onText func(string)

	listening atomic.Bool
	started   bool
	stopOnce  sync.Once
}

func NewListener(cfg config.ListenConfig, source capture.Source, engine stt.Engine, log *slog.Logger) (*Listener, error) {
	queue := NewQueue()
	metrics, err := NewMetrics(queue)
	if err != nil {
		return nil, fmt.Errorf("pipeline: register metrics: %w", err)
	}

	box := NewResultBox()
	pacing := time.Duration(cfg.PacingMS) * time.Millisecond
	l := &Listener{
		cfg:    cfg,
		source: source,
		log:    log.With(slog.String("component", "listener")),
		queue:  queue,
		box:    box,
		worker: NewTranscriber(engine, queue, box, log, pacing, metrics),
	}
	l.onText = func(text string) {
		l.log.Info("you said", slog.String("text", text))
	}
	return l, nil
}

// OnEntry registers a transcript sink (bus publisher, event store). Must be
// called before Start.
func (l *Listener) OnEntry(sink Sink) {
	l.worker.AddSink(sink)
}

// OnText replaces the poll-loop text handler. Must be called before Start.
func (l *Listener) OnText(fn func(string)) {
	if fn != nil {
		l.onText = fn
	}
}

// Start launches the worker, calibrates ambient noise, and begins background
// capture. On calibration or capture failure the worker is wound down before
// the error is returned; no goroutine outlives a failed Start.
func (l *Listener) Start(ctx context.Context) error {
	if l.started {
		return fmt.Errorf("pipeline: listener already started")
	}
	l.started = true
	l.listening.Store(true)

	go l.worker.Run(ctx)

	if err := l.source.Calibrate(ctx); err != nil {
		l.unwind()
		return fmt.Errorf("pipeline: calibrate: %w", err)
	}
	if err := l.source.Start(ctx, l.enqueue); err != nil {
		l.unwind()
		return fmt.Errorf("pipeline: start capture: %w", err)
	}

	l.log.Info("listening", slog.String("stop_keyword", l.cfg.StopKeyword))
	return nil
}

// enqueue is the capture bridge: invoked from the capture goroutine once per
// detected utterance. It only enqueues and returns, never transcribes
// inline. Segments arriving after Stop are discarded.
func (l *Listener) enqueue(seg capture.Segment) {
	if !l.listening.Load() {
		return
	}
	l.queue.Enqueue(Item{Segment: &seg})
}

// Run is the caller-facing poll loop: every poll interval it takes the
// latest unread transcription, surfaces it, and stops when the configured
// keyword appears (case-insensitive substring) or ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	interval := time.Duration(l.cfg.PollIntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	keyword := strings.ToLower(l.cfg.StopKeyword)
	for l.listening.Load() {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-ticker.C:
			text := l.TakeLast()
			if text == "" {
				continue
			}
			l.onText(text)
			if strings.Contains(strings.ToLower(text), keyword) {
				l.log.Info("stop keyword detected", slog.String("text", text))
				l.Stop()
			}
		}
	}
	return nil
}

// Stop clears the listening flag, enqueues the shutdown sentinel, logs the
// transcript snapshot, closes the capture source, and waits (bounded) for
// the worker to finish its in-flight segment. Safe to call more than once;
// repeat calls are no-ops.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		l.listening.Store(false)
		l.queue.Enqueue(Item{Stop: true})

		snapshot := l.box.Snapshot()
		texts := make([]string, 0, len(snapshot))
		for _, e := range snapshot {
			texts = append(texts, e.Text)
		}
		l.log.Info("stopping",
			slog.Int("entries", len(snapshot)),
			slog.String("transcript", strings.Join(texts, " | ")))

		if err := l.source.Close(); err != nil {
			l.log.Warn("closing capture source", slog.String("error", err.Error()))
		}

		timeout := time.Duration(l.cfg.StopTimeoutMS) * time.Millisecond
		if timeout <= 0 {
			return
		}
		select {
		case <-l.worker.Done():
		case <-time.After(timeout):
			// The engine call cannot be interrupted mid-segment; at most one
			// segment's transcription time separates Stop from worker exit.
			l.log.Warn("worker did not exit before timeout")
		}
	})
}

// unwind shuts the worker down after a failed Start.
func (l *Listener) unwind() {
	l.listening.Store(false)
	l.queue.Enqueue(Item{Stop: true})
	<-l.worker.Done()
}

// TakeLast returns the most recent unread transcription, clearing it.
func (l *Listener) TakeLast() string {
	return l.box.TakeLast()
}

// Listening reports whether the listener is active.
func (l *Listener) Listening() bool {
	return l.listening.Load()
}

// Snapshot returns the transcript so far.
func (l *Listener) Snapshot() []Entry {
	return l.box.Snapshot()
}

// WorkerDone is closed once the transcription worker has exited.
func (l *Listener) WorkerDone() <-chan struct{} {
	return l.worker.Done()
}
