package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/loqa-listen/internal/stt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// textEngine echoes each segment's PCM bytes back as one transcript entry,
// failing when the payload is "boom".
type textEngine struct{}

func (textEngine) Transcribe(_ context.Context, pcm []byte, _, _ int) ([]stt.Segment, error) {
	text := string(pcm)
	if text == "boom" {
		return nil, errors.New("engine exploded")
	}
	if text == "" {
		return nil, nil
	}
	return []stt.Segment{{Start: 0, End: 1, Text: text}}, nil
}

func (textEngine) Close() error { return nil }

func newTestWorker(t *testing.T) (*Transcriber, *Queue, *ResultBox) {
	t.Helper()
	q := NewQueue()
	box := NewResultBox()
	w := NewTranscriber(textEngine{}, q, box, discardLogger(), 0, nil)
	return w, q, box
}

func TestWorkerProcessesInOrderAndStopsAtSentinel(t *testing.T) {
	w, q, box := newTestWorker(t)

	for _, text := range []string{"one", "two", "three"} {
		q.Enqueue(segmentItem(text))
	}
	q.Enqueue(Item{Stop: true})
	// Enqueued after the sentinel: must never be processed.
	q.Enqueue(segmentItem("late"))

	w.Run(context.Background())
	<-w.Done()

	snap := box.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	for i, want := range []string{"one", "two", "three"} {
		if snap[i].Text != want {
			t.Fatalf("entry %d: expected %q, got %q", i, want, snap[i].Text)
		}
	}
	if q.Len() != 1 {
		t.Fatalf("expected the late item to remain queued, got %d", q.Len())
	}
}

func TestWorkerSurvivesEngineFailure(t *testing.T) {
	w, q, box := newTestWorker(t)

	q.Enqueue(segmentItem("before"))
	q.Enqueue(segmentItem("boom"))
	q.Enqueue(segmentItem("after"))
	q.Enqueue(Item{Stop: true})

	w.Run(context.Background())

	snap := box.Snapshot()
	if len(snap) != 2 || snap[0].Text != "before" || snap[1].Text != "after" {
		t.Fatalf("expected failed segment dropped, got %+v", snap)
	}
}

func TestWorkerSkipsEmptyResults(t *testing.T) {
	w, q, box := newTestWorker(t)

	q.Enqueue(segmentItem(""))
	q.Enqueue(Item{Stop: true})
	w.Run(context.Background())

	if box.Len() != 0 {
		t.Fatalf("expected no entries for empty result, got %d", box.Len())
	}
	if got := box.TakeLast(); got != "" {
		t.Fatalf("expected empty last result, got %q", got)
	}
}

func TestWorkerNotifiesSinks(t *testing.T) {
	w, q, _ := newTestWorker(t)

	var seen []string
	w.AddSink(func(e Entry) { seen = append(seen, e.Text) })

	q.Enqueue(segmentItem("hello"))
	q.Enqueue(segmentItem("world"))
	q.Enqueue(Item{Stop: true})
	w.Run(context.Background())

	if len(seen) != 2 || seen[0] != "hello" || seen[1] != "world" {
		t.Fatalf("unexpected sink deliveries: %v", seen)
	}
}

func TestWorkerRapidProducerNoLoss(t *testing.T) {
	w, q, box := newTestWorker(t)

	// All three queued before the worker dequeues anything.
	q.Enqueue(segmentItem("a"))
	q.Enqueue(segmentItem("b"))
	q.Enqueue(segmentItem("c"))
	q.Enqueue(Item{Stop: true})

	w.Run(context.Background())

	snap := box.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	if snap[0].Text != "a" || snap[1].Text != "b" || snap[2].Text != "c" {
		t.Fatalf("order not preserved: %+v", snap)
	}
}
