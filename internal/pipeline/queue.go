// Package pipeline contains the producer-consumer core of the listener: an
// unbounded work queue fed by the capture bridge, a single transcription
// worker draining it, a lock-coupled latest-result handoff, and the
// controller that owns lifecycle and the caller-facing poll loop.
package pipeline

import (
	"sync"

	"github.com/loqalabs/loqa-listen/internal/capture"
)

// Item is one unit of work for the transcription worker: either an audio
// segment or the shutdown sentinel.
type Item struct {
	Segment *capture.Segment
	Stop    bool
}

// Queue is an unbounded FIFO of work items. Enqueue never blocks the
// producer; Dequeue blocks the (single) consumer until an item arrives.
// Safe for concurrent producers. A Go channel is not used because the
// contract requires enqueue to never block regardless of consumer speed.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []Item
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends an item and wakes the consumer. Never blocks.
func (q *Queue) Enqueue(item Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
}

// Dequeue removes and returns the oldest item, blocking until one exists.
func (q *Queue) Dequeue() Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item
}

// Len reports the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
