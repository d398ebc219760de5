// Package capture bridges a microphone into voice-activity-delimited audio
// segments. A Source runs its own reader goroutine and hands each detected
// utterance to a callback as soon as speech-end is observed; the callback
// must return quickly (the pipeline's bridge only enqueues).
package capture

import (
	"context"
	"time"
)

// Segment is one utterance of raw 16-bit little-endian PCM audio. Ownership
// transfers to the receiver of the callback; the source never touches the
// buffer again after handoff.
type Segment struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Captured   time.Time
}

// Duration returns the audio length of the segment.
func (s Segment) Duration() time.Duration {
	bytesPerSec := s.SampleRate * s.Channels * 2
	if bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(len(s.PCM)) * time.Second / time.Duration(bytesPerSec)
}

// Source produces speech segments from a microphone or equivalent feed.
type Source interface {
	// Calibrate measures ambient noise and tunes the speech-energy threshold.
	// Called once before Start.
	Calibrate(ctx context.Context) error

	// Start begins background capture and returns once the reader goroutine
	// is running. onSegment is invoked from that goroutine, once per detected
	// utterance.
	Start(ctx context.Context, onSegment func(Segment)) error

	// Close stops capture and releases the underlying device. Safe to call
	// more than once.
	Close() error
}
