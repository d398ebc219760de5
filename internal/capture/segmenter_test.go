package capture

import (
	"encoding/binary"
	"testing"
)

const testFrameMS = 30

func testSegmenter(t *testing.T, silenceMS, maxSegmentMS int) (*Segmenter, *[][]byte) {
	t.Helper()
	var emitted [][]byte
	seg := NewSegmenter(SegmenterConfig{
		SampleRate:      16000,
		Channels:        1,
		FrameDurationMS: testFrameMS,
		Threshold:       300,
		SilenceMS:       silenceMS,
		MaxSegmentMS:    maxSegmentMS,
	}, func(pcm []byte) {
		emitted = append(emitted, pcm)
	})
	return seg, &emitted
}

func pcmFrame(amplitude int16) []byte {
	samples := 16000 * testFrameMS / 1000
	frame := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(amplitude))
	}
	return frame
}

func TestSegmenterEmitsOnTrailingSilence(t *testing.T) {
	seg, emitted := testSegmenter(t, 60, 10000)

	loud := pcmFrame(8000)
	quiet := pcmFrame(0)

	// Leading silence is discarded.
	seg.Feed(quiet)
	seg.Feed(quiet)
	if len(*emitted) != 0 {
		t.Fatal("expected no segment from leading silence")
	}

	seg.Feed(loud)
	seg.Feed(loud)
	seg.Feed(quiet) // 30 ms silence, below threshold
	if len(*emitted) != 0 {
		t.Fatal("expected no segment before silence threshold")
	}
	seg.Feed(quiet) // 60 ms silence, utterance ends
	if len(*emitted) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(*emitted))
	}
	// Two speech frames plus the two trailing silence frames.
	if want := len(loud) * 4; len((*emitted)[0]) != want {
		t.Fatalf("expected %d bytes, got %d", want, len((*emitted)[0]))
	}
}

func TestSegmenterSplitsUtterances(t *testing.T) {
	seg, emitted := testSegmenter(t, 30, 10000)

	loud := pcmFrame(8000)
	quiet := pcmFrame(0)

	seg.Feed(loud)
	seg.Feed(quiet)
	seg.Feed(loud)
	seg.Feed(loud)
	seg.Feed(quiet)

	if len(*emitted) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(*emitted))
	}
	if len((*emitted)[1]) <= len((*emitted)[0]) {
		t.Fatal("expected second utterance to be longer")
	}
}

func TestSegmenterForcesBoundaryAtMaxLength(t *testing.T) {
	seg, emitted := testSegmenter(t, 300, 90)

	loud := pcmFrame(8000)
	seg.Feed(loud)
	seg.Feed(loud)
	if len(*emitted) != 0 {
		t.Fatal("expected no segment yet")
	}
	seg.Feed(loud) // 90 ms of continuous speech hits the cap
	if len(*emitted) != 1 {
		t.Fatalf("expected forced segment, got %d", len(*emitted))
	}
}

func TestSegmenterFlushEmitsPendingSpeech(t *testing.T) {
	seg, emitted := testSegmenter(t, 300, 10000)

	seg.Feed(pcmFrame(8000))
	seg.Flush()
	if len(*emitted) != 1 {
		t.Fatalf("expected flushed segment, got %d", len(*emitted))
	}

	// Flush with nothing buffered is a no-op.
	seg.Flush()
	if len(*emitted) != 1 {
		t.Fatal("expected no extra segment from empty flush")
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Fatalf("expected 0 for empty buffer, got %v", got)
	}
	if got := RMS(pcmFrame(0)); got != 0 {
		t.Fatalf("expected 0 for silence, got %v", got)
	}
	if got := RMS(pcmFrame(8000)); got != 8000 {
		t.Fatalf("expected 8000 for constant amplitude, got %v", got)
	}
}

func TestSegmentDuration(t *testing.T) {
	seg := Segment{PCM: make([]byte, 32000), SampleRate: 16000, Channels: 1}
	if seg.Duration().Seconds() != 1.0 {
		t.Fatalf("expected 1s, got %v", seg.Duration())
	}
}
