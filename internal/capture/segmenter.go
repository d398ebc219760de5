package capture

import (
	"encoding/binary"
	"math"
)

// SegmenterConfig tunes the energy-window voice activity segmenter.
type SegmenterConfig struct {
	SampleRate      int
	Channels        int
	FrameDurationMS int
	// Threshold is the RMS energy (16-bit PCM units, 0–32767) above which a
	// frame counts as speech. Calibration overwrites it via SetThreshold.
	Threshold float64
	// SilenceMS is the trailing-silence duration that ends an utterance.
	SilenceMS int
	// MaxSegmentMS forces a segment boundary during continuous speech so the
	// buffer cannot grow without bound.
	MaxSegmentMS int
}

// Segmenter accumulates PCM frames and emits one buffer per utterance:
// speech begins with the first frame above the energy threshold and ends
// after SilenceMS of consecutive silence. Leading silence is discarded.
//
// Not safe for concurrent use; all mutable state is confined to the capture
// reader goroutine that calls Feed.
type Segmenter struct {
	cfg  SegmenterConfig
	emit func(pcm []byte)

	buffer    []byte
	hadSpeech bool
	silenceMs int
}

func NewSegmenter(cfg SegmenterConfig, emit func(pcm []byte)) *Segmenter {
	return &Segmenter{cfg: cfg, emit: emit}
}

// SetThreshold replaces the speech-energy threshold. Called once after
// ambient-noise calibration, before any Feed.
func (s *Segmenter) SetThreshold(v float64) {
	s.cfg.Threshold = v
}

// Threshold returns the active speech-energy threshold.
func (s *Segmenter) Threshold() float64 {
	return s.cfg.Threshold
}

// FrameBytes returns the expected byte length of one frame.
func (s *Segmenter) FrameBytes() int {
	return s.cfg.SampleRate * s.cfg.Channels * 2 * s.cfg.FrameDurationMS / 1000
}

// Feed analyses one frame of PCM and emits a segment when an utterance
// completes.
func (s *Segmenter) Feed(frame []byte) {
	if RMS(frame) < s.cfg.Threshold {
		if !s.hadSpeech {
			// Leading silence before any speech is discarded.
			return
		}
		s.silenceMs += s.cfg.FrameDurationMS
		s.buffer = append(s.buffer, frame...)
		if s.silenceMs >= s.cfg.SilenceMS {
			s.flush()
		}
		return
	}

	s.hadSpeech = true
	s.silenceMs = 0
	s.buffer = append(s.buffer, frame...)

	bytesPerMs := s.cfg.SampleRate * s.cfg.Channels * 2 / 1000
	if max := s.cfg.MaxSegmentMS * bytesPerMs; max > 0 && len(s.buffer) >= max {
		s.flush()
	}
}

// Flush emits whatever speech is buffered, if any. Called when the capture
// stream ends so a trailing utterance is not lost.
func (s *Segmenter) Flush() {
	s.flush()
}

func (s *Segmenter) flush() {
	if len(s.buffer) == 0 || !s.hadSpeech {
		s.buffer = nil
		s.hadSpeech = false
		s.silenceMs = 0
		return
	}
	pcm := s.buffer
	s.buffer = nil
	s.hadSpeech = false
	s.silenceMs = 0
	s.emit(pcm)
}

// RMS returns the root-mean-square energy of a 16-bit little-endian PCM
// buffer, in sample units (0–32767).
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
