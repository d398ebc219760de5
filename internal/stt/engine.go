package stt

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-listen/internal/config"
)

// Segment is one recognized span of speech within a transcribed utterance.
// Offsets are seconds relative to the start of the utterance. Text is
// whitespace-trimmed and never empty.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Engine abstracts a batch transcription backend. Given one utterance of
// 16-bit little-endian PCM it returns zero or more timestamped segments.
//
// Engines are constructed once at startup; construction failures (missing
// model, bad command) are fatal and must surface before any worker starts.
type Engine interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) ([]Segment, error)
	Close() error
}

// New builds the engine selected by cfg.Mode.
func New(cfg config.STTConfig) (Engine, error) {
	switch cfg.Mode {
	case "whisper":
		return NewWhisperEngine(cfg)
	case "exec":
		return NewExecEngine(cfg)
	case "mock":
		return NewMockEngine(), nil
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}
