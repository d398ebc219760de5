// This file contains the whisper.cpp-backed engine using the CGO bindings.
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.

package stt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/loqalabs/loqa-listen/internal/config"
)

// WhisperEngine implements Engine on top of the whisper.cpp Go bindings.
// The model is loaded once at construction and shared across calls; each
// Transcribe call creates its own whisper context, which is cheap relative
// to inference and keeps the shared model free of per-call state.
type WhisperEngine struct {
	model    whisperlib.Model
	language string
	beamSize int

	// Contexts are not thread-safe and the pipeline guarantees a single
	// in-flight transcription, but guard anyway so a misuse cannot corrupt
	// the native state.
	mu sync.Mutex
}

// NewWhisperEngine loads the ggml model at cfg.ModelPath. A load failure is
// returned to the caller and must abort startup.
func NewWhisperEngine(cfg config.STTConfig) (*WhisperEngine, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("stt: model path must not be empty")
	}
	model, err := whisperlib.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("stt: load whisper model %q: %w", cfg.ModelPath, err)
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	beam := cfg.BeamSize
	if beam <= 0 {
		beam = 5
	}
	return &WhisperEngine{model: model, language: lang, beamSize: beam}, nil
}

func (e *WhisperEngine) Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	samples := pcmToFloat32Mono(pcm, channels)
	if len(samples) == 0 {
		return nil, nil
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("stt: create whisper context: %w", err)
	}
	if err := wctx.SetLanguage(e.language); err != nil {
		return nil, fmt.Errorf("stt: set language %q: %w", e.language, err)
	}
	wctx.SetBeamSize(e.beamSize)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("stt: process audio: %w", err)
	}

	var segments []Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stt: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Text:  text,
		})
	}
	return segments, nil
}

// Close releases the whisper model. Must be called when the engine is no
// longer needed.
func (e *WhisperEngine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// pcmToFloat32Mono converts 16-bit little-endian PCM to the normalized mono
// float32 samples whisper.cpp expects, averaging channels when necessary.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	if frames == 0 {
		return nil
	}
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
			sum += float32(sample) / 32768.0
		}
		out[i] = sum / float32(channels)
	}
	return out
}
