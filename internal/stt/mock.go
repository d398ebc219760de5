package stt

import (
	"context"
	"fmt"
)

type mockEngine struct{}

// NewMockEngine returns an engine that reports one segment per utterance
// describing the audio it received. Useful for tests and dry runs without a
// model.
func NewMockEngine() Engine {
	return &mockEngine{}
}

func (m *mockEngine) Transcribe(_ context.Context, pcm []byte, sampleRate, channels int) ([]Segment, error) {
	if len(pcm) == 0 || sampleRate <= 0 || channels <= 0 {
		return nil, nil
	}
	duration := float64(len(pcm)) / float64(sampleRate*channels*2)
	return []Segment{{
		Start: 0,
		End:   duration,
		Text:  fmt.Sprintf("[utterance %.2fs]", duration),
	}}, nil
}

func (m *mockEngine) Close() error { return nil }
