package stt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-listen/internal/config"
)

func TestNewSelectsMode(t *testing.T) {
	eng, err := New(config.STTConfig{Mode: "mock"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	if _, err := New(config.STTConfig{Mode: "satellite"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestMockEngineReportsDuration(t *testing.T) {
	eng := NewMockEngine()
	// One second of 16 kHz mono 16-bit audio.
	pcm := make([]byte, 16000*2)
	segments, err := eng.Transcribe(context.Background(), pcm, 16000, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].End != 1.0 {
		t.Fatalf("expected 1.0s end offset, got %v", segments[0].End)
	}
	if segments[0].Text == "" {
		t.Fatal("expected non-empty text")
	}
}

func TestDecodeSegmentsTrimsAndDrops(t *testing.T) {
	data := []byte(`[
		{"start": 0.0, "end": 1.2, "text": "  hello there  "},
		{"start": 1.2, "end": 1.4, "text": "   "},
		{"start": 1.4, "end": 2.0, "text": "stop now"}
	]`)
	segments, err := decodeSegments(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments after dropping blanks, got %d", len(segments))
	}
	if segments[0].Text != "hello there" {
		t.Fatalf("expected trimmed text, got %q", segments[0].Text)
	}
	if segments[1].Start != 1.4 || segments[1].End != 2.0 {
		t.Fatalf("unexpected offsets: %+v", segments[1])
	}
}

func TestDecodeSegmentsRejectsGarbage(t *testing.T) {
	if _, err := decodeSegments([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestExecEngineRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecEngine(config.STTConfig{Mode: "exec", Command: ""}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestExecEngineRunsCommand(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-stt.sh")
	payload := `#!/bin/sh
echo '[{"start":0.0,"end":0.8,"text":" scripted result "}]'
`
	if err := os.WriteFile(script, []byte(payload), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	eng, err := NewExecEngine(config.STTConfig{Mode: "exec", Command: script, Language: "en", BeamSize: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pcm := make([]byte, 3200)
	segments, err := eng.Transcribe(context.Background(), pcm, 16000, 1)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "scripted result" {
		t.Fatalf("unexpected segments: %+v", segments)
	}
}

func TestPCMToFloat32Mono(t *testing.T) {
	// Two stereo frames: (16384, -16384), (0, 0) → mono (0, 0).
	pcm := []byte{0x00, 0x40, 0x00, 0xC0, 0x00, 0x00, 0x00, 0x00}
	samples := pcmToFloat32Mono(pcm, 2)
	if len(samples) != 2 {
		t.Fatalf("expected 2 mono samples, got %d", len(samples))
	}
	if samples[0] != 0 || samples[1] != 0 {
		t.Fatalf("expected averaged zeros, got %v", samples)
	}

	mono := pcmToFloat32Mono([]byte{0x00, 0x40}, 1)
	if len(mono) != 1 || mono[0] != 0.5 {
		t.Fatalf("expected 0.5, got %v", mono)
	}
}
