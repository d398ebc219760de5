package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/mattn/go-shellwords"
)

// ExecEngine shells out to an external recognizer command. The utterance is
// written to a temporary WAV file and the command is expected to print a JSON
// array of {"start","end","text"} objects on stdout.
type ExecEngine struct {
	cmd []string
	cfg config.STTConfig
	mu  sync.Mutex
}

func NewExecEngine(cfg config.STTConfig) (*ExecEngine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("stt: parse command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt: command is empty")
	}
	return &ExecEngine{cmd: args, cfg: cfg}, nil
}

func (e *ExecEngine) Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) ([]Segment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := os.CreateTemp(os.TempDir(), "listen_stt_*.wav")
	if err != nil {
		return nil, fmt.Errorf("stt: temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, pcm, sampleRate, channels); err != nil {
		return nil, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--audio", file.Name())
	if e.cfg.ModelPath != "" {
		args = append(args, "--model", e.cfg.ModelPath)
	}
	if e.cfg.Language != "" {
		args = append(args, "--language", e.cfg.Language)
	}
	if e.cfg.BeamSize > 0 {
		args = append(args, "--beam-size", strconv.Itoa(e.cfg.BeamSize))
	}
	if e.cfg.VADFilter {
		args = append(args, "--vad")
	}

	command := exec.CommandContext(ctx, base, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("stt: command failed: %w: %s", err, stderr.String())
	}

	return decodeSegments(stdout.Bytes())
}

func (e *ExecEngine) Close() error { return nil }

func decodeSegments(data []byte) ([]Segment, error) {
	var raw []Segment
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("stt: decode response: %w", err)
	}
	segments := raw[:0]
	for _, s := range raw {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		segments = append(segments, s)
	}
	return segments, nil
}

func writePCMToWav(file *os.File, pcm []byte, sampleRate, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("stt: pcm payload not aligned")
	}
	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("stt: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("stt: close wav encoder: %w", err)
	}
	return nil
}
