package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/mattn/go-shellwords"
)

// ExecSource captures audio by running an external command (arecord, sox,
// ffmpeg) that writes raw 16-bit little-endian PCM to stdout. When a
// non-default device was selected, an ALSA-style "-D hw:N" argument is
// appended to the command.
type ExecSource struct {
	cmd    []string
	cfg    config.CaptureConfig
	device Device
	log    *slog.Logger

	threshold float64

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
	once    sync.Once
}

func NewExecSource(cfg config.CaptureConfig, device Device, log *slog.Logger) (*ExecSource, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("capture: parse command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("capture: command is empty")
	}
	if !device.Default {
		args = append(args, "-D", fmt.Sprintf("hw:%d", device.ID))
	}
	return &ExecSource{
		cmd:       args,
		cfg:       cfg,
		device:    device,
		log:       log.With(slog.String("component", "capture")),
		threshold: cfg.MinEnergy,
	}, nil
}

// Calibrate runs the capture command briefly and measures the ambient noise
// floor. The speech threshold becomes the measured RMS scaled by the
// configured multiplier, never below the configured minimum.
func (s *ExecSource) Calibrate(ctx context.Context) error {
	window := time.Duration(s.cfg.CalibrationMS) * time.Millisecond
	if window <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, window+2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cmd[0], s.cmd[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("capture: start calibration: %w", err)
	}

	frameBytes := s.frameBytes()
	frames := s.cfg.CalibrationMS / s.cfg.FrameDurationMS
	if frames <= 0 {
		frames = 1
	}

	var sum float64
	var measured int
	buf := make([]byte, frameBytes)
	for i := 0; i < frames; i++ {
		if _, err := io.ReadFull(stdout, buf); err != nil {
			break
		}
		sum += RMS(buf)
		measured++
	}
	cancel()
	_ = cmd.Wait()

	if measured == 0 {
		return errors.New("capture: calibration read no audio")
	}

	noise := sum / float64(measured)
	threshold := noise * s.cfg.EnergyMultiplier
	if threshold < s.cfg.MinEnergy {
		threshold = s.cfg.MinEnergy
	}
	s.threshold = threshold
	s.log.Info("ambient noise calibrated",
		slog.Float64("noise_rms", noise),
		slog.Float64("threshold", threshold))
	return nil
}

// Start launches the capture command and the reader goroutine. onSegment is
// invoked from that goroutine once per detected utterance.
func (s *ExecSource) Start(ctx context.Context, onSegment func(Segment)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("capture: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, s.cmd[0], s.cmd[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("capture: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("capture: start command: %w", err)
	}

	s.cancel = cancel
	s.started = true

	seg := NewSegmenter(SegmenterConfig{
		SampleRate:      s.cfg.SampleRate,
		Channels:        s.cfg.Channels,
		FrameDurationMS: s.cfg.FrameDurationMS,
		Threshold:       s.threshold,
		SilenceMS:       s.cfg.SilenceMS,
		MaxSegmentMS:    s.cfg.MaxSegmentMS,
	}, func(pcm []byte) {
		onSegment(Segment{
			PCM:        pcm,
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
			Captured:   time.Now().UTC(),
		})
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = cmd.Wait() }()

		frame := make([]byte, s.frameBytes())
		for {
			if _, err := io.ReadFull(stdout, frame); err != nil {
				seg.Flush()
				if ctx.Err() == nil {
					s.log.Warn("capture stream ended", slog.String("error", err.Error()))
				}
				return
			}
			chunk := make([]byte, len(frame))
			copy(chunk, frame)
			seg.Feed(chunk)
		}
	}()

	s.log.Info("background capture started",
		slog.String("device", s.device.Name),
		slog.Int("sample_rate", s.cfg.SampleRate))
	return nil
}

// Close stops the capture command and waits for the reader goroutine.
func (s *ExecSource) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.wg.Wait()
	})
	return nil
}

func (s *ExecSource) frameBytes() int {
	return s.cfg.SampleRate * s.cfg.Channels * 2 * s.cfg.FrameDurationMS / 1000
}
