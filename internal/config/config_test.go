package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen.StopKeyword != "stop" {
		t.Fatalf("expected default stop keyword, got %q", cfg.Listen.StopKeyword)
	}
	if cfg.STT.BeamSize != 5 {
		t.Fatalf("expected default beam size 5, got %d", cfg.STT.BeamSize)
	}
	if !cfg.STT.VADFilter {
		t.Fatal("expected vad filter enabled by default")
	}
	if cfg.Capture.SampleRate != 16000 {
		t.Fatalf("expected default sample rate 16000, got %d", cfg.Capture.SampleRate)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listen.yaml")
	data := []byte(`
stt:
  mode: exec
  command: "whisper-cli --json"
  language: de
  beam_size: 3
listen:
  stop_keyword: halt
  poll_interval_ms: 500
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.STT.Mode != "exec" || cfg.STT.Command != "whisper-cli --json" {
		t.Fatalf("expected exec stt config, got %+v", cfg.STT)
	}
	if cfg.STT.Language != "de" || cfg.STT.BeamSize != 3 {
		t.Fatalf("expected language/beam overrides, got %+v", cfg.STT)
	}
	if cfg.Listen.StopKeyword != "halt" || cfg.Listen.PollIntervalMS != 500 {
		t.Fatalf("expected listen overrides, got %+v", cfg.Listen)
	}
	// Untouched sections keep their defaults.
	if cfg.Capture.SilenceMS != 500 {
		t.Fatalf("expected default silence_ms, got %d", cfg.Capture.SilenceMS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_STT_MODE", "exec")
	t.Setenv("LISTEN_STT_COMMAND", "transcribe --json")
	t.Setenv("LISTEN_STT_LANGUAGE", "fr")
	t.Setenv("LISTEN_STT_BEAM_SIZE", "7")
	t.Setenv("LISTEN_CAPTURE_MODE", "mock")
	t.Setenv("LISTEN_CAPTURE_ENERGY_MULTIPLIER", "2.5")
	t.Setenv("LISTEN_STOP_KEYWORD", "enough")
	t.Setenv("LISTEN_BUS_ENABLED", "true")
	t.Setenv("LISTEN_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LISTEN_BUS_EMBEDDED", "false")
	t.Setenv("LISTEN_EVENT_STORE_RETENTION_MODE", "persistent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.STT.Mode != "exec" || cfg.STT.Command != "transcribe --json" {
		t.Fatalf("expected stt env overrides, got %+v", cfg.STT)
	}
	if cfg.STT.Language != "fr" || cfg.STT.BeamSize != 7 {
		t.Fatalf("expected language/beam env overrides, got %+v", cfg.STT)
	}
	if cfg.Capture.Mode != "mock" {
		t.Fatalf("expected capture mode override, got %q", cfg.Capture.Mode)
	}
	if cfg.Capture.EnergyMultiplier != 2.5 {
		t.Fatalf("expected energy multiplier override, got %v", cfg.Capture.EnergyMultiplier)
	}
	if cfg.Listen.StopKeyword != "enough" {
		t.Fatalf("expected stop keyword override, got %q", cfg.Listen.StopKeyword)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected retention mode override, got %q", cfg.EventStore.RetentionMode)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty runtime name", func(c *Config) { c.RuntimeName = "" }},
		{"bad http port", func(c *Config) { c.HTTP.Port = 0 }},
		{"whisper without model", func(c *Config) { c.STT.Mode = "whisper"; c.STT.ModelPath = "" }},
		{"exec stt without command", func(c *Config) { c.STT.Mode = "exec"; c.STT.Command = "" }},
		{"unknown stt mode", func(c *Config) { c.STT.Mode = "cloud" }},
		{"zero beam size", func(c *Config) { c.STT.BeamSize = 0 }},
		{"exec capture without command", func(c *Config) { c.Capture.Command = "" }},
		{"max segment not above silence", func(c *Config) { c.Capture.MaxSegmentMS = c.Capture.SilenceMS }},
		{"empty stop keyword", func(c *Config) { c.Listen.StopKeyword = "" }},
		{"zero poll interval", func(c *Config) { c.Listen.PollIntervalMS = 0 }},
		{"bad retention mode", func(c *Config) { c.EventStore.RetentionMode = "forever" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
