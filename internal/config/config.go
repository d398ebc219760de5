package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Capture     CaptureConfig    `yaml:"capture"`
	STT         STTConfig        `yaml:"stt"`
	Listen      ListenConfig     `yaml:"listen"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type CaptureConfig struct {
	Mode             string  `yaml:"mode"`
	Command          string  `yaml:"command"`
	Device           string  `yaml:"device"`
	SampleRate       int     `yaml:"sample_rate"`
	Channels         int     `yaml:"channels"`
	FrameDurationMS  int     `yaml:"frame_duration_ms"`
	CalibrationMS    int     `yaml:"calibration_ms"`
	EnergyMultiplier float64 `yaml:"energy_multiplier"`
	MinEnergy        float64 `yaml:"min_energy"`
	SilenceMS        int     `yaml:"silence_ms"`
	MaxSegmentMS     int     `yaml:"max_segment_ms"`
}

type STTConfig struct {
	Mode      string `yaml:"mode"`
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
	BeamSize  int    `yaml:"beam_size"`
	VADFilter bool   `yaml:"vad_filter"`
}

type ListenConfig struct {
	StopKeyword    string `yaml:"stop_keyword"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
	PacingMS       int    `yaml:"pacing_ms"`
	StopTimeoutMS  int    `yaml:"stop_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-listen",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8090,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-transcripts.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Capture: CaptureConfig{
			Mode:             "exec",
			Command:          "arecord -q -t raw -f S16_LE -r 16000 -c 1",
			SampleRate:       16000,
			Channels:         1,
			FrameDurationMS:  30,
			CalibrationMS:    1000,
			EnergyMultiplier: 1.5,
			MinEnergy:        300,
			SilenceMS:        500,
			MaxSegmentMS:     10000,
		},
		STT: STTConfig{
			Mode:      "mock",
			Language:  "en",
			BeamSize:  5,
			VADFilter: true,
		},
		Listen: ListenConfig{
			StopKeyword:    "stop",
			PollIntervalMS: 1000,
			PacingMS:       250,
			StopTimeoutMS:  5000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LISTEN_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LISTEN_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LISTEN_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LISTEN_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LISTEN_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LISTEN_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LISTEN_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "LISTEN_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LISTEN_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LISTEN_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LISTEN_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LISTEN_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LISTEN_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LISTEN_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LISTEN_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LISTEN_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LISTEN_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LISTEN_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LISTEN_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LISTEN_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LISTEN_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Capture.Mode, "LISTEN_CAPTURE_MODE")
	overrideString(&cfg.Capture.Command, "LISTEN_CAPTURE_COMMAND")
	overrideString(&cfg.Capture.Device, "LISTEN_CAPTURE_DEVICE")
	overrideInt(&cfg.Capture.SampleRate, "LISTEN_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "LISTEN_CAPTURE_CHANNELS")
	overrideInt(&cfg.Capture.FrameDurationMS, "LISTEN_CAPTURE_FRAME_DURATION_MS")
	overrideInt(&cfg.Capture.CalibrationMS, "LISTEN_CAPTURE_CALIBRATION_MS")
	overrideFloat(&cfg.Capture.EnergyMultiplier, "LISTEN_CAPTURE_ENERGY_MULTIPLIER")
	overrideFloat(&cfg.Capture.MinEnergy, "LISTEN_CAPTURE_MIN_ENERGY")
	overrideInt(&cfg.Capture.SilenceMS, "LISTEN_CAPTURE_SILENCE_MS")
	overrideInt(&cfg.Capture.MaxSegmentMS, "LISTEN_CAPTURE_MAX_SEGMENT_MS")
	overrideString(&cfg.STT.Mode, "LISTEN_STT_MODE")
	overrideString(&cfg.STT.Command, "LISTEN_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "LISTEN_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "LISTEN_STT_LANGUAGE")
	overrideInt(&cfg.STT.BeamSize, "LISTEN_STT_BEAM_SIZE")
	overrideBool(&cfg.STT.VADFilter, "LISTEN_STT_VAD_FILTER")
	overrideString(&cfg.Listen.StopKeyword, "LISTEN_STOP_KEYWORD")
	overrideInt(&cfg.Listen.PollIntervalMS, "LISTEN_POLL_INTERVAL_MS")
	overrideInt(&cfg.Listen.PacingMS, "LISTEN_PACING_MS")
	overrideInt(&cfg.Listen.StopTimeoutMS, "LISTEN_STOP_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.Capture.Mode {
	case "exec", "mock":
	default:
		return errors.New("capture.mode must be one of exec|mock")
	}
	if cfg.Capture.Mode == "exec" && cfg.Capture.Command == "" {
		return errors.New("capture.command must be set when capture.mode=exec")
	}
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.Channels <= 0 {
		return errors.New("capture.channels must be positive")
	}
	if cfg.Capture.FrameDurationMS <= 0 {
		return errors.New("capture.frame_duration_ms must be positive")
	}
	if cfg.Capture.SilenceMS <= 0 {
		return errors.New("capture.silence_ms must be positive")
	}
	if cfg.Capture.MaxSegmentMS <= cfg.Capture.SilenceMS {
		return errors.New("capture.max_segment_ms must be greater than capture.silence_ms")
	}
	switch cfg.STT.Mode {
	case "whisper", "exec", "mock":
	default:
		return errors.New("stt.mode must be one of whisper|exec|mock")
	}
	if cfg.STT.Mode == "whisper" && cfg.STT.ModelPath == "" {
		return errors.New("stt.model_path must be set when stt.mode=whisper")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when stt.mode=exec")
	}
	if cfg.STT.BeamSize <= 0 {
		return errors.New("stt.beam_size must be positive")
	}
	if cfg.Listen.StopKeyword == "" {
		return errors.New("listen.stop_keyword must not be empty")
	}
	if cfg.Listen.PollIntervalMS <= 0 {
		return errors.New("listen.poll_interval_ms must be positive")
	}
	if cfg.Listen.PacingMS < 0 {
		return errors.New("listen.pacing_ms must be >= 0")
	}
	if cfg.Listen.StopTimeoutMS < 0 {
		return errors.New("listen.stop_timeout_ms must be >= 0")
	}
	return nil
}
