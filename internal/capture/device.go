package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoInputDevice is returned when no input-capable audio device exists.
// It is fatal: the listener must not start any goroutine after seeing it.
var ErrNoInputDevice = errors.New("capture: no input device found")

// Device describes an audio input device.
type Device struct {
	ID            int
	Name          string
	Default       bool
	InputChannels int
}

// Enumerator lists the audio devices visible to the process.
type Enumerator interface {
	Devices() ([]Device, error)
}

// SelectDevice resolves the capture device. When preferred is non-empty it is
// matched case-insensitively against device names. Otherwise the default
// input device is used; if the default has no input capability the first
// input-capable device is selected and the fallback is logged.
func SelectDevice(enum Enumerator, preferred string, log *slog.Logger) (Device, error) {
	devices, err := enum.Devices()
	if err != nil {
		return Device{}, fmt.Errorf("capture: enumerate devices: %w", err)
	}

	if preferred != "" {
		want := strings.ToLower(preferred)
		for _, d := range devices {
			if d.InputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
				return d, nil
			}
		}
		return Device{}, fmt.Errorf("capture: device %q not found: %w", preferred, ErrNoInputDevice)
	}

	for _, d := range devices {
		if d.Default && d.InputChannels > 0 {
			return d, nil
		}
	}

	log.Warn("default input device not available, scanning for alternatives")
	for _, d := range devices {
		if d.InputChannels > 0 {
			log.Info("falling back to input device",
				slog.Int("id", d.ID),
				slog.String("name", d.Name))
			return d, nil
		}
	}
	return Device{}, ErrNoInputDevice
}

// StaticEnumerator serves a fixed device list. Used in tests and in mock
// capture mode.
type StaticEnumerator []Device

func (s StaticEnumerator) Devices() ([]Device, error) {
	return []Device(s), nil
}

// ALSAEnumerator discovers sound cards from the ALSA proc tree. A card is
// input-capable when it exposes at least one capture PCM (pcm*c directory).
type ALSAEnumerator struct {
	// Root is the asound proc directory, overridable for tests.
	// Defaults to /proc/asound.
	Root string
}

func (a ALSAEnumerator) Devices() ([]Device, error) {
	root := a.Root
	if root == "" {
		root = "/proc/asound"
	}
	data, err := os.ReadFile(filepath.Join(root, "cards"))
	if err != nil {
		return nil, fmt.Errorf("read alsa cards: %w", err)
	}

	var devices []Device
	for _, line := range strings.Split(string(data), "\n") {
		// Card lines look like: " 0 [PCH            ]: HDA-Intel - HDA Intel PCH"
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !strings.Contains(trimmed, "]:") {
			continue
		}
		fields := strings.SplitN(trimmed, " ", 2)
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		name := trimmed
		if idx := strings.Index(trimmed, "]:"); idx >= 0 {
			name = strings.TrimSpace(trimmed[idx+2:])
		}

		captures, _ := filepath.Glob(filepath.Join(root, fmt.Sprintf("card%d", id), "pcm*c"))
		inputs := 0
		if len(captures) > 0 {
			inputs = 1
		}
		devices = append(devices, Device{
			ID:            id,
			Name:          name,
			Default:       len(devices) == 0,
			InputChannels: inputs,
		})
	}
	return devices, nil
}
