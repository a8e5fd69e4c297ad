// Package config loads and validates the daemon's YAML configuration.
// Invalid configurations are rejected before any hardware is touched.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/carlosefr/pialarm/internal/hw"
)

// Config describes the alarm installation: which pins do what, the timing
// parameters, and where (if anywhere) telemetry goes.
//
// All pin assignments are optional; a missing output simply disables that
// feature, exactly as in the controller itself.
type Config struct {
	// ArmInput is the input pin wired to the external arm/disarm switch.
	ArmInput *int `yaml:"arm_input"`
	// ArmedOutput goes high for the whole armed period, grace included.
	ArmedOutput *int `yaml:"armed_output"`
	// ActiveOutput goes high only while the alarm is sounding.
	ActiveOutput *int `yaml:"active_output"`
	// BuzzerOutput drives the panel buzzer used for feedback beeps.
	BuzzerOutput *int `yaml:"buzzer_output"`
	// SounderOutput drives the external siren.
	SounderOutput *int `yaml:"sounder_output"`
	// StrobeOutput drives the strobe light.
	StrobeOutput *int `yaml:"strobe_output"`

	// ArmDelaySeconds is the grace period between arming and monitoring.
	ArmDelaySeconds int `yaml:"arm_delay"`
	// AlarmDelaySeconds is the grace period between a violation and the siren.
	AlarmDelaySeconds int `yaml:"alarm_delay"`
	// AlarmDurationSeconds is how long the siren sounds before auto-rearm.
	AlarmDurationSeconds int `yaml:"alarm_duration"`

	// NormallyClosedInputs lists inputs that are violated when open (high),
	// instead of the default violated-when-grounded.
	NormallyClosedInputs []int `yaml:"normally_closed_inputs"`
	// IgnoredInputs is the default set of inputs that never trigger the alarm.
	IgnoredInputs []int `yaml:"ignored_inputs"`

	// InputOffsets and OutputOffsets map the logical pin space onto BCM GPIO
	// line offsets for the real port. Unused by the fake port in tests.
	InputOffsets  []int `yaml:"input_offsets"`
	OutputOffsets []int `yaml:"output_offsets"`

	// GPIOChip is the Linux GPIO character device name (default gpiochip0).
	GPIOChip string `yaml:"gpio_chip"`

	// Broker is the MQTT broker address for event telemetry (empty disables).
	Broker string `yaml:"broker"`
}

// DefaultConfigFilename is used when no --config flag is given.
const DefaultConfigFilename = "pialarm.yaml"

// Timing defaults match a typical domestic installation.
const (
	DefaultArmDelaySeconds      = 30
	DefaultAlarmDelaySeconds    = 30
	DefaultAlarmDurationSeconds = 900
)

var (
	errNotSet = errors.New("configuration is not set")
)

// ArmDelay returns the arming grace period as a duration.
func (c *Config) ArmDelay() time.Duration {
	return time.Duration(c.ArmDelaySeconds) * time.Second
}

// AlarmDelay returns the violation grace period as a duration.
func (c *Config) AlarmDelay() time.Duration {
	return time.Duration(c.AlarmDelaySeconds) * time.Second
}

// AlarmDuration returns the sounding time as a duration.
func (c *Config) AlarmDuration() time.Duration {
	return time.Duration(c.AlarmDurationSeconds) * time.Second
}

// Load reads the configuration from path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{
		ArmDelaySeconds:      DefaultArmDelaySeconds,
		AlarmDelaySeconds:    DefaultAlarmDelaySeconds,
		AlarmDurationSeconds: DefaultAlarmDurationSeconds,
	}
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks pin ranges, pin-assignment conflicts, and timings.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errNotSet
	}

	if cfg.ArmInput != nil {
		if err := checkHardwarePin("arm_input", *cfg.ArmInput); err != nil {
			return err
		}
	}

	outputs := map[string]*int{
		"armed_output":   cfg.ArmedOutput,
		"active_output":  cfg.ActiveOutput,
		"buzzer_output":  cfg.BuzzerOutput,
		"sounder_output": cfg.SounderOutput,
		"strobe_output":  cfg.StrobeOutput,
	}

	assigned := make(map[int]string, len(outputs))
	for name, pin := range outputs {
		if pin == nil {
			continue
		}
		if err := checkHardwarePin(name, *pin); err != nil {
			return err
		}
		if other, ok := assigned[*pin]; ok {
			// Map iteration order is random; report both names deterministically.
			first, second := name, other
			if second < first {
				first, second = second, first
			}
			return fmt.Errorf("%s and %s both assigned to pin %d", first, second, *pin)
		}
		assigned[*pin] = name
	}

	for _, pin := range cfg.NormallyClosedInputs {
		if err := checkInputPin("normally_closed_inputs", pin); err != nil {
			return err
		}
	}
	for _, pin := range cfg.IgnoredInputs {
		if err := checkInputPin("ignored_inputs", pin); err != nil {
			return err
		}
	}

	if cfg.ArmDelaySeconds < 0 || cfg.AlarmDelaySeconds < 0 || cfg.AlarmDurationSeconds <= 0 {
		return fmt.Errorf("invalid timings: arm_delay=%d alarm_delay=%d alarm_duration=%d",
			cfg.ArmDelaySeconds, cfg.AlarmDelaySeconds, cfg.AlarmDurationSeconds)
	}

	if len(cfg.InputOffsets) > 0 && len(cfg.InputOffsets) != hw.NumHardwarePins {
		return fmt.Errorf("input_offsets must list %d GPIO lines, got %d", hw.NumHardwarePins, len(cfg.InputOffsets))
	}
	if len(cfg.OutputOffsets) > 0 && len(cfg.OutputOffsets) != hw.NumHardwarePins {
		return fmt.Errorf("output_offsets must list %d GPIO lines, got %d", hw.NumHardwarePins, len(cfg.OutputOffsets))
	}

	return nil
}

// checkHardwarePin validates a physical pin number.
func checkHardwarePin(name string, pin int) error {
	if pin < 0 || pin >= hw.NumHardwarePins {
		return fmt.Errorf("%s: pin %d out of range [0, %d)", name, pin, hw.NumHardwarePins)
	}
	return nil
}

// checkInputPin validates an input pin number, allowing the virtual pin.
func checkInputPin(name string, pin int) error {
	if pin < 0 || pin > hw.VirtualInputPin {
		return fmt.Errorf("%s: pin %d out of range [0, %d]", name, pin, hw.VirtualInputPin)
	}
	return nil
}
