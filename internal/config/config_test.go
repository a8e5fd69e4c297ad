package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pialarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
arm_input: 7
armed_output: 0
active_output: 1
buzzer_output: 4
sounder_output: 2
strobe_output: 3
arm_delay: 15
alarm_delay: 20
alarm_duration: 300
normally_closed_inputs: [1, 6]
ignored_inputs: [2]
broker: "tcp://localhost:1883"
gpio_chip: "gpiochip4"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 7, *cfg.ArmInput)
	require.Equal(t, 0, *cfg.ArmedOutput)
	require.Equal(t, 1, *cfg.ActiveOutput)
	require.Equal(t, 4, *cfg.BuzzerOutput)
	require.Equal(t, 15*time.Second, cfg.ArmDelay())
	require.Equal(t, 20*time.Second, cfg.AlarmDelay())
	require.Equal(t, 300*time.Second, cfg.AlarmDuration())
	require.Equal(t, []int{1, 6}, cfg.NormallyClosedInputs)
	require.Equal(t, []int{2}, cfg.IgnoredInputs)
	require.Equal(t, "tcp://localhost:1883", cfg.Broker)
	require.Equal(t, "gpiochip4", cfg.GPIOChip)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "armed_output: 0\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, DefaultArmDelaySeconds, cfg.ArmDelaySeconds)
	require.Equal(t, DefaultAlarmDelaySeconds, cfg.AlarmDelaySeconds)
	require.Equal(t, DefaultAlarmDurationSeconds, cfg.AlarmDurationSeconds)
	require.Nil(t, cfg.ArmInput)
	require.Nil(t, cfg.ActiveOutput)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "armed_output: [not a pin\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidatePinRange(t *testing.T) {
	path := writeConfig(t, "armed_output: 8\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "out of range")

	path = writeConfig(t, "arm_input: -1\n")
	_, err = Load(path)
	require.ErrorContains(t, err, "out of range")
}

func TestValidateOutputConflict(t *testing.T) {
	path := writeConfig(t, "armed_output: 3\nstrobe_output: 3\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "both assigned to pin 3")
	// Report order does not depend on map iteration order.
	require.ErrorContains(t, err, "armed_output and strobe_output")
}

func TestValidateVirtualPinAllowedInInputLists(t *testing.T) {
	path := writeConfig(t, "normally_closed_inputs: [8]\nignored_inputs: [8]\n")
	_, err := Load(path)
	require.NoError(t, err)

	path = writeConfig(t, "normally_closed_inputs: [9]\n")
	_, err = Load(path)
	require.ErrorContains(t, err, "out of range")
}

func TestValidateTimings(t *testing.T) {
	path := writeConfig(t, "arm_delay: -1\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "invalid timings")

	path = writeConfig(t, "alarm_duration: 0\n")
	_, err = Load(path)
	require.ErrorContains(t, err, "invalid timings")

	// Zero grace periods are legitimate (instant arm, instant trigger).
	path = writeConfig(t, "arm_delay: 0\nalarm_delay: 0\n")
	_, err = Load(path)
	require.NoError(t, err)
}

func TestValidateOffsetsLength(t *testing.T) {
	path := writeConfig(t, "input_offsets: [1, 2, 3]\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "input_offsets")

	path = writeConfig(t, "output_offsets: [10, 11, 12, 13, 14, 15, 16, 17]\n")
	_, err = Load(path)
	require.NoError(t, err)
}

func TestValidateNilConfig(t *testing.T) {
	require.ErrorIs(t, Validate(nil), errNotSet)
}
