package alarm

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/carlosefr/pialarm/internal/hw"
)

// Test pin assignments: outputs 0..4, arm switch on input 7.
const (
	armedPin   = 0
	activePin  = 1
	sounderPin = 2
	strobePin  = 3
)

var errHardware = errors.New("hardware broke")

// newTestController builds a controller against the fake port with timings
// compressed enough to run full arm/trigger/rearm cycles in a test.
func newTestController(t *testing.T, port *hw.FakePort, mod func(*Options)) *Controller {
	t.Helper()

	opts := Options{
		Logger:        zaptest.NewLogger(t).Sugar(),
		Port:          port,
		ArmedOutput:   pin(armedPin),
		ActiveOutput:  pin(activePin),
		SounderOutput: pin(sounderPin),
		StrobeOutput:  pin(strobePin),
		ArmDelay:      200 * time.Millisecond,
		AlarmDelay:    300 * time.Millisecond,
		AlarmDuration: 400 * time.Millisecond,
	}
	if mod != nil {
		mod(&opts)
	}

	c, err := New(opts)
	require.NoError(t, err)

	c.tick = 10 * time.Millisecond
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewRequiresLoggerAndPort(t *testing.T) {
	_, err := New(Options{Port: hw.NewFakePort()})
	require.ErrorIs(t, err, errNoLogger)

	_, err = New(Options{Logger: zaptest.NewLogger(t).Sugar()})
	require.ErrorIs(t, err, errNoPort)
}

// TestArmTriggerRearmCycle walks the whole lifecycle: grace period,
// monitoring, violation, activation, fixed duration, automatic rearm.
func TestArmTriggerRearmCycle(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, nil)

	c.Arm(nil)
	require.True(t, c.Armed())
	require.False(t, c.Active())
	require.True(t, port.Output(armedPin))

	// Nothing sounds during the arming grace period.
	require.Never(t, c.Active, 150*time.Millisecond, 10*time.Millisecond)

	// Past the grace period: monitoring, still quiet.
	time.Sleep(150 * time.Millisecond)
	require.True(t, c.Armed())
	require.False(t, c.Active())

	// Violate an input: the disarm grace period runs before the siren.
	c.SetVirtualInput(true)
	require.Equal(t, []int{hw.VirtualInputPin}, c.UnsealedInputs())
	require.Never(t, c.Active, 200*time.Millisecond, 10*time.Millisecond)

	require.Eventually(t, c.Active, 300*time.Millisecond, 5*time.Millisecond)
	require.True(t, c.Armed())
	require.True(t, port.Output(activePin))
	require.True(t, port.Output(sounderPin))
	require.True(t, port.Output(strobePin))

	// The alarm resets after its fixed duration and rearms itself.
	require.Eventually(t, func() bool { return !c.Active() }, 700*time.Millisecond, 5*time.Millisecond)
	require.True(t, c.Armed())
	require.Equal(t, []int{hw.VirtualInputPin}, c.UnsealedInputs())

	c.Disarm()
	require.False(t, c.Armed())
	require.False(t, port.Output(armedPin))
}

// TestTriggerCommitmentSurvivesReseal: resealing inside the disarm grace
// period does not cancel the pending trigger.
func TestTriggerCommitmentSurvivesReseal(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, nil)

	c.Arm(nil)
	time.Sleep(250 * time.Millisecond) // past the arming grace period

	c.SetVirtualInput(true)
	time.Sleep(100 * time.Millisecond)
	c.SetVirtualInput(false)

	require.Empty(t, c.UnsealedInputs())
	require.False(t, c.Active())

	// The alarm still fires at the original deadline.
	require.Eventually(t, c.Active, 400*time.Millisecond, 5*time.Millisecond)
}

// TestDisarmDuringGraceNeverActivates: disarming before the arm-grace
// deadline means the session never becomes truly armed.
func TestDisarmDuringGraceNeverActivates(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, nil)

	c.Arm(nil)
	time.Sleep(50 * time.Millisecond)
	c.Disarm()
	require.False(t, c.Armed())

	c.SetVirtualInput(true)
	require.Never(t, c.Active, 400*time.Millisecond, 10*time.Millisecond)
	require.NotContains(t, port.WritesTo(activePin), true)
}

func TestDisarmDuringViolationPending(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, nil)

	c.Arm(nil)
	time.Sleep(250 * time.Millisecond)
	c.SetVirtualInput(true)
	time.Sleep(100 * time.Millisecond)

	c.Disarm()
	require.False(t, c.Armed())
	require.False(t, port.Output(armedPin))
	require.Never(t, c.Active, 400*time.Millisecond, 10*time.Millisecond)
}

// TestDisarmStopsSoundingAlarm: disarm is effective mid-alarm and only
// returns once the outputs are reset.
func TestDisarmStopsSoundingAlarm(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, func(o *Options) {
		o.ArmDelay = 50 * time.Millisecond
		o.AlarmDelay = 50 * time.Millisecond
		o.AlarmDuration = 10 * time.Second
	})

	c.Arm(nil)
	time.Sleep(80 * time.Millisecond)
	c.SetVirtualInput(true)
	require.Eventually(t, c.Active, time.Second, 5*time.Millisecond)

	c.Disarm()
	require.False(t, c.Active())
	require.False(t, c.Armed())
	require.False(t, port.Output(activePin))
	require.False(t, port.Output(sounderPin))
	require.False(t, port.Output(strobePin))
	require.False(t, port.Output(armedPin))
}

func TestArmIsIdempotent(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, nil)

	c.Arm(nil)
	first := c.session
	c.Arm(nil)
	require.Same(t, first, c.session)
	require.True(t, c.Armed())

	c.Disarm()
	require.False(t, c.Armed())
	c.Disarm() // no-op
	require.False(t, c.Armed())
}

// TestIgnoreOverrideRevertsOnDisarm: an override supplied to Arm silences
// its inputs for that session only.
func TestIgnoreOverrideRevertsOnDisarm(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, func(o *Options) {
		o.IgnoredInputs = []int{2}
		o.ArmDelay = 50 * time.Millisecond
		o.AlarmDelay = 50 * time.Millisecond
	})

	c.Arm([]int{hw.VirtualInputPin})
	time.Sleep(80 * time.Millisecond)
	c.SetVirtualInput(true)
	require.Never(t, c.Active, 300*time.Millisecond, 10*time.Millisecond)

	c.Disarm()
	require.Equal(t, []int{2}, c.tracker.Ignored())

	// Re-armed without the override, the same input triggers.
	c.Arm(nil)
	require.Eventually(t, c.Active, time.Second, 5*time.Millisecond)
}

// TestSoundingImpliesArmed samples the raw flags through a full cycle,
// including a disarm mid-alarm.
func TestSoundingImpliesArmed(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, func(o *Options) {
		o.ArmDelay = 50 * time.Millisecond
		o.AlarmDelay = 50 * time.Millisecond
		o.AlarmDuration = 200 * time.Millisecond
	})

	var violated atomic.Bool
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if c.sounding.Load() && !c.armed.Load() {
				violated.Store(true)
			}
			time.Sleep(time.Millisecond)
		}
	}()

	c.Arm(nil)
	time.Sleep(80 * time.Millisecond)
	c.SetVirtualInput(true)
	require.Eventually(t, c.Active, time.Second, 5*time.Millisecond)
	c.Disarm()

	close(stop)
	require.False(t, violated.Load())
}

func TestArmSwitchInput(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, func(o *Options) {
		o.ArmInput = pin(7)
	})

	port.SetInput(7, true)
	require.True(t, c.Armed())
	require.Empty(t, c.UnsealedInputs())

	port.SetInput(7, false)
	require.False(t, c.Armed())
}

func TestAutoArmOnInitialization(t *testing.T) {
	port := hw.NewFakePort()
	port.SeedInput(7, true) // switch already in the armed position

	c := newTestController(t, port, func(o *Options) {
		o.ArmInput = pin(7)
	})

	require.True(t, c.Armed())
}

func TestOutputTests(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, nil)
	c.sounderTestDur = 20 * time.Millisecond
	c.strobeTestDur = 20 * time.Millisecond

	c.SounderTest()
	require.Equal(t, []bool{true, false}, port.WritesTo(sounderPin))

	c.StrobeTest()
	require.Equal(t, []bool{true, false}, port.WritesTo(strobePin))

	// Refused while armed.
	c.Arm(nil)
	c.SounderTest()
	require.Equal(t, []bool{true, false}, port.WritesTo(sounderPin))
	c.Disarm()
}

func TestOutputTestsWithoutHardware(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, func(o *Options) {
		o.SounderOutput = nil
		o.StrobeOutput = nil
	})

	c.SounderTest()
	c.StrobeTest()
	c.BuzzerTest()
	require.Empty(t, port.Writes())
}

// TestActuatorFaultEndsSession: a failed alarm activation is equivalent to
// a forced disarm and surfaces on the fault channel.
func TestActuatorFaultEndsSession(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, func(o *Options) {
		o.ArmDelay = 50 * time.Millisecond
		o.AlarmDelay = 50 * time.Millisecond
	})

	c.Arm(nil)
	time.Sleep(80 * time.Millisecond)

	port.SetWriteError(errHardware)
	c.SetVirtualInput(true)

	select {
	case err := <-c.Faults():
		require.ErrorIs(t, err, errHardware)
	case <-time.After(time.Second):
		t.Fatal("no fault reported")
	}

	require.Eventually(t, func() bool { return !c.Armed() }, time.Second, 5*time.Millisecond)
	require.False(t, c.Active())
}

func TestInitBeepAndClose(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, func(o *Options) {
		o.BuzzerOutput = pin(4)
	})

	// The init sequence is two short beeps.
	require.Eventually(t, func() bool {
		count := 0
		for _, high := range port.WritesTo(4) {
			if high {
				count++
			}
		}
		return count == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.True(t, port.Closed)
	require.NoError(t, c.Close()) // idempotent
}

func TestCloseWhileArmed(t *testing.T) {
	port := hw.NewFakePort()
	c := newTestController(t, port, nil)

	c.Arm(nil)
	require.NoError(t, c.Close())
	require.False(t, c.Armed())
	require.True(t, port.Closed)
}
