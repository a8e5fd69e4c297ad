package alarm

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/carlosefr/pialarm/internal/hw"
)

// Options configures a Controller. All pin assignments are optional; a nil
// output pin disables that feature.
type Options struct {
	// Logger receives all controller logging. Required.
	Logger *zap.SugaredLogger
	// Port is the hardware I/O port. Required; the controller takes
	// ownership and releases it on Close.
	Port hw.Port

	// ArmInput is the input wired to the external arm/disarm switch.
	ArmInput *int
	// ArmedOutput goes high for the whole armed period, grace included.
	ArmedOutput *int
	// ActiveOutput goes high only while the alarm is sounding. It is never
	// high unless ArmedOutput is also high.
	ActiveOutput *int
	// BuzzerOutput drives the panel buzzer. Without it there are no beeps.
	BuzzerOutput *int
	// SounderOutput drives the external siren.
	SounderOutput *int
	// StrobeOutput drives the strobe light.
	StrobeOutput *int

	// ArmDelay is the grace period between arming and monitoring.
	ArmDelay time.Duration
	// AlarmDelay is the grace period between a violation and the siren.
	AlarmDelay time.Duration
	// AlarmDuration is how long the siren sounds before auto-rearm.
	AlarmDuration time.Duration

	// NormallyClosedInputs are violated when open instead of when grounded.
	NormallyClosedInputs []int
	// IgnoredInputs is the default set of inputs that never trigger.
	IgnoredInputs []int
}

var (
	errNoLogger = errors.New("alarm: logger is required")
	errNoPort   = errors.New("alarm: hardware port is required")
)

// Controller is the alarm facade. It owns the input tracker, the beep
// scheduler, and the armed session, and serializes arm/disarm requests.
type Controller struct {
	log  *zap.SugaredLogger
	port hw.Port

	tracker *Tracker
	beeper  *Beeper // nil when no buzzer is configured

	armedOutput   *int
	activeOutput  *int
	sounderOutput *int
	strobeOutput  *int

	armDelay      time.Duration
	alarmDelay    time.Duration
	alarmDuration time.Duration

	// tick is the supervisor polling resolution; compressed in tests.
	tick time.Duration
	// now is the clock; replaced in tests.
	now func() time.Time
	// Output test pulse lengths; compressed in tests.
	sounderTestDur time.Duration
	strobeTestDur  time.Duration
	buzzerTestDur  time.Duration

	// mu serializes arm/disarm so at most one session ever runs.
	mu      sync.Mutex
	session *session

	// armed and sounding may be read from any goroutine. sounding is only
	// written by the session (and by Close forcing outputs low).
	armed    atomic.Bool
	sounding atomic.Bool

	// faults receives the first unrecoverable hardware error; the daemon
	// treats it as fatal.
	faults chan error

	closeOnce sync.Once
	closeErr  error
}

// New initializes the controller: seeds input state from the port, registers
// the transition handler, starts the beep worker, and auto-arms if the arm
// switch is already in its armed position. Construction failures are fatal;
// no background work survives a non-nil error.
func New(opts Options) (*Controller, error) {
	if opts.Logger == nil {
		return nil, errNoLogger
	}
	if opts.Port == nil {
		return nil, errNoPort
	}

	opts.Logger.Debug("Alarm initialization starting...")

	c := &Controller{
		log:            opts.Logger,
		port:           opts.Port,
		armedOutput:    opts.ArmedOutput,
		activeOutput:   opts.ActiveOutput,
		sounderOutput:  opts.SounderOutput,
		strobeOutput:   opts.StrobeOutput,
		armDelay:       opts.ArmDelay,
		alarmDelay:     opts.AlarmDelay,
		alarmDuration:  opts.AlarmDuration,
		tick:           checkInterval,
		now:            time.Now,
		sounderTestDur: sounderTestDuration,
		strobeTestDur:  strobeTestDuration,
		buzzerTestDur:  buzzerTestDuration,
		faults:         make(chan error, 1),
	}

	c.tracker = NewTracker(opts.Logger, opts.NormallyClosedInputs, opts.IgnoredInputs, opts.ArmInput, c.onArmSwitch)

	if err := c.tracker.Seed(c.port); err != nil {
		return nil, err
	}
	c.port.OnTransition(c.tracker.ReportTransition)

	if opts.BuzzerOutput != nil {
		c.beeper = NewBeeper(opts.Logger, c.port, *opts.BuzzerOutput)
		c.beeper.Start()
	}

	if opts.ArmInput != nil {
		high, err := c.port.ReadInput(*opts.ArmInput)
		if err != nil {
			if c.beeper != nil {
				c.beeper.Stop()
			}
			return nil, fmt.Errorf("read arm input: %w", err)
		}
		if high != c.tracker.isNormallyClosed(*opts.ArmInput) {
			c.log.Warn("AUTO-ARMING on initialization from arm input pin state...")
			c.Arm(nil)
		}
	}

	c.beep(SeqInit, false)
	c.log.Info("Alarm initialized.")
	return c, nil
}

// onArmSwitch reacts to the external arm switch: violated means arm.
func (c *Controller) onArmSwitch(violated bool) {
	if violated {
		c.Arm(nil)
	} else {
		c.Disarm()
	}
}

// Arm allows input violations to trigger the alarm, after the arming grace
// period. Already armed is a logged no-op. The optional ignoredInputs
// override replaces the active ignore set until disarm restores the default.
func (c *Controller) Arm(ignoredInputs []int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.armed.Load() {
		c.log.Debug("The alarm is already armed, skipping.")
		return
	}

	c.beep(SeqAccept, false)

	if ignoredInputs != nil {
		c.tracker.SetIgnoredOverride(ignoredInputs)
	}

	c.armed.Store(true)
	c.session = &session{
		c:    c,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go c.session.run()
}

// Disarm stops the alarm (if sounding) and ends the armed session. It blocks
// until the session has fully exited, so the outputs are guaranteed reset
// when it returns. Already disarmed is a logged no-op.
func (c *Controller) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.armed.Load() {
		c.log.Debug("The alarm is already disarmed, skipping.")
		return
	}

	c.beep(SeqAccept, false)

	close(c.session.stop)
	<-c.session.done
	c.session = nil
}

// Armed reports whether an unsealed input can trigger the alarm.
func (c *Controller) Armed() bool {
	return c.armed.Load()
}

// Active reports whether the alarm is currently sounding.
func (c *Controller) Active() bool {
	return c.armed.Load() && c.sounding.Load()
}

// UnsealedInputs returns a sorted snapshot of currently unsealed inputs.
func (c *Controller) UnsealedInputs() []int {
	return c.tracker.Unsealed()
}

// SetVirtualInput sets the state of the virtual (software) input pin,
// triggering the alarm if armed.
func (c *Controller) SetVirtualInput(closed bool) {
	c.tracker.SetVirtualInput(closed)
}

// Beep plays a feedback sequence on the panel buzzer. With force false any
// not-yet-started sequences are discarded in favor of this one. A no-op
// when no buzzer is configured.
func (c *Controller) Beep(seq Sequence, force bool) {
	c.beep(seq, force)
}

func (c *Controller) beep(seq Sequence, force bool) {
	if c.beeper == nil {
		return
	}
	c.beeper.Enqueue(seq, force)
}

// Faults delivers the first unrecoverable hardware error encountered by the
// running session. The channel never closes; a fault is equivalent to a
// forced disarm and should end the process after Close.
func (c *Controller) Faults() <-chan error {
	return c.faults
}

// SounderTest pulses the external siren to confirm its operation.
// Refused (logged, not an error) while armed or without a sounder.
func (c *Controller) SounderTest() {
	c.outputTest("sounder", c.sounderOutput, c.sounderTestDur)
}

// StrobeTest pulses the strobe light to confirm its operation.
func (c *Controller) StrobeTest() {
	c.outputTest("strobe", c.strobeOutput, c.strobeTestDur)
}

// BuzzerTest pulses the panel buzzer to confirm its operation. Unlike Beep
// this drives the output directly, bypassing the scheduler.
func (c *Controller) BuzzerTest() {
	var pin *int
	if c.beeper != nil {
		pin = &c.beeper.pin
	}
	c.outputTest("buzzer", pin, c.buzzerTestDur)
}

func (c *Controller) outputTest(name string, pin *int, d time.Duration) {
	if c.armed.Load() {
		c.log.Infof("Alarm is armed, skipping %s test.", name)
		return
	}
	if pin == nil {
		c.log.Infof("No %s attached, skipping %s test.", name, name)
		return
	}
	if err := c.port.Pulse(*pin, d); err != nil {
		c.fail(fmt.Errorf("%s test: %w", name, err))
	}
}

// setAlarmOutputs activates or deactivates the alarm's main outputs (status
// line, siren, strobe). The sounding flag only flips after every write
// succeeded, so a failed actuator never leaves the controller claiming a
// state the hardware is not in.
func (c *Controller) setAlarmOutputs(enabled bool) error {
	c.log.Debugf("Sounding alarm: %t", enabled)

	for _, pin := range []*int{c.activeOutput, c.sounderOutput, c.strobeOutput} {
		if pin == nil {
			continue
		}
		if err := c.port.WriteOutput(*pin, enabled); err != nil {
			return fmt.Errorf("set alarm outputs: %w", err)
		}
	}

	c.sounding.Store(enabled)
	return nil
}

// fail records an unrecoverable hardware error. Only the first is kept.
func (c *Controller) fail(err error) {
	c.log.Errorf("Hardware fault: %v", err)
	select {
	case c.faults <- err:
	default:
	}
}

// Close is the idempotent teardown: disarm if armed, stop the beep worker,
// force all outputs low, and release the port. Safe to call from a signal
// path; every exit path must go through it.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		if c.armed.Load() {
			c.Disarm()
		}
		if c.beeper != nil {
			c.beeper.Stop()
		}
		c.sounding.Store(false)

		if err := c.port.AllOutputsLow(); err != nil {
			c.closeErr = err
		}
		// Allow the outputs to settle on low.
		time.Sleep(10 * time.Millisecond)

		if err := c.port.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}
