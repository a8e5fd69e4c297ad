// Package alarm contains the concurrent alarm-controller core: the input
// tracker fed by hardware transitions, the beep scheduler, the timed arming
// supervisor, and the controller facade that owns them.
//
// Time-sensitive logic never constructs its own hardware: the port and the
// clock are injected, so every component runs against the fake port in tests.
package alarm

import "time"

// checkInterval is the resolution for responding to input violations.
// Violations shorter than this are invisible, which also suppresses
// contact-bounce glitches.
const checkInterval = 150 * time.Millisecond

// beepSequenceQuiet is the pause after each beep sequence, preventing
// back-to-back sequences from being indistinguishable.
const beepSequenceQuiet = 1 * time.Second

// Pre-defined beep timings.
const (
	shortBeepDuration = 50 * time.Millisecond
	shortBeepInterval = 100 * time.Millisecond
	longBeepDuration  = 150 * time.Millisecond
	longBeepInterval  = 250 * time.Millisecond
)

// Output test durations.
const (
	sounderTestDuration = 2 * time.Second
	strobeTestDuration  = 3 * time.Second
	buzzerTestDuration  = 2 * time.Second
)

// Sequence describes a feedback beep pattern: the buzzer is driven on for
// Duration, Times times, with Interval between repeats. Immutable once
// enqueued.
type Sequence struct {
	Times    int
	Duration time.Duration
	Interval time.Duration
}

// The feedback vocabulary. Each user-visible event has its own rhythm so the
// panel is usable without looking at it.
var (
	// SeqInit signals the controller finished initializing.
	SeqInit = Sequence{Times: 2, Duration: shortBeepDuration, Interval: shortBeepInterval}
	// SeqTimer ticks once per second while a grace period runs.
	SeqTimer = Sequence{Times: 1, Duration: shortBeepDuration, Interval: shortBeepInterval}
	// SeqError signals a refused or failed operation.
	SeqError = Sequence{Times: 5, Duration: shortBeepDuration * 3 / 4, Interval: shortBeepInterval * 3 / 4}
	// SeqArmed confirms the grace period expired and monitoring started.
	SeqArmed = Sequence{Times: 3, Duration: longBeepDuration, Interval: longBeepInterval}
	// SeqAccept confirms an arm or disarm request was taken.
	SeqAccept = Sequence{Times: 2, Duration: longBeepDuration, Interval: shortBeepInterval}
	// SeqAlarm marks each second the alarm is sounding.
	SeqAlarm = Sequence{Times: 1, Duration: longBeepDuration * 2, Interval: shortBeepInterval}
)
