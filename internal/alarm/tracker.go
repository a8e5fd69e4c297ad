package alarm

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/carlosefr/pialarm/internal/hw"
)

// Tracker maintains the authoritative set of currently unsealed (violated)
// inputs. It is the single mutation point for input state: the hardware
// transition handler and the virtual input both land here, and the arming
// supervisor only ever takes snapshot reads.
//
// An input is violated when its logical level differs from its configured
// rest polarity: high XOR normally-closed.
type Tracker struct {
	log *zap.SugaredLogger

	// armInput, when set, is routed to onArmSwitch instead of the unsealed
	// set: its violations mean "arm", not "intrusion".
	armInput    *int
	onArmSwitch func(violated bool)

	mu             sync.Mutex
	unsealed       map[int]struct{}
	ignored        map[int]struct{}
	defaultIgnored map[int]struct{}
	normallyClosed map[int]struct{}
}

// NewTracker creates a tracker with the given polarity and default ignore
// configuration. onArmSwitch is invoked (outside the tracker lock) whenever
// the arm input changes; it may be nil when no arm input is configured.
func NewTracker(log *zap.SugaredLogger, normallyClosed, ignored []int, armInput *int, onArmSwitch func(violated bool)) *Tracker {
	t := &Tracker{
		log:            log,
		armInput:       armInput,
		onArmSwitch:    onArmSwitch,
		unsealed:       make(map[int]struct{}),
		ignored:        pinSet(ignored),
		defaultIgnored: pinSet(ignored),
		normallyClosed: pinSet(normallyClosed),
	}
	return t
}

// Seed polls the current level of every non-arm input once. Inputs only
// report transitions, so a sensor wired violated before startup must be
// discovered here, not on its next edge.
func (t *Tracker) Seed(port hw.Port) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for pin := 0; pin < hw.NumHardwarePins; pin++ {
		if t.armInput != nil && pin == *t.armInput {
			continue
		}
		high, err := port.ReadInput(pin)
		if err != nil {
			return fmt.Errorf("seed input state: %w", err)
		}
		if high != t.isNormallyClosedLocked(pin) {
			t.unsealed[pin] = struct{}{}
		}
	}

	if len(t.unsealed) > 0 {
		t.log.Infof("These inputs are already unsealed on initialization: %s", formatPins(sortedPins(t.unsealed)))
	}
	return nil
}

// ReportTransition reacts to a hardware input change. Runs on the port's
// event goroutine. Arm-input transitions trigger arm/disarm and never enter
// the unsealed set.
func (t *Tracker) ReportTransition(pin int, high bool) {
	violated := high != t.isNormallyClosed(pin)

	if t.armInput != nil && pin == *t.armInput {
		t.log.Debugf("Arm input pin: %s (%s)", logicState(high), restState(t.isNormallyClosed(pin)))
		if t.onArmSwitch != nil {
			t.onArmSwitch(violated)
		}
		return
	}

	t.record(fmt.Sprintf("PIN %d", pin), pin, high, violated)
}

// SetVirtualInput applies the same transition semantics to the virtual
// (software) input pin. The closed argument plays the role of the logical
// level: closed equal to normally-closed means sealed.
func (t *Tracker) SetVirtualInput(closed bool) {
	violated := closed != t.isNormallyClosed(hw.VirtualInputPin)
	t.record("VIRTUAL", hw.VirtualInputPin, closed, violated)
}

// record updates the unsealed set for one transition and logs it.
func (t *Tracker) record(label string, pin int, high, violated bool) {
	t.mu.Lock()

	rest := restState(t.isNormallyClosedLocked(pin))
	if _, ok := t.ignored[pin]; ok {
		rest += ", ignored"
	}

	wasUnsealed := len(t.unsealed) > 0
	if violated {
		t.unsealed[pin] = struct{}{}
	} else {
		delete(t.unsealed, pin)
	}
	allResealed := wasUnsealed && len(t.unsealed) == 0

	t.mu.Unlock()

	if violated {
		t.log.Infof("Input unsealed: %s (%s, %s)", label, logicState(high), rest)
	} else {
		t.log.Infof("Input sealed: %s (%s, %s)", label, logicState(high), rest)
	}
	if allResealed {
		t.log.Info("All unsealed inputs have resealed.")
	}
}

// Unsealed returns a sorted snapshot of currently unsealed inputs.
func (t *Tracker) Unsealed() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedPins(t.unsealed)
}

// HasViolation reports whether any unsealed input is not ignored.
// Called by the arming supervisor on every tick.
func (t *Tracker) HasViolation() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for pin := range t.unsealed {
		if _, ok := t.ignored[pin]; !ok {
			return true
		}
	}
	return false
}

// SetIgnoredOverride replaces the active ignore set for one armed session.
func (t *Tracker) SetIgnoredOverride(pins []int) {
	t.mu.Lock()
	t.ignored = pinSet(pins)
	t.mu.Unlock()
}

// ResetIgnored restores the default ignore set. Always called on disarm.
func (t *Tracker) ResetIgnored() {
	t.mu.Lock()
	t.ignored = make(map[int]struct{}, len(t.defaultIgnored))
	for pin := range t.defaultIgnored {
		t.ignored[pin] = struct{}{}
	}
	t.mu.Unlock()
}

// Ignored returns a sorted snapshot of the active ignore set.
func (t *Tracker) Ignored() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedPins(t.ignored)
}

func (t *Tracker) isNormallyClosed(pin int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isNormallyClosedLocked(pin)
}

func (t *Tracker) isNormallyClosedLocked(pin int) bool {
	_, ok := t.normallyClosed[pin]
	return ok
}

func pinSet(pins []int) map[int]struct{} {
	set := make(map[int]struct{}, len(pins))
	for _, pin := range pins {
		set[pin] = struct{}{}
	}
	return set
}

func sortedPins(set map[int]struct{}) []int {
	pins := make([]int, 0, len(set))
	for pin := range set {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}

func formatPins(pins []int) string {
	s := ""
	for i, pin := range pins {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d", pin)
	}
	return s
}

func logicState(high bool) string {
	if high {
		return "closed"
	}
	return "open"
}

func restState(normallyClosed bool) string {
	if normallyClosed {
		return "normally closed"
	}
	return "normally open"
}
