package hw

import (
	"fmt"
	"sync"
	"time"
)

// OutputWrite records a single output level change on the fake port.
type OutputWrite struct {
	Pin  int
	High bool
	At   time.Time
}

// FakePort is a test double that keeps pin levels in memory and records
// every output write. Input transitions are injected with SetInput, which
// invokes the registered handler on the caller's goroutine; tests that need
// interrupt-like asynchrony call SetInput from their own goroutines.
type FakePort struct {
	mu      sync.Mutex
	inputs  [NumHardwarePins]bool
	outputs [NumHardwarePins]bool
	writes  []OutputWrite
	handler TransitionHandler

	// Closed tracks whether Close was called.
	Closed bool

	// ReadError, if set, is returned by ReadInput.
	ReadError error

	// WriteError, if set, is returned by WriteOutput.
	WriteError error
}

// NewFakePort creates a FakePort with all inputs open and outputs low.
func NewFakePort() *FakePort {
	return &FakePort{}
}

// SetInput changes an input level and reports the transition, like an edge
// interrupt would. Setting the same level twice reports it twice; real
// hardware does not do that, but the tracker must cope.
func (f *FakePort) SetInput(pin int, high bool) {
	f.mu.Lock()
	f.inputs[pin] = high
	h := f.handler
	f.mu.Unlock()

	if h != nil {
		h(pin, high)
	}
}

// SeedInput sets an input level without reporting a transition, for
// preparing pre-startup wiring states.
func (f *FakePort) SeedInput(pin int, high bool) {
	f.mu.Lock()
	f.inputs[pin] = high
	f.mu.Unlock()
}

// SetReadError makes subsequent ReadInput calls fail.
func (f *FakePort) SetReadError(err error) {
	f.mu.Lock()
	f.ReadError = err
	f.mu.Unlock()
}

// SetWriteError makes subsequent WriteOutput calls fail.
func (f *FakePort) SetWriteError(err error) {
	f.mu.Lock()
	f.WriteError = err
	f.mu.Unlock()
}

// ReadInput returns the current level of an input pin.
func (f *FakePort) ReadInput(pin int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return false, f.ReadError
	}
	if pin < 0 || pin >= NumHardwarePins {
		return false, fmt.Errorf("read input: pin %d out of range", pin)
	}
	return f.inputs[pin], nil
}

// WriteOutput records the write and updates the output level.
func (f *FakePort) WriteOutput(pin int, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteError != nil {
		return f.WriteError
	}
	if pin < 0 || pin >= NumHardwarePins {
		return fmt.Errorf("write output: pin %d out of range", pin)
	}
	f.outputs[pin] = high
	f.writes = append(f.writes, OutputWrite{Pin: pin, High: high, At: time.Now()})
	return nil
}

// Pulse activates an output for the given duration, synchronously.
func (f *FakePort) Pulse(pin int, d time.Duration) error {
	if err := f.WriteOutput(pin, true); err != nil {
		return err
	}
	time.Sleep(d)
	return f.WriteOutput(pin, false)
}

// OnTransition registers the handler invoked by SetInput.
func (f *FakePort) OnTransition(h TransitionHandler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

// AllOutputsLow forces every output low.
func (f *FakePort) AllOutputsLow() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for pin := range f.outputs {
		f.outputs[pin] = false
	}
	return nil
}

// Close marks the port as closed and stops reporting transitions.
func (f *FakePort) Close() error {
	f.mu.Lock()
	f.handler = nil
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Output returns the current level of an output pin.
func (f *FakePort) Output(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs[pin]
}

// Writes returns a copy of all recorded output writes.
func (f *FakePort) Writes() []OutputWrite {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]OutputWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

// WritesTo returns the recorded level changes for a single pin, in order.
func (f *FakePort) WritesTo(pin int) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []bool
	for _, w := range f.writes {
		if w.Pin == pin {
			out = append(out, w.High)
		}
	}
	return out
}
