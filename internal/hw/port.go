// Package hw provides digital I/O with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package hw

import "time"

// The number of physical digital inputs and outputs.
const NumHardwarePins = 8

// VirtualInputPin is a reserved input number used to track software-induced
// violations. It is not backed by hardware and never crosses the Port.
const VirtualInputPin = NumHardwarePins

// TransitionHandler is invoked asynchronously whenever an input pin changes
// level. The high argument is the logical level: true means the contact is
// closed to ground (active), regardless of the electrical polarity.
type TransitionHandler func(pin int, high bool)

// Port is the digital I/O surface the alarm controller drives.
type Port interface {
	// ReadInput returns the current logical level of an input pin.
	// Used once at startup to seed input state; afterwards transitions
	// arrive through the registered handler.
	ReadInput(pin int) (bool, error)

	// WriteOutput sets an output pin: true activates the attached device.
	WriteOutput(pin int, high bool) error

	// Pulse activates an output for the given duration, synchronously.
	Pulse(pin int, d time.Duration) error

	// OnTransition registers the handler for input changes. Must be called
	// once, before any transition can occur.
	OnTransition(h TransitionHandler)

	// AllOutputsLow forces every output inactive.
	AllOutputsLow() error

	// Close releases the hardware. Outputs should be forced low first.
	Close() error
}
