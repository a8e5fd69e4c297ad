//go:build linux

package hw

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Default BCM line offsets for the logical pin space. These suit a Pi HAT
// with 8 opto-isolated inputs and 8 open-drain outputs; installations with
// different wiring override them in the configuration.
var (
	DefaultInputOffsets  = []int{5, 6, 12, 13, 16, 19, 20, 21}
	DefaultOutputOffsets = []int{4, 17, 18, 22, 23, 24, 25, 27}
)

// RealPort drives actual hardware through the Linux GPIO character device.
//
// Inputs are requested with pull-ups, so an open contact reads electrically
// high and a contact closed to ground reads low. The logical level exposed by
// the Port interface is the inversion: true = closed to ground (active).
type RealPort struct {
	chip    *gpiocdev.Chip
	inputs  []*gpiocdev.Line
	outputs []*gpiocdev.Line

	// pinForOffset maps a GPIO line offset back to its logical input pin.
	pinForOffset map[int]int

	handler TransitionHandler
}

// NewRealPort opens the GPIO chip and claims all input and output lines.
// The offsets slices map logical pins 0..NumHardwarePins-1 onto BCM lines;
// nil selects the defaults.
func NewRealPort(chipName string, inputOffsets, outputOffsets []int) (*RealPort, error) {
	if chipName == "" {
		chipName = "gpiochip0"
	}
	if inputOffsets == nil {
		inputOffsets = DefaultInputOffsets
	}
	if outputOffsets == nil {
		outputOffsets = DefaultOutputOffsets
	}
	if len(inputOffsets) != NumHardwarePins || len(outputOffsets) != NumHardwarePins {
		return nil, fmt.Errorf("need %d input and output offsets", NumHardwarePins)
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	p := &RealPort{
		chip:         chip,
		pinForOffset: make(map[int]int, NumHardwarePins),
	}

	for pin, offset := range inputOffsets {
		p.pinForOffset[offset] = pin
		line, err := chip.RequestLine(offset,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(p.handleEvent))
		if err != nil {
			p.release()
			return nil, fmt.Errorf("request input pin %d (line %d): %w", pin, offset, err)
		}
		p.inputs = append(p.inputs, line)
	}

	for pin, offset := range outputOffsets {
		// Start inactive (electrically high, contact open).
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(1))
		if err != nil {
			p.release()
			return nil, fmt.Errorf("request output pin %d (line %d): %w", pin, offset, err)
		}
		p.outputs = append(p.outputs, line)
	}

	return p, nil
}

// handleEvent translates a kernel edge event into a logical transition.
// Runs on the gpiocdev event goroutine, asynchronously to everything else.
func (p *RealPort) handleEvent(evt gpiocdev.LineEvent) {
	h := p.handler
	if h == nil {
		return
	}
	pin, ok := p.pinForOffset[evt.Offset]
	if !ok {
		return
	}
	// Electrical falling edge = contact closing to ground = logical high.
	h(pin, evt.Type == gpiocdev.LineEventFallingEdge)
}

// ReadInput returns the logical level of an input pin.
func (p *RealPort) ReadInput(pin int) (bool, error) {
	if pin < 0 || pin >= len(p.inputs) {
		return false, fmt.Errorf("read input: pin %d out of range", pin)
	}
	raw, err := p.inputs[pin].Value()
	if err != nil {
		return false, fmt.Errorf("read input pin %d: %w", pin, err)
	}
	return raw == 0, nil
}

// WriteOutput sets the output pin: true activates (drives the line low).
func (p *RealPort) WriteOutput(pin int, high bool) error {
	if pin < 0 || pin >= len(p.outputs) {
		return fmt.Errorf("write output: pin %d out of range", pin)
	}
	v := 1
	if high {
		v = 0
	}
	if err := p.outputs[pin].SetValue(v); err != nil {
		return fmt.Errorf("write output pin %d: %w", pin, err)
	}
	return nil
}

// Pulse activates an output for the given duration, synchronously.
func (p *RealPort) Pulse(pin int, d time.Duration) error {
	if err := p.WriteOutput(pin, true); err != nil {
		return err
	}
	time.Sleep(d)
	return p.WriteOutput(pin, false)
}

// OnTransition registers the handler for input edge events.
func (p *RealPort) OnTransition(h TransitionHandler) {
	p.handler = h
}

// AllOutputsLow forces every output inactive.
func (p *RealPort) AllOutputsLow() error {
	for pin := range p.outputs {
		if err := p.WriteOutput(pin, false); err != nil {
			return err
		}
	}
	return nil
}

// Close releases all lines and the chip. Edge reporting stops with the lines.
func (p *RealPort) Close() error {
	p.handler = nil
	return p.release()
}

func (p *RealPort) release() error {
	var errs []error
	for _, line := range p.inputs {
		if err := line.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, line := range p.outputs {
		if err := line.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.inputs, p.outputs = nil, nil
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, err)
		}
		p.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
