//go:build !linux

package hw

import (
	"errors"
	"time"
)

// RealPort is not available on non-Linux platforms.
type RealPort struct{}

// NewRealPort returns an error on non-Linux platforms.
func NewRealPort(string, []int, []int) (*RealPort, error) {
	return nil, errors.New("hw: not supported on this platform (requires Linux)")
}

func (p *RealPort) ReadInput(int) (bool, error)    { return false, errors.New("hw: not supported") }
func (p *RealPort) WriteOutput(int, bool) error    { return errors.New("hw: not supported") }
func (p *RealPort) Pulse(int, time.Duration) error { return errors.New("hw: not supported") }
func (p *RealPort) OnTransition(TransitionHandler) {}
func (p *RealPort) AllOutputsLow() error           { return nil }
func (p *RealPort) Close() error                   { return nil }
