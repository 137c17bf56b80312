//go:build !linux

package gpio

import "github.com/pkg/errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealPins is not available on non-Linux platforms.
type RealPins struct{}

// NewRealPins returns an error on non-Linux platforms.
func NewRealPins(chipName string, offsets []int) (*RealPins, error) {
	return nil, errUnsupported
}

// Setup is not implemented on non-Linux platforms.
func (p *RealPins) Setup(channels int) error { return errUnsupported }

// Commit is not implemented on non-Linux platforms.
func (p *RealPins) Commit(channel int, on bool) error { return errUnsupported }

// Close is not implemented on non-Linux platforms.
func (p *RealPins) Close() error { return nil }

// RealChain is not available on non-Linux platforms.
type RealChain struct {
	*ShiftRegister
}

// NewRealChain returns an error on non-Linux platforms.
func NewRealChain(chipName string, data, clock, latch, registers int) (*RealChain, error) {
	return nil, errUnsupported
}
