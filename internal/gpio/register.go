package gpio

import "github.com/pkg/errors"

// ShiftRegister drives a chain of 74HC595-style registers through a data,
// clock and latch line. Channel c maps to register c/8, bit c%8.
// Not safe for concurrent use; the scheduler serializes access.
type ShiftRegister struct {
	data  Line
	clock Line
	latch Line
	buf   []byte
}

// NewShiftRegister creates a chain of the given number of 8-bit registers.
func NewShiftRegister(registers int, data, clock, latch Line) *ShiftRegister {
	if registers < 1 {
		registers = 1
	}
	return &ShiftRegister{
		data:  data,
		clock: clock,
		latch: latch,
		buf:   make([]byte, registers),
	}
}

// Setup clears the buffer and latches all-low into the chain.
func (r *ShiftRegister) Setup(channels int) error {
	if channels > len(r.buf)*8 {
		return errors.Errorf("%d channels do not fit in %d registers", channels, len(r.buf))
	}
	if err := r.clock.SetValue(0); err != nil {
		return errors.Wrap(err, "reset clock line")
	}
	if err := r.latch.SetValue(0); err != nil {
		return errors.Wrap(err, "reset latch line")
	}
	r.clear()
	return r.Flush()
}

// Stage sets or clears the channel's bit in the buffer.
func (r *ShiftRegister) Stage(channel int, on bool) {
	if channel < 0 || channel >= len(r.buf)*8 {
		return
	}
	mask := byte(1) << uint(channel%8)
	if on {
		r.buf[channel/8] |= mask
	} else {
		r.buf[channel/8] &^= mask
	}
}

// Flush shifts every register out, last register first and each byte
// MSB-first, then pulses the latch once. Register 0 ends up nearest the
// data line.
func (r *ShiftRegister) Flush() error {
	for i := len(r.buf) - 1; i >= 0; i-- {
		b := r.buf[i]
		for bit := 7; bit >= 0; bit-- {
			if err := r.data.SetValue(int(b>>uint(bit)) & 1); err != nil {
				return errors.Wrap(err, "write data line")
			}
			if err := r.pulse(r.clock); err != nil {
				return errors.Wrap(err, "pulse clock line")
			}
		}
	}
	if err := r.pulse(r.latch); err != nil {
		return errors.Wrap(err, "pulse latch line")
	}
	return nil
}

// Close latches all-low into the chain. The lines themselves are owned
// by the caller.
func (r *ShiftRegister) Close() error {
	r.clear()
	return r.Flush()
}

// Bytes returns a copy of the staged buffer.
func (r *ShiftRegister) Bytes() []byte {
	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out
}

func (r *ShiftRegister) clear() {
	for i := range r.buf {
		r.buf[i] = 0
	}
}

func (r *ShiftRegister) pulse(l Line) error {
	if err := l.SetValue(1); err != nil {
		return err
	}
	return l.SetValue(0)
}
