//go:build linux

package gpio

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// RealPins drives one GPIO line per channel using the Linux GPIO character device.
type RealPins struct {
	chip    *gpiocdev.Chip
	offsets []int
	lines   []*gpiocdev.Line
}

// NewRealPins opens the chip. Lines are requested by Setup, one per channel,
// in the order of offsets.
func NewRealPins(chipName string, offsets []int) (*RealPins, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, errors.Wrapf(err, "open gpio chip %s", chipName)
	}
	return &RealPins{chip: chip, offsets: offsets}, nil
}

// Setup requests the first channels lines as outputs, initially low.
func (p *RealPins) Setup(channels int) error {
	if channels > len(p.offsets) {
		return errors.Errorf("%d channels configured but only %d pins", channels, len(p.offsets))
	}
	p.releaseLines()
	for i := 0; i < channels; i++ {
		line, err := p.chip.RequestLine(p.offsets[i], gpiocdev.AsOutput(0))
		if err != nil {
			p.releaseLines()
			return errors.Wrapf(err, "request channel %d pin %d", i, p.offsets[i])
		}
		p.lines = append(p.lines, line)
	}
	return nil
}

// Commit sets the channel's pin.
func (p *RealPins) Commit(channel int, on bool) error {
	if channel < 0 || channel >= len(p.lines) {
		return nil
	}
	if err := p.lines[channel].SetValue(level(on)); err != nil {
		return errors.Wrapf(err, "write channel %d", channel)
	}
	return nil
}

// Close drives every line low, then releases lines and chip.
func (p *RealPins) Close() error {
	var errs []error

	for i, line := range p.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, errors.Wrapf(err, "reset channel %d", i))
		}
	}
	errs = append(errs, p.releaseLines()...)
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close chip"))
		}
		p.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (p *RealPins) releaseLines() []error {
	var errs []error
	for i, line := range p.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "close channel %d", i))
		}
	}
	p.lines = nil
	return errs
}

// RealChain drives a shift-register chain through three GPIO lines.
type RealChain struct {
	*ShiftRegister

	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// NewRealChain opens the chip and requests the data, clock and latch lines
// as outputs, initially low.
func NewRealChain(chipName string, data, clock, latch, registers int) (*RealChain, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, errors.Wrapf(err, "open gpio chip %s", chipName)
	}

	c := &RealChain{chip: chip}
	for _, l := range []struct {
		name   string
		offset int
	}{{"data", data}, {"clock", clock}, {"latch", latch}} {
		line, err := chip.RequestLine(l.offset, gpiocdev.AsOutput(0))
		if err != nil {
			c.Close()
			return nil, errors.Wrapf(err, "request %s pin %d", l.name, l.offset)
		}
		c.lines = append(c.lines, line)
	}
	c.ShiftRegister = NewShiftRegister(registers, c.lines[0], c.lines[1], c.lines[2])
	return c, nil
}

// Close latches all-low into the chain, then releases lines and chip.
func (c *RealChain) Close() error {
	var errs []error

	if c.ShiftRegister != nil {
		if err := c.ShiftRegister.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "clear chain"))
		}
	}
	for _, line := range c.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close line"))
		}
	}
	c.lines = nil
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close chip"))
		}
		c.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
