// Package gpio provides trigger output backends with hardware abstraction.
// The real implementations use the Linux GPIO character device.
// The fake implementations record writes for testing without hardware.
package gpio

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"

// Backend is the common part of every output backend.
type Backend interface {
	// Setup prepares outputs for the given number of channels.
	// All outputs are driven low.
	Setup(channels int) error

	// Close drives all outputs low and releases hardware resources.
	Close() error
}

// Pins is the direct-pin backend: one output line per channel.
type Pins interface {
	Backend

	// Commit writes a single channel's state to its pin immediately.
	Commit(channel int, on bool) error
}

// Chain is the shift-register backend: many channels multiplexed over a
// chain of serial-in/parallel-out registers driven by three lines.
type Chain interface {
	Backend

	// Stage sets a channel's bit in the in-memory output buffer.
	// Out-of-range channels are ignored.
	Stage(channel int, on bool)

	// Flush shifts the whole buffer out and latches it.
	Flush() error
}

// Line is a single output line.
type Line interface {
	SetValue(value int) error
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}
