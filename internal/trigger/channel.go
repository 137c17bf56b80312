package trigger

const (
	// MaxChannels is the size of the channel table.
	MaxChannels = 64

	// MaxTicks is the largest configurable pre-delay or hold time.
	MaxTicks = 254

	// idle is the countdown sentinel for a channel with nothing pending.
	idle uint8 = 255
)

// channel is one entry of the channel table. countdown and on are shared
// between the tick path and callers and are only touched under Scheduler.mu.
type channel struct {
	preDelay  uint8
	holdTime  uint8
	countdown uint8
	on        bool
}

func (c *channel) busy() bool {
	return c.countdown != idle
}

func (c *channel) reset() {
	c.countdown = idle
	c.on = false
}

// holdReload is the countdown loaded at pulse start. The wrap past zero
// costs one tick, so a hold of h ticks reloads h-1; a zero hold still
// asserts for a single tick.
func holdReload(hold uint8) uint8 {
	if hold == 0 {
		return 0
	}
	return hold - 1
}

// clampTicks limits a timing value to [0, MaxTicks].
func clampTicks(ticks int) uint8 {
	if ticks < 0 {
		return 0
	}
	if ticks > MaxTicks {
		return MaxTicks
	}
	return uint8(ticks)
}

// ChannelStatus is a point-in-time view of one channel.
type ChannelStatus struct {
	PreDelay int
	HoldTime int
	On       bool
	Busy     bool
}
