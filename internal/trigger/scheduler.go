// Package trigger implements a fixed-frequency pulse scheduler.
//
// Every channel runs the same two-phase cycle once triggered: it waits a
// pre-delay, then holds its output asserted for a hold time, then returns
// to idle. Both phases are counted in ticks of a periodic source that calls
// Tick. The package performs no I/O of its own; output changes go through a
// gpio.Pins or gpio.Chain backend.
package trigger

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/sweeney/pulse-trigger/internal/gpio"
)

var (
	// ErrAlreadyConfigured is returned by a second call to Configure.
	ErrAlreadyConfigured = errors.New("scheduler already configured")

	// ErrNotConfigured is returned by Run before Configure succeeded.
	ErrNotConfigured = errors.New("scheduler not configured")
)

// Transition is emitted whenever a channel's output flips.
type Transition struct {
	Channel int
	On      bool
	Tick    uint64
}

// Stats are cumulative counters since construction.
type Stats struct {
	Ticks              uint64
	TriggersAccepted   uint64
	TriggersBusy       uint64
	TriggersInvalid    uint64
	Pulses             uint64
	OutputErrors       uint64
	DroppedTransitions uint64
}

// TickSource calls tick at a fixed frequency until ctx is done.
type TickSource interface {
	Run(ctx context.Context, tick func()) error
}

// Scheduler owns the channel table and advances it on every tick.
// All methods are safe for concurrent use.
type Scheduler struct {
	mu         sync.Mutex
	table      [MaxChannels]channel
	count      int
	configured bool

	backend gpio.Backend
	pins    gpio.Pins
	chain   gpio.Chain
	notify  chan<- Transition
	stats   Stats
}

// New creates a scheduler that commits output through out. The channel
// table starts idle and deasserted.
func New(out gpio.Backend) *Scheduler {
	s := &Scheduler{backend: out}
	switch b := out.(type) {
	case gpio.Chain:
		s.chain = b
	case gpio.Pins:
		s.pins = b
	}
	for i := range s.table {
		s.table[i].reset()
	}
	return s
}

// Notify registers a channel that receives every output transition.
// Sends never block; transitions that do not fit are dropped and counted.
// Must be called before Configure.
func (s *Scheduler) Notify(ch chan<- Transition) {
	s.mu.Lock()
	s.notify = ch
	s.mu.Unlock()
}

// Configure sets up the backend for count channels, loads the timing table
// and forces every channel off. Missing timing entries default to zero and
// entries beyond count are ignored. Timing values are clamped like the
// setters do. Configure may only succeed once.
func (s *Scheduler) Configure(count int, preDelays, holdTimes []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.configured {
		return ErrAlreadyConfigured
	}
	if s.pins == nil && s.chain == nil {
		return errors.Errorf("unsupported output backend %T", s.backend)
	}
	if count < 0 {
		count = 0
	}
	if count > MaxChannels {
		count = MaxChannels
	}
	if err := s.backend.Setup(count); err != nil {
		return errors.Wrap(err, "setup output backend")
	}

	s.count = count
	for i := 0; i < count; i++ {
		var pre, hold int
		if i < len(preDelays) {
			pre = preDelays[i]
		}
		if i < len(holdTimes) {
			hold = holdTimes[i]
		}
		s.table[i].preDelay = clampTicks(pre)
		s.table[i].holdTime = clampTicks(hold)
	}
	s.allOff()
	s.configured = true
	return nil
}

// Run arms the tick source with this scheduler's Tick and blocks until it
// returns.
func (s *Scheduler) Run(ctx context.Context, src TickSource) error {
	s.mu.Lock()
	configured := s.configured
	s.mu.Unlock()
	if !configured {
		return ErrNotConfigured
	}
	return src.Run(ctx, s.Tick)
}

// Count returns the number of configured channels.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// SetPreDelay sets the ticks between trigger and pulse start for the next
// cycle of channel. Values above MaxTicks are clamped; an unknown channel
// is ignored.
func (s *Scheduler) SetPreDelay(channel, ticks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel < 0 || channel >= s.count {
		return
	}
	s.table[channel].preDelay = clampTicks(ticks)
}

// SetHoldTime sets the ticks the pulse stays asserted for the next cycle
// of channel. Values above MaxTicks are clamped; an unknown channel is
// ignored.
func (s *Scheduler) SetHoldTime(channel, ticks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel < 0 || channel >= s.count {
		return
	}
	s.table[channel].holdTime = clampTicks(ticks)
}

// TriggerStart begins a cycle on an idle channel. It reports whether the
// trigger was accepted; unknown and busy channels are left untouched.
func (s *Scheduler) TriggerStart(channel int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channel < 0 || channel >= s.count {
		s.stats.TriggersInvalid++
		return false
	}
	c := &s.table[channel]
	if c.busy() {
		s.stats.TriggersBusy++
		return false
	}
	c.countdown = c.preDelay
	s.stats.TriggersAccepted++
	return true
}

// IsChannelOn reports whether channel's output is asserted. Unknown
// channels report false.
func (s *Scheduler) IsChannelOn(channel int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel < 0 || channel >= s.count {
		return false
	}
	return s.table[channel].on
}

// SetAllOff cancels every in-flight cycle and writes the all-off state to
// the backend before returning.
func (s *Scheduler) SetAllOff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allOff()
}

func (s *Scheduler) allOff() {
	for i := 0; i < s.count; i++ {
		s.table[i].reset()
		if s.pins != nil {
			s.commit(i, false)
		} else {
			s.chain.Stage(i, false)
		}
	}
	if s.chain != nil {
		s.flush()
	}
}

// Tick advances every channel by one tick. A shift-register chain is
// re-sent every tick whether or not anything changed, so the cost of a
// tick only depends on the channel count.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Ticks++
	for i := 0; i < s.count; i++ {
		c := &s.table[i]
		if c.busy() {
			c.countdown--
			if c.countdown == idle {
				s.toggle(i, c)
			}
		}
		if s.chain != nil {
			s.chain.Stage(i, c.on)
		}
	}
	if s.chain != nil {
		s.flush()
	}
}

// toggle ends the current phase of a channel whose countdown just wrapped.
func (s *Scheduler) toggle(i int, c *channel) {
	if !c.on {
		// End of pre-delay.
		c.countdown = holdReload(c.holdTime)
	} else {
		s.stats.Pulses++
	}
	c.on = !c.on

	if s.pins != nil {
		s.commit(i, c.on)
	}
	if s.notify != nil {
		select {
		case s.notify <- Transition{Channel: i, On: c.on, Tick: s.stats.Ticks}:
		default:
			s.stats.DroppedTransitions++
		}
	}
}

func (s *Scheduler) commit(i int, on bool) {
	if err := s.pins.Commit(i, on); err != nil {
		s.stats.OutputErrors++
	}
}

func (s *Scheduler) flush() {
	if err := s.chain.Flush(); err != nil {
		s.stats.OutputErrors++
	}
}

// Stats returns a copy of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Channels returns the status of every configured channel.
func (s *Scheduler) Channels() []ChannelStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ChannelStatus, s.count)
	for i := range out {
		c := &s.table[i]
		out[i] = ChannelStatus{
			PreDelay: int(c.preDelay),
			HoldTime: int(c.holdTime),
			On:       c.on,
			Busy:     c.busy(),
		}
	}
	return out
}
