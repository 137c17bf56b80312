// Package timer provides the periodic tick source that drives the trigger
// scheduler. Frequencies are limited to what an 8-bit compare register
// behind a 16 MHz clock and a /1024 prescaler can produce.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	// BaseHz is the prescaled clock: 16 MHz / 1024.
	BaseHz = 15625

	// MinHz and MaxHz bound the achievable tick frequency.
	MinHz = BaseHz/255 + 1
	MaxHz = BaseHz

	// PracticalMaxHz is the frequency above which a full channel sweep is
	// likely to overrun the tick period.
	PracticalMaxHz = 4000
)

// Divider returns the compare value for freqHz and the frequency it
// actually produces.
func Divider(freqHz int) (uint8, float64, error) {
	if freqHz <= 0 {
		return 0, 0, errors.Errorf("frequency must be positive, got %d", freqHz)
	}
	d := BaseHz / freqHz
	if d < 1 || d > 255 {
		return 0, 0, errors.Errorf("frequency %d Hz not achievable (range %d-%d Hz)", freqHz, MinHz, MaxHz)
	}
	return uint8(d), float64(BaseHz) / float64(d), nil
}

// Stats are cumulative counters of a Periodic.
type Stats struct {
	Ticks    uint64
	Overruns uint64
	// MaxTick is the longest tick callback seen.
	MaxTick time.Duration
}

// Periodic calls a tick function at a fixed frequency.
type Periodic struct {
	divider uint8
	hz      float64
	period  time.Duration

	// newTicker is replaced in tests.
	newTicker func(d time.Duration) (<-chan time.Time, func())
	now       func() time.Time

	mu    sync.Mutex
	stats Stats
}

// New creates a Periodic for freqHz.
func New(freqHz int) (*Periodic, error) {
	d, hz, err := Divider(freqHz)
	if err != nil {
		return nil, err
	}
	return &Periodic{
		divider: d,
		hz:      hz,
		period:  time.Duration(float64(time.Second) / hz),
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
		now: time.Now,
	}, nil
}

// Hz returns the achieved tick frequency.
func (p *Periodic) Hz() float64 { return p.hz }

// Period returns the tick period.
func (p *Periodic) Period() time.Duration { return p.period }

// Divider returns the compare value in use.
func (p *Periodic) Divider() uint8 { return p.divider }

// Run calls tick once per period from a single goroutine until ctx is done.
// Periods missed while tick was running are dropped, not queued.
func (p *Periodic) Run(ctx context.Context, tick func()) error {
	c, stop := p.newTicker(p.period)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c:
			start := p.now()
			tick()
			p.record(p.now().Sub(start))
		}
	}
}

func (p *Periodic) record(elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Ticks++
	if elapsed > p.period {
		p.stats.Overruns++
	}
	if elapsed > p.stats.MaxTick {
		p.stats.MaxTick = elapsed
	}
}

// Stats returns a copy of the counters.
func (p *Periodic) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
