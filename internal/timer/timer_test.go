package timer

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestDivider(t *testing.T) {
	tests := []struct {
		freq    int
		wantDiv uint8
		wantHz  float64
	}{
		{15625, 1, 15625},
		{1000, 15, 15625.0 / 15},
		{4000, 3, 15625.0 / 3},
		{62, 252, 15625.0 / 252},
	}
	for _, tt := range tests {
		d, hz, err := Divider(tt.freq)
		if err != nil {
			t.Errorf("%d Hz: unexpected error: %v", tt.freq, err)
			continue
		}
		if d != tt.wantDiv {
			t.Errorf("%d Hz: divider got %d, want %d", tt.freq, d, tt.wantDiv)
		}
		if math.Abs(hz-tt.wantHz) > 1e-9 {
			t.Errorf("%d Hz: achieved got %f, want %f", tt.freq, hz, tt.wantHz)
		}
	}
}

func TestDividerOutOfRange(t *testing.T) {
	for _, freq := range []int{0, -5, 61, 15626, 100000} {
		if _, _, err := Divider(freq); err == nil {
			t.Errorf("%d Hz: expected error", freq)
		}
	}
}

func TestBounds(t *testing.T) {
	if MinHz != 62 {
		t.Errorf("MinHz: got %d, want 62", MinHz)
	}
	if _, _, err := Divider(MinHz); err != nil {
		t.Errorf("MinHz should be achievable: %v", err)
	}
	if _, _, err := Divider(MaxHz); err != nil {
		t.Errorf("MaxHz should be achievable: %v", err)
	}
}

func TestNewPeriod(t *testing.T) {
	p, err := New(15625)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Period() != 64*time.Microsecond {
		t.Errorf("Period: got %v, want 64µs", p.Period())
	}
	if p.Divider() != 1 {
		t.Errorf("Divider: got %d, want 1", p.Divider())
	}
}

// fakeClock hands out scripted instants; each tick consumes two.
type fakeClock struct {
	times []time.Time
}

func (f *fakeClock) now() time.Time {
	t := f.times[0]
	f.times = f.times[1:]
	return t
}

func TestRunCountsTicksAndOverruns(t *testing.T) {
	p, err := New(1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ch := make(chan time.Time)
	stopped := false
	p.newTicker = func(time.Duration) (<-chan time.Time, func()) {
		return ch, func() { stopped = true }
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{times: []time.Time{
		base, base.Add(100 * time.Microsecond),
		base, base.Add(5 * time.Millisecond),
		base, base.Add(200 * time.Microsecond),
	}}
	p.now = clock.now

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error)
	go func() {
		done <- p.Run(ctx, func() { calls++ })
	}()
	for i := 0; i < 3; i++ {
		ch <- time.Time{}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
	st := p.Stats()
	if st.Ticks != 3 {
		t.Errorf("Ticks: got %d, want 3", st.Ticks)
	}
	if st.Overruns != 1 {
		t.Errorf("Overruns: got %d, want 1", st.Overruns)
	}
	if st.MaxTick != 5*time.Millisecond {
		t.Errorf("MaxTick: got %v, want 5ms", st.MaxTick)
	}
	if !stopped {
		t.Error("ticker should be stopped when Run returns")
	}
}

func TestRunRealTicker(t *testing.T) {
	p, err := New(1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err = p.Run(ctx, func() {
		if n < 5 {
			n++
		}
		if n == 5 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Errorf("calls: got %d, want 5", n)
	}
}
