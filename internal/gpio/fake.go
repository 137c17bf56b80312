package gpio

import "errors"

// Commit is a single recorded pin write.
type Commit struct {
	Channel int
	On      bool
}

// FakePins is a test double that records pin writes.
// Not safe for concurrent use.
type FakePins struct {
	// Commits contains every Commit call in order.
	Commits []Commit

	// State holds the current level of each pin.
	State []bool

	// SetupCalls counts calls to Setup.
	SetupCalls int

	// Closed tracks if Close was called.
	Closed bool

	// SetupError, if set, will be returned by Setup.
	SetupError error

	// CommitError, if set, will be returned by Commit (the write is still recorded).
	CommitError error
}

// NewFakePins creates an empty FakePins.
func NewFakePins() *FakePins {
	return &FakePins{}
}

// Setup sizes State and drives every pin low.
func (f *FakePins) Setup(channels int) error {
	f.SetupCalls++
	if f.SetupError != nil {
		return f.SetupError
	}
	f.State = make([]bool, channels)
	return nil
}

// Commit records the write.
func (f *FakePins) Commit(channel int, on bool) error {
	if channel < 0 || channel >= len(f.State) {
		return errors.New("channel out of range")
	}
	f.Commits = append(f.Commits, Commit{Channel: channel, On: on})
	f.State[channel] = on
	return f.CommitError
}

// Close drives every pin low and marks the backend closed.
func (f *FakePins) Close() error {
	for i := range f.State {
		f.State[i] = false
	}
	f.Closed = true
	return nil
}

// FakeChain is a test double for a shift-register chain. Each Flush
// records a copy of the staged buffer as a frame.
// Not safe for concurrent use.
type FakeChain struct {
	// Staged is the in-memory buffer, one entry per channel.
	Staged []bool

	// Frames holds the buffer contents at each Flush.
	Frames [][]bool

	// StageCalls counts calls to Stage.
	StageCalls int

	// SetupCalls counts calls to Setup.
	SetupCalls int

	// Closed tracks if Close was called.
	Closed bool

	// FlushError, if set, will be returned by Flush (the frame is still recorded).
	FlushError error
}

// NewFakeChain creates an empty FakeChain.
func NewFakeChain() *FakeChain {
	return &FakeChain{}
}

// Setup sizes the buffer and flushes it all-low.
func (f *FakeChain) Setup(channels int) error {
	f.SetupCalls++
	f.Staged = make([]bool, channels)
	return f.Flush()
}

// Stage records the channel bit.
func (f *FakeChain) Stage(channel int, on bool) {
	f.StageCalls++
	if channel < 0 || channel >= len(f.Staged) {
		return
	}
	f.Staged[channel] = on
}

// Flush records a frame.
func (f *FakeChain) Flush() error {
	frame := make([]bool, len(f.Staged))
	copy(frame, f.Staged)
	f.Frames = append(f.Frames, frame)
	return f.FlushError
}

// Close clears the buffer, flushes it and marks the chain closed.
func (f *FakeChain) Close() error {
	for i := range f.Staged {
		f.Staged[i] = false
	}
	f.Closed = true
	return f.Flush()
}

// FakeLine records every value written to it.
type FakeLine struct {
	Values []int

	// Err, if set, will be returned by SetValue (the value is not recorded).
	Err error
}

// SetValue records the value.
func (l *FakeLine) SetValue(value int) error {
	if l.Err != nil {
		return l.Err
	}
	l.Values = append(l.Values, value)
	return nil
}

// Rising counts 0->1 transitions.
func (l *FakeLine) Rising() int {
	n := 0
	prev := 0
	for _, v := range l.Values {
		if prev == 0 && v == 1 {
			n++
		}
		prev = v
	}
	return n
}
