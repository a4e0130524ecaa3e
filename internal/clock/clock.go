// Package clock provides the monotonic millisecond time source that the
// engine's tick scheduling, timers and BLINK read each cycle. The engine
// takes those timestamps from this interface rather than time.Now() (it
// uses time.Now() only to measure execution time for its statistics), so a
// deterministic Fake clock can drive tests the way the teacher's systemTimer device lets a
// virtual clock be armed and fired independently of wall time.
package clock

import "time"

// Clock reports a monotonically non-decreasing millisecond counter. Callers
// must treat the result as wrap-safe: compute elapsed time with unsigned
// subtraction (now - start), never with a signed comparison, since the
// counter wraps at 2^32 milliseconds (about 49.7 days).
type Clock interface {
	NowMs() uint32
}

// Monotonic wraps the process's monotonic clock, truncated to milliseconds
// and masked into a uint32 to match the data model's wrap-safe NowMs type.
type Monotonic struct {
	start time.Time
}

// NewMonotonic returns a Clock anchored to the current instant; NowMs()
// reports milliseconds elapsed since that instant, wrapping at 2^32.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

func (m *Monotonic) NowMs() uint32 {
	return uint32(time.Since(m.start).Milliseconds())
}

// Fake is an injectable clock for deterministic tests: Advance moves it
// forward explicitly instead of tracking wall time.
type Fake struct {
	ms uint32
}

// NewFake returns a Fake clock starting at the given millisecond value.
func NewFake(startMs uint32) *Fake {
	return &Fake{ms: startMs}
}

func (f *Fake) NowMs() uint32 { return f.ms }

// Advance moves the fake clock forward by deltaMs, wrapping per the uint32
// counter's normal overflow behaviour.
func (f *Fake) Advance(deltaMs uint32) {
	f.ms += deltaMs
}

// Set pins the fake clock to an exact value, used to exercise the wrap
// boundary directly.
func (f *Fake) Set(ms uint32) {
	f.ms = ms
}
