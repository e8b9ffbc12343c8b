// Package timer provides the monotonic tick source used for debounce timing.
// Ticks are a free-running uint32 that is allowed to wrap; differences are
// always taken with Elapsed.
package timer

import (
	"math"
	"time"
)

// MaxElapsed is the largest elapsed tick count reported by Saturate.
const MaxElapsed = math.MaxUint8

// DefaultResolution is the duration of one tick.
const DefaultResolution = time.Millisecond

// Source reads the current tick count.
type Source interface {
	Read() uint32
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc func() uint32

// Read calls f.
func (f SourceFunc) Read() uint32 {
	return f()
}

// Elapsed returns the ticks from last to now. Unsigned subtraction makes a
// single wrap of the counter between the two reads harmless.
func Elapsed(now, last uint32) uint32 {
	return now - last
}

// Saturate clamps an elapsed tick count to MaxElapsed.
func Saturate(elapsed uint32) uint8 {
	if elapsed > MaxElapsed {
		return MaxElapsed
	}
	return uint8(elapsed)
}

// Monotonic derives ticks from the wall clock's monotonic reading.
type Monotonic struct {
	start      time.Time
	resolution time.Duration
	now        func() time.Time
}

// NewMonotonic creates a tick source counting from now in units of resolution.
// A non-positive resolution falls back to DefaultResolution.
func NewMonotonic(resolution time.Duration) *Monotonic {
	return newMonotonic(resolution, time.Now)
}

func newMonotonic(resolution time.Duration, now func() time.Time) *Monotonic {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Monotonic{
		start:      now(),
		resolution: resolution,
		now:        now,
	}
}

// Read returns the ticks since the source was created, truncated to 32 bits.
func (m *Monotonic) Read() uint32 {
	return uint32(int64(m.now().Sub(m.start) / m.resolution))
}

// Resolution returns the duration of one tick.
func (m *Monotonic) Resolution() time.Duration {
	return m.resolution
}
