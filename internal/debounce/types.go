// Package debounce turns the raw key matrix produced by each scan into a
// cooked matrix that is free of contact bounce.
// This package has NO external dependencies (no GPIO, MQTT or OS access).
// Time comes in through a timer.Source, so every path is testable.
package debounce

import (
	"errors"
	"fmt"
)

// Row is one bit-packed matrix row: bit c holds column c, set = pressed.
type Row uint32

// MatrixCols is the number of columns a Row can hold.
const MatrixCols = 32

// MaxRows is the largest row count an engine accepts.
const MaxRows = 255

// Default delays, in ticks.
const (
	DefaultInitialDelay  = 5
	DefaultLockoutPeriod = 12
)

// maxCounterTime is the largest value a 7-bit counter can hold.
const maxCounterTime = 127

// Fails to compile if the default delays overflow the counter.
const _ uint = maxCounterTime - (DefaultInitialDelay + DefaultLockoutPeriod)

var (
	// ErrRows is returned for a row count outside [1, MaxRows].
	ErrRows = errors.New("debounce: invalid row count")

	// ErrConfig is returned for delays the counters cannot represent.
	ErrConfig = errors.New("debounce: invalid config")

	// ErrAlgorithm is returned for an unknown algorithm name.
	ErrAlgorithm = errors.New("debounce: unknown algorithm")
)

// Config holds the two phases of the asymmetric delay.
type Config struct {
	// InitialDelay is the number of ticks after a transition is seen before
	// the raw value may be copied to the cooked matrix.
	InitialDelay uint8

	// LockoutPeriod is the number of ticks, following the initial delay,
	// during which the copy happens and the key cannot be re-armed.
	LockoutPeriod uint8
}

// DefaultConfig returns the default delays.
func DefaultConfig() Config {
	return Config{
		InitialDelay:  DefaultInitialDelay,
		LockoutPeriod: DefaultLockoutPeriod,
	}
}

// TotalDelay is the number of ticks a counter runs after arming.
func (c Config) TotalDelay() int {
	return int(c.InitialDelay) + int(c.LockoutPeriod)
}

// Validate checks the delays against the counter width.
func (c Config) Validate() error {
	if c.TotalDelay() > maxCounterTime {
		return fmt.Errorf("%w: initial delay %d + lockout period %d exceeds %d ticks",
			ErrConfig, c.InitialDelay, c.LockoutPeriod, maxCounterTime)
	}
	// With no lockout window the copy to cooked could never happen.
	if c.TotalDelay() > 0 && c.LockoutPeriod == 0 {
		return fmt.Errorf("%w: lockout period must be at least 1 tick", ErrConfig)
	}
	return nil
}

// Filter is a debounce algorithm. Implementations are not safe for
// concurrent use; one goroutine owns a Filter for its whole life.
type Filter interface {
	// Debounce updates cooked from raw and reports whether cooked changed.
	// changed tells the filter that raw differs from cooked somewhere; it may
	// skip all work when changed is false and nothing is pending.
	// len(raw) and len(cooked) must equal the row count the filter was built for.
	Debounce(raw, cooked []Row, changed bool) bool

	// Pending returns the number of positions with a running timer.
	Pending() int

	// Close releases per-position state. Debounce must not be called afterwards.
	Close()
}

// Algorithm names a Filter implementation.
type Algorithm string

const (
	AlgoAsymDeferLockout Algorithm = "asym_defer_lockout"
	AlgoNone             Algorithm = "none"
)

func checkRows(rows int) error {
	if rows < 1 || rows > MaxRows {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrRows, rows, MaxRows)
	}
	return nil
}

func mustMatchRows(rows int, raw, cooked []Row) {
	if len(raw) != rows || len(cooked) != rows {
		panic(fmt.Sprintf("debounce: got %d raw and %d cooked rows, filter built for %d",
			len(raw), len(cooked), rows))
	}
}
