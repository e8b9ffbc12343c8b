package debounce

import (
	"errors"
	"fmt"

	"github.com/sweeney/keymatrix/internal/timer"
)

// idle marks a counter with no running timer.
const idle = 0

// counter is the per-position state. time counts down the remaining ticks of
// the current delay; pressed records that the raw value has been copied to
// cooked since the counter was last armed.
type counter struct {
	pressed bool
	time    uint8
}

// AsymDeferLockout defers a transition for the initial delay, copies raw to
// cooked once the lockout window opens, and keeps the position locked until
// the full delay has run out. A key is therefore reported after InitialDelay
// ticks but cannot chatter faster than TotalDelay ticks.
type AsymDeferLockout struct {
	clock      timer.Source
	lockout    uint8
	total      uint8
	rows       int
	counters   []counter
	lastTime   uint32
	needUpdate bool
}

// NewAsymDeferLockout allocates counters for rows*MatrixCols positions, all
// idle. The current tick becomes the reference for the first elapsed time.
func NewAsymDeferLockout(rows int, clock timer.Source, cfg Config) (*AsymDeferLockout, error) {
	if err := checkRows(rows); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TotalDelay() == 0 {
		return nil, fmt.Errorf("%w: asymmetric filter needs a non-zero delay", ErrConfig)
	}
	if clock == nil {
		return nil, errors.New("debounce: nil clock")
	}

	counters := make([]counter, rows*MatrixCols)
	for i := range counters {
		counters[i] = counter{pressed: true, time: idle}
	}

	return &AsymDeferLockout{
		clock:    clock,
		lockout:  cfg.LockoutPeriod,
		total:    uint8(cfg.TotalDelay()),
		rows:     rows,
		counters: counters,
		lastTime: clock.Read(),
	}, nil
}

// Debounce implements Filter.
func (d *AsymDeferLockout) Debounce(raw, cooked []Row, changed bool) bool {
	if d.counters == nil {
		panic("debounce: Debounce called after Close")
	}
	mustMatchRows(d.rows, raw, cooked)

	if !d.needUpdate && !changed {
		return false
	}

	now := d.clock.Read()
	elapsed := timer.Saturate(timer.Elapsed(now, d.lastTime))
	d.lastTime = now

	// Several calls inside one tick are processed once.
	if elapsed == 0 {
		return false
	}
	return d.update(raw, cooked, elapsed)
}

// update advances every counter by elapsed ticks, arms idle counters whose
// raw bit differs from cooked and copies raw to cooked for counters inside
// the lockout window.
func (d *AsymDeferLockout) update(raw, cooked []Row, elapsed uint8) bool {
	cookedChanged := false
	d.needUpdate = false

	i := 0
	for row := range raw {
		delta := raw[row] ^ cooked[row]
		for col := 0; col < MatrixCols; col++ {
			c := &d.counters[i]
			i++
			mask := Row(1) << col

			if c.time == idle {
				if delta&mask != 0 {
					c.pressed = false
					c.time = d.total
					d.needUpdate = true
				}
				continue
			}

			expiring := c.time <= elapsed
			if !c.pressed && (c.time <= d.lockout || expiring) {
				next := cooked[row]&^mask | raw[row]&mask
				if next != cooked[row] {
					cooked[row] = next
					c.pressed = true
					cookedChanged = true
				}
			}

			if expiring {
				c.time = idle
			} else {
				c.time -= elapsed
				d.needUpdate = true
			}
		}
	}
	return cookedChanged
}

// Pending implements Filter.
func (d *AsymDeferLockout) Pending() int {
	n := 0
	for _, c := range d.counters {
		if c.time != idle {
			n++
		}
	}
	return n
}

// Close implements Filter.
func (d *AsymDeferLockout) Close() {
	d.counters = nil
	d.needUpdate = false
}
