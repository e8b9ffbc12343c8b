package keys

import (
	"time"

	"github.com/sweeney/keymatrix/internal/debounce"
)

// Detector remembers the last cooked matrix and reports which keys changed.
type Detector struct {
	prev          []debounce.Row
	cols          int
	held          int
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewDetector creates a detector for a rows x cols matrix with every key up.
// The startTime is used for calculating uptime in heartbeat events.
func NewDetector(rows, cols int, startTime time.Time) *Detector {
	return &Detector{
		prev:          make([]debounce.Row, rows),
		cols:          cols,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process compares cooked with the previous call and returns one event per
// changed key, row-major. Columns beyond cols are ignored.
func (d *Detector) Process(cooked []debounce.Row, now time.Time) []Event {
	var events []Event
	mask := colMask(d.cols)

	for r := range d.prev {
		next := cooked[r] & mask
		delta := d.prev[r] ^ next
		if delta == 0 {
			continue
		}
		for c := 0; c < d.cols; c++ {
			bit := debounce.Row(1) << c
			if delta&bit == 0 {
				continue
			}
			e := Event{Timestamp: now, Row: r, Col: c}
			if next&bit != 0 {
				e.Type = EventKeyDown
				d.held++
				d.eventCounts.Down++
			} else {
				e.Type = EventKeyUp
				d.held--
				d.eventCounts.Up++
			}
			e.Held = d.held
			events = append(events, e)
		}
		d.prev[r] = next
	}

	return events
}

func colMask(cols int) debounce.Row {
	if cols >= debounce.MatrixCols {
		return ^debounce.Row(0)
	}
	return debounce.Row(1)<<cols - 1
}

// Held returns the number of keys currently down.
func (d *Detector) Held() int {
	return d.held
}

// State returns a copy of the last processed matrix.
func (d *Detector) State() []debounce.Row {
	out := make([]debounce.Row, len(d.prev))
	copy(out, d.prev)
	return out
}

// EventCountsSnapshot returns the event counts since startup.
func (d *Detector) EventCountsSnapshot() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.eventCounts,
	}
}
