// Package keys turns changes of the cooked matrix into key events.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package keys

import "time"

// EventType represents a key transition.
type EventType string

const (
	EventKeyDown EventType = "KEY_DOWN"
	EventKeyUp   EventType = "KEY_UP"
)

// Event represents a key transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Row       int
	Col       int
	// Held is the number of keys down after this event.
	Held int
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Down int
	Up   int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
