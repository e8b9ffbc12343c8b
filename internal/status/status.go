// Package status provides a thread-safe status tracker for the keymatrix daemon.
// It is designed to be read by HTTP handlers while the scan loop writes it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/keymatrix/internal/debounce"
	"github.com/sweeney/keymatrix/internal/keys"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	ScanUs        int64
	TickUs        int64
	Algorithm     string
	InitialDelay  int
	LockoutPeriod int
	HeartbeatMs   int64
	Broker        string
	HTTPPort      string
	WSBroker      string // Websocket broker URL for browser MQTT (empty = disabled)
	Rows          int
	Cols          int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; Cooked is never written after it is handed out.
type Snapshot struct {
	Cooked        []debounce.Row
	Held          int
	Pending       int
	Counts        keys.EventCounts
	ScanErrors    int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
// The cooked matrix starts with every key up.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Cooked:    make([]debounce.Row, cfg.Rows),
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores a copy of the cooked matrix along with key and counter state.
// Called from the run loop whenever the cooked matrix changes.
func (t *Tracker) Update(cooked []debounce.Row, held, pending int, counts keys.EventCounts) {
	m := make([]debounce.Row, len(cooked))
	copy(m, cooked)

	t.mu.Lock()
	t.snap.Cooked = m
	t.snap.Held = held
	t.snap.Pending = pending
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetPending records the number of running debounce timers.
func (t *Tracker) SetPending(pending int) {
	t.mu.Lock()
	t.snap.Pending = pending
	t.mu.Unlock()
}

// RecordScanError counts a failed matrix scan.
func (t *Tracker) RecordScanError() {
	t.mu.Lock()
	t.snap.ScanErrors++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
