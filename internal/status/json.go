package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/keymatrix/internal/matrix"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Matrix        []string     `json:"matrix"`
	Pressed       []KeyJSON    `json:"pressed"`
	Held          int          `json:"held"`
	Pending       int          `json:"pending_timers"`
	ScanErrors    int          `json:"scan_errors"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// KeyJSON identifies a pressed key.
type KeyJSON struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	KeyDown int `json:"key_down"`
	KeyUp   int `json:"key_up"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ScanUs        int64  `json:"scan_us"`
	TickUs        int64  `json:"tick_us"`
	Algorithm     string `json:"algorithm"`
	InitialDelay  int    `json:"initial_delay"`
	LockoutPeriod int    `json:"lockout_period"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	Broker        string `json:"broker"`
	HTTPPort      string `json:"http_port"`
	WSBroker      string `json:"ws_broker,omitempty"`
	Rows          int    `json:"rows"`
	Cols          int    `json:"cols"`
}

func buildInner(snap Snapshot) StatusInner {
	cols := snap.Config.Cols
	rows := make([]string, len(snap.Cooked))
	for i, r := range snap.Cooked {
		rows[i] = matrix.Format(r, cols)
	}
	pressed := []KeyJSON{}
	for _, p := range matrix.Pressed(snap.Cooked, cols) {
		pressed = append(pressed, KeyJSON{Row: p.Row, Col: p.Col})
	}

	return StatusInner{
		Matrix:        rows,
		Pressed:       pressed,
		Held:          snap.Held,
		Pending:       snap.Pending,
		ScanErrors:    snap.ScanErrors,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			KeyDown: snap.Counts.Down,
			KeyUp:   snap.Counts.Up,
		},
		Config: ConfigJSON{
			ScanUs:        snap.Config.ScanUs,
			TickUs:        snap.Config.TickUs,
			Algorithm:     snap.Config.Algorithm,
			InitialDelay:  snap.Config.InitialDelay,
			LockoutPeriod: snap.Config.LockoutPeriod,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Broker:        snap.Config.Broker,
			HTTPPort:      snap.Config.HTTPPort,
			WSBroker:      snap.Config.WSBroker,
			Rows:          snap.Config.Rows,
			Cols:          snap.Config.Cols,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
