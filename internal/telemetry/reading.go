// Package telemetry holds the Reading type and the bounded in-memory
// history the analysis agents consume.
package telemetry

import "time"

// DevicePoint is one device's slice of a Reading.
type DevicePoint struct {
	Power float64 `json:"power"` // watts
	IsOn  bool    `json:"is_on"`
}

// Reading is one timestamped snapshot of total and per-device power.
// Immutable once created.
type Reading struct {
	Timestamp  time.Time              `json:"timestamp"`
	TotalPower float64                `json:"total_power"` // watts
	Devices    map[string]DevicePoint `json:"devices"`
}
