package prompts

import (
	"fmt"
	"strings"

	"github.com/jouleworks/gridmind/internal/device"
	"github.com/jouleworks/gridmind/internal/telemetry"
)

// monitoringTemplate asks for the structured insight object the
// monitoring agent parses. Format verbs: device list, reading list.
const monitoringTemplate = `You are an energy analyst reviewing a home's appliance fleet.

Devices:
%s
Recent power readings (oldest first):
%s
Assess the current energy behavior. Respond with a single JSON object
and nothing else, in exactly this shape:
{"efficiency_score": <0.0-1.0>, "anomalies": ["..."], "insights": ["..."], "potential_issues": ["..."]}`

// MonitoringPrompt builds the monitoring agent's analysis prompt from
// device snapshots and recent readings.
func MonitoringPrompt(devices []device.Device, readings []telemetry.Reading) string {
	return fmt.Sprintf(monitoringTemplate,
		FormatDevices(devices),
		FormatReadings(readings, 30),
	)
}

// monitoringStops terminates generation after the JSON object.
var monitoringStops = []string{"\n\n\n"}

// MonitoringStops returns stop sequences for the monitoring prompt.
func MonitoringStops() []string {
	out := make([]string, len(monitoringStops))
	copy(out, monitoringStops)
	return out
}

// SummarizeAnomalies joins anomaly strings for log output, truncated.
func SummarizeAnomalies(anomalies []string) string {
	if len(anomalies) == 0 {
		return "none"
	}
	s := strings.Join(anomalies, "; ")
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}
