// Package prompts holds the LLM prompt templates and builders for the
// three analysis agents. Wording here is not load-bearing: every agent
// validates and bounds whatever comes back, so the templates only need
// to elicit the right structured fields.
package prompts

import (
	"fmt"
	"strings"

	"github.com/jouleworks/gridmind/internal/device"
	"github.com/jouleworks/gridmind/internal/telemetry"
)

// FormatDevices renders device snapshots as one line per device for
// prompt embedding.
func FormatDevices(devices []device.Device) string {
	var sb strings.Builder
	for _, d := range devices {
		state := "off"
		if d.IsOn {
			state = "on"
		}
		fmt.Fprintf(&sb, "- %s (%s, %s): %s, %.0f W", d.ID, d.Category, d.Location, state, d.CurrentPower)
		if d.TargetTemp > 0 {
			fmt.Fprintf(&sb, ", target %.0f°F", d.TargetTemp)
		}
		if d.Category == device.CategoryLighting {
			fmt.Fprintf(&sb, ", brightness %d%%", d.Brightness)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatReadings renders up to max recent readings as "HH:MM  1234 W"
// lines, oldest first.
func FormatReadings(readings []telemetry.Reading, max int) string {
	if len(readings) > max {
		readings = readings[len(readings)-max:]
	}
	var sb strings.Builder
	for _, r := range readings {
		fmt.Fprintf(&sb, "%s  %.0f W\n", r.Timestamp.Format("15:04"), r.TotalPower)
	}
	return sb.String()
}
