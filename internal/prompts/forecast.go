package prompts

import (
	"fmt"

	"github.com/jouleworks/gridmind/internal/device"
	"github.com/jouleworks/gridmind/internal/telemetry"
)

// forecastTemplate asks for 24 hourly prediction tuples starting at
// the current hour. Format verbs: current hour, device list, hourly
// reading list, current hour again.
const forecastTemplate = `You are forecasting residential electricity usage. The current hour is %d.

Devices:
%s
Hourly power readings for the last 24 hours (oldest first):
%s
Predict the next 24 hours of usage starting at hour %d. Respond with a
single JSON object and nothing else, in exactly this shape:
{"hours": [{"hour": <0-23>, "predicted_usage": <watts>, "predicted_cost": <dollars>, "confidence": <0.0-1.0>}, ...]}
Include exactly 24 entries, one per upcoming hour.`

// ForecastPrompt builds the forecast agent's prompt from device states
// and the last 24 hourly readings.
func ForecastPrompt(devices []device.Device, hourly []telemetry.Reading, currentHour int) string {
	return fmt.Sprintf(forecastTemplate,
		currentHour,
		FormatDevices(devices),
		FormatReadings(hourly, 24),
		currentHour,
	)
}
