package prompts

import (
	"fmt"

	"github.com/jouleworks/gridmind/internal/device"
)

// optimizationTemplate asks for actionable recommendations conditioned
// on devices, forecast, and the current hour. Format verbs: current
// hour, device list, forecast summary.
const optimizationTemplate = `You are an energy cost optimizer for a home. The current hour is %d.

Devices:
%s
Forecast for the next hours:
%s
Suggest cost-saving actions. Respond with a single JSON object and
nothing else, in exactly this shape:
{"recommendations": [{"title": "...", "description": "...", "category": "<hvac|water_heater|lighting|appliance_scheduling>", "potential_savings": <dollars>, "priority": "<low|medium|high>", "difficulty": "<easy|medium|hard>", "device_ids": ["..."], "action": "<turn_off|turn_on|set_temperature|set_brightness|schedule>", "value": <number or omit>}]}
Suggest between one and five recommendations.`

// immediateTemplate is used before any forecast exists. Format verbs:
// current hour, device list.
const immediateTemplate = `You are an energy cost optimizer for a home. The current hour is %d.
No usage forecast is available yet.

Devices:
%s
Suggest immediate cost-saving actions from device state and time of day
alone. Respond with a single JSON object and nothing else, in exactly
this shape:
{"recommendations": [{"title": "...", "description": "...", "category": "<hvac|water_heater|lighting|appliance_scheduling>", "potential_savings": <dollars>, "priority": "<low|medium|high>", "difficulty": "<easy|medium|hard>", "device_ids": ["..."], "action": "<turn_off|turn_on|set_temperature|set_brightness|schedule>", "value": <number or omit>}]}`

// OptimizationPrompt builds the optimization agent's prompt. The
// forecastSummary is pre-formatted by the agent; pass an empty string
// to get the immediate-mode prompt.
func OptimizationPrompt(devices []device.Device, forecastSummary string, currentHour int) string {
	if forecastSummary == "" {
		return fmt.Sprintf(immediateTemplate, currentHour, FormatDevices(devices))
	}
	return fmt.Sprintf(optimizationTemplate, currentHour, FormatDevices(devices), forecastSummary)
}
