package optimize

import (
	"fmt"

	"github.com/jouleworks/gridmind/internal/device"
)

// Rule thresholds.
const (
	// highTotalWatts is the whole-home draw above which the
	// highest-draw device gets a reduction recommendation.
	highTotalWatts = 3000.0
	// brightLightPercent is the brightness above which a light gets a
	// dimming recommendation.
	brightLightPercent = 85
	// dimTargetPercent is the brightness the dimming rule proposes.
	dimTargetPercent = 70
	// preCoolDelta is how far the pre-cool rule lowers the setpoint.
	preCoolDelta = 4
)

// ruleRecommendations is the deterministic fallback generator. It
// never returns an empty set: when no rule fires, a generic
// water-heater setback or load-shift suggestion fills in.
func ruleRecommendations(devices []device.Device, totalPower float64, hour int) []Recommendation {
	var recs []Recommendation

	if totalPower > highTotalWatts {
		if d, ok := highestDraw(devices); ok {
			recs = append(recs, reduceRec(d))
		}
	}

	// Pre-cool ahead of and into the 17-19h peak so the unit can coast
	// through the expensive hours.
	if hour >= prePeakStart && hour <= 18 {
		for _, d := range devices {
			if d.Category == device.CategoryHVAC && d.IsOn && d.TargetTemp > 0 {
				recs = append(recs, Recommendation{
					Title:       fmt.Sprintf("Pre-cool with %s before the evening peak", d.Name),
					Description: fmt.Sprintf("Lower %s to %.0f°F now so it can coast through peak-rate hours with less runtime.", d.Name, d.TargetTemp-preCoolDelta),
					Category:    CategoryHVAC,
					Difficulty:  DifficultyEasy,
					DeviceIDs:   []string{d.ID},
					Action:      string(device.ActionSetTemperature),
					Value:       floatPtr(d.TargetTemp - preCoolDelta),

					PotentialSavings: 1.5,
				})
				break
			}
		}
	}

	if hour >= lateEveningStart && hour <= lateEveningEnd {
		for _, d := range devices {
			if d.Category == device.CategoryAppliance && !d.IsOn {
				recs = append(recs, Recommendation{
					Title:       fmt.Sprintf("Run the %s during off-peak hours", d.Name),
					Description: fmt.Sprintf("Start the %s now while rates are off-peak instead of tomorrow during the day.", d.Name),
					Category:    CategoryScheduling,
					Difficulty:  DifficultyEasy,
					DeviceIDs:   []string{d.ID},
					Action:      "schedule",

					PotentialSavings: 0.8,
				})
				break
			}
		}
	}

	for _, d := range devices {
		if d.Category == device.CategoryLighting && d.IsOn && d.Brightness > brightLightPercent {
			recs = append(recs, Recommendation{
				Title:       fmt.Sprintf("Dim %s", d.Name),
				Description: fmt.Sprintf("%s is at %d%% brightness; %d%% is rarely noticeable and cuts its draw proportionally.", d.Name, d.Brightness, dimTargetPercent),
				Category:    CategoryLighting,
				Difficulty:  DifficultyEasy,
				DeviceIDs:   []string{d.ID},
				Action:      string(device.ActionSetBrightness),
				Value:       floatPtr(dimTargetPercent),

				PotentialSavings: 0.3,
			})
		}
	}

	if len(recs) == 0 {
		recs = append(recs, genericRec(devices))
	}
	return recs
}

// highestDraw returns the on device drawing the most power.
func highestDraw(devices []device.Device) (device.Device, bool) {
	var best device.Device
	found := false
	for _, d := range devices {
		if d.IsOn && (!found || d.CurrentPower > best.CurrentPower) {
			best = d
			found = true
		}
	}
	return best, found
}

// reduceRec proposes the cheapest reduction for the given device's
// category.
func reduceRec(d device.Device) Recommendation {
	rec := Recommendation{
		Title:       fmt.Sprintf("Reduce %s usage", d.Name),
		Description: fmt.Sprintf("%s is the largest draw right now at %.0f W.", d.Name, d.CurrentPower),
		Difficulty:  DifficultyEasy,
		DeviceIDs:   []string{d.ID},

		PotentialSavings: 1.0,
	}
	switch d.Category {
	case device.CategoryHVAC:
		rec.Category = CategoryHVAC
		rec.Action = string(device.ActionSetTemperature)
		rec.Value = floatPtr(d.TargetTemp - 3)
	case device.CategoryLighting:
		rec.Category = CategoryLighting
		rec.Action = string(device.ActionSetBrightness)
		rec.Value = floatPtr(60)
	case device.CategoryWaterHeater:
		rec.Category = CategoryWaterHeater
		rec.Action = string(device.ActionSetTemperature)
		rec.Value = floatPtr(d.TargetTemp - 10)
	default:
		rec.Category = CategoryScheduling
		rec.Action = string(device.ActionTurnOff)
	}
	return rec
}

// genericRec guarantees a non-empty fallback set.
func genericRec(devices []device.Device) Recommendation {
	for _, d := range devices {
		if d.Category == device.CategoryWaterHeater && d.IsOn && d.TargetTemp > 115 {
			return Recommendation{
				Title:       fmt.Sprintf("Lower %s setpoint", d.Name),
				Description: fmt.Sprintf("Dropping %s from %.0f°F to 115°F cuts standby losses with no noticeable difference at the tap.", d.Name, d.TargetTemp),
				Category:    CategoryWaterHeater,
				Difficulty:  DifficultyEasy,
				DeviceIDs:   []string{d.ID},
				Action:      string(device.ActionSetTemperature),
				Value:       floatPtr(115),

				PotentialSavings: 0.5,
			}
		}
	}
	return Recommendation{
		Title:       "Shift flexible loads to off-peak hours",
		Description: "Run dishwashers, dryers, and other schedulable loads after 21:00 when rates drop.",
		Category:    CategoryScheduling,
		Difficulty:  DifficultyMedium,

		PotentialSavings: 0.5,
	}
}
