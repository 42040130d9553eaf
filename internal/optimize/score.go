package optimize

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jouleworks/gridmind/internal/device"
)

// Scoring thresholds and weights.
const (
	// prePeakStart/End is the window where climate-control
	// recommendations become urgent (act before the evening peak).
	prePeakStart = 16
	prePeakEnd   = 18
	// lateEveningStart/End is the window where appliance scheduling
	// becomes urgent (off-peak rates begin).
	lateEveningStart = 21
	lateEveningEnd   = 23

	// urgentSavingsDollars is the savings level that alone raises
	// urgency.
	urgentSavingsDollars = 2.0
	// highPowerWatts marks a device as currently drawing enough to make
	// acting on it urgent.
	highPowerWatts = 2000.0

	// savingsNormDollars is the ceiling used to normalize savings into
	// [0, 1] for the composite score.
	savingsNormDollars = 5.0
	// implTimeNormMins is the ceiling used to normalize implementation
	// time into [0, 1].
	implTimeNormMins = 60.0
)

// comfortImpact is fixed per category: touching the thermostat costs
// the most comfort, shifting an appliance the least.
func comfortImpact(category string) float64 {
	switch category {
	case CategoryHVAC:
		return 0.8
	case CategoryWaterHeater:
		return 0.5
	case CategoryLighting:
		return 0.4
	case CategoryScheduling:
		return 0.2
	default:
		return 0.5
	}
}

// automationLevel classifies the action verb by how much human
// involvement carrying it out takes.
func automationLevel(action string) string {
	switch action {
	case string(device.ActionTurnOn), string(device.ActionTurnOff),
		string(device.ActionToggle),
		string(device.ActionSetTemperature), string(device.ActionSetBrightness):
		return AutomationAutomatic
	case "schedule":
		return AutomationSemiAutomatic
	default:
		return AutomationManual
	}
}

// implementMinutes estimates how long carrying out the recommendation
// takes, from difficulty and automation level.
func implementMinutes(difficulty, automation string) int {
	if automation == AutomationAutomatic {
		return 1
	}
	switch difficulty {
	case DifficultyEasy:
		return 5
	case DifficultyHard:
		return 45
	default:
		return 15
	}
}

// urgency scores how time-sensitive a recommendation is. Base 0.5,
// raised for pre-peak climate actions, late-evening scheduling, large
// savings, and high-draw affected devices; capped at 1.0.
func urgency(r Recommendation, devices map[string]device.Device, hour int) float64 {
	u := 0.5
	if r.Category == CategoryHVAC && hour >= prePeakStart && hour <= prePeakEnd {
		u += 0.3
	}
	if r.Category == CategoryScheduling && hour >= lateEveningStart && hour <= lateEveningEnd {
		u += 0.2
	}
	if r.PotentialSavings > urgentSavingsDollars {
		u += 0.2
	}
	for _, id := range r.DeviceIDs {
		if d, ok := devices[id]; ok && d.CurrentPower > highPowerWatts {
			u += 0.2
			break
		}
	}
	if u > 1.0 {
		u = 1.0
	}
	return u
}

// feasibility scores how likely the recommendation is to be carried
// out. Base 0.8, adjusted for difficulty and for actions that assume a
// device is on when it is not; clamped to [0.1, 1.0].
func feasibility(r Recommendation, devices map[string]device.Device) float64 {
	f := 0.8
	switch r.Difficulty {
	case DifficultyEasy:
		f += 0.2
	case DifficultyHard:
		f -= 0.3
	}
	if r.Action != string(device.ActionTurnOn) {
		for _, id := range r.DeviceIDs {
			if d, ok := devices[id]; ok && !d.IsOn {
				f -= 0.2
				break
			}
		}
	}
	if f < 0.1 {
		f = 0.1
	}
	if f > 1.0 {
		f = 1.0
	}
	return f
}

// composite is the ranking score: savings dominate, then urgency, then
// feasibility, with comfort and implementation time as penalties.
func composite(r Recommendation) float64 {
	normSavings := r.PotentialSavings / savingsNormDollars
	if normSavings > 1 {
		normSavings = 1
	}
	if normSavings < 0 {
		normSavings = 0
	}
	normTime := float64(r.ImplementMins) / implTimeNormMins
	if normTime > 1 {
		normTime = 1
	}
	return 0.30*normSavings +
		0.25*r.Urgency +
		0.20*r.Feasibility +
		0.15*(1-r.ComfortImpact) +
		0.10*(1-normTime)
}

// enhance fills scoring and bookkeeping fields on raw recommendations,
// sorts them by descending composite score, and assigns 1-based ranks.
func enhance(recs []Recommendation, devices []device.Device, now time.Time, source string) []Recommendation {
	byID := make(map[string]device.Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}

	for i := range recs {
		r := &recs[i]
		if r.ID == "" {
			r.ID = newID()
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = now
		}
		r.Source = source
		if r.Difficulty == "" {
			r.Difficulty = DifficultyMedium
		}
		r.AutomationLevel = automationLevel(r.Action)
		r.ImplementMins = implementMinutes(r.Difficulty, r.AutomationLevel)
		r.Urgency = urgency(*r, byID, now.Hour())
		r.Feasibility = feasibility(*r, byID)
		r.ComfortImpact = comfortImpact(r.Category)
		r.CompositeScore = composite(*r)
		if r.Priority == "" {
			switch {
			case r.CompositeScore > 0.8:
				r.Priority = PriorityHigh
			case r.CompositeScore > 0.6:
				r.Priority = PriorityMedium
			default:
				r.Priority = PriorityLow
			}
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CompositeScore > recs[j].CompositeScore
	})
	for i := range recs {
		recs[i].Rank = i + 1
	}
	return recs
}

// newID returns a recommendation id. UUIDv7 keeps ids time-sortable;
// on the (never observed) failure path fall back to a random UUID.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
