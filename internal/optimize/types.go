// Package optimize implements the optimization agent: ranked,
// actionable cost-saving recommendations derived from forecasts and
// device state, with a deterministic rule fallback.
package optimize

import "time"

// Source values tag which path produced a recommendation set.
const (
	SourceAI    = "ai"
	SourceRules = "rules"
)

// Recommendation categories. These are coarser than device categories:
// appliance recommendations are about scheduling, not the appliance
// itself.
const (
	CategoryHVAC        = "hvac"
	CategoryWaterHeater = "water_heater"
	CategoryLighting    = "lighting"
	CategoryScheduling  = "appliance_scheduling"
)

// Priority levels.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Difficulty levels.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Automation levels, derived from the action verb.
const (
	AutomationAutomatic     = "automatic"
	AutomationSemiAutomatic = "semi_automatic"
	AutomationManual        = "manual"
)

// Recommendation is one scored, actionable suggestion. The scoring
// fields are filled by enhance; raw recommendations (from the LLM or
// the rules) carry only the descriptive fields.
type Recommendation struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Source      string    `json:"source"`

	PotentialSavings float64  `json:"potential_savings"` // dollars
	Priority         string   `json:"priority"`
	Difficulty       string   `json:"difficulty"`
	DeviceIDs        []string `json:"device_ids"`
	Action           string   `json:"action,omitempty"`
	Value            *float64 `json:"value,omitempty"`

	Urgency         float64 `json:"urgency"`
	Feasibility     float64 `json:"feasibility"`
	ComfortImpact   float64 `json:"comfort_impact"`
	CompositeScore  float64 `json:"composite_score"`
	AutomationLevel string  `json:"automation_level"`
	ImplementMins   int     `json:"implement_minutes"`
	Rank            int     `json:"rank"`
}

// Applied records a recommendation that was carried out.
type Applied struct {
	Recommendation
	AppliedAt time.Time `json:"applied_at"`
}

func floatPtr(v float64) *float64 { return &v }
