// Package forecast implements the forecast agent: a rolling 24-hour
// hourly usage prediction with AI enrichment and statistical and
// baseline fallbacks.
package forecast

import "time"

// Source values tag which path produced a forecast.
const (
	// SourceAI means the LLM supplied the predictions.
	SourceAI = "ai"
	// SourceStatistical means per-hour historical averages scaled by a
	// trend factor supplied the predictions.
	SourceStatistical = "statistical"
	// SourceBaseline means the fixed time-of-day curve supplied the
	// predictions (history too short for anything better).
	SourceBaseline = "baseline"
)

// TimeContext labels for forecast points.
const (
	ContextMorningPeak = "morning_peak"
	ContextEveningPeak = "evening_peak"
	ContextOvernight   = "overnight"
	ContextDaytime     = "daytime"
)

// CostTier values for forecast points.
const (
	TierPeak     = "peak"
	TierStandard = "standard"
	TierOffPeak  = "off_peak"
)

// Point is one hour's prediction. PredictedUsage is bounded to
// (0, 20000) watts and Confidence is clamped to [0.3, 1.0] before a
// point leaves this package.
type Point struct {
	Hour            int     `json:"hour"` // 0-23
	PredictedUsage  float64 `json:"predicted_usage"`
	PredictedCost   float64 `json:"predicted_cost"`
	Confidence      float64 `json:"confidence"`
	TimeContext     string  `json:"time_context"`
	PeakProbability float64 `json:"peak_probability"`
	CostTier        string  `json:"cost_tier"`
}

// Forecast is an ordered sequence of 24 points, one per upcoming hour
// starting from the hour it was generated in.
type Forecast struct {
	GeneratedAt time.Time `json:"generated_at"`
	Source      string    `json:"source"`
	Points      []Point   `json:"points"`
}
