// Package monitor implements the monitoring agent: it turns the
// reading history and device list into a periodic efficiency
// assessment with statistical backing and optional AI insight.
package monitor

import "time"

// Source values tag which path produced the insight block.
const (
	SourceAI          = "ai"
	SourceStatistical = "statistical"
)

// Insight is the AI-augmented block of an Analysis. When the LLM call
// fails or returns garbage, a statistically-derived default takes its
// place and Available is false.
type Insight struct {
	EfficiencyScore float64  `json:"efficiency_score"`
	Anomalies       []string `json:"anomalies"`
	Insights        []string `json:"insights"`
	PotentialIssues []string `json:"potential_issues"`
	Available       bool     `json:"available"`
}

// Stats is the deterministic statistical block computed every cycle
// regardless of LLM availability.
type Stats struct {
	Mean     float64 `json:"mean"`
	Max      float64 `json:"max"`
	Min      float64 `json:"min"`
	StdDev   float64 `json:"std_dev"`
	CoefVar  float64 `json:"coef_var"`
	PeakHour int     `json:"peak_hour"`
}

// DevicePerformance classifies one device's draw against its category
// baseline.
type DevicePerformance struct {
	DeviceID       string  `json:"device_id"`
	Ratio          float64 `json:"ratio"` // current power / category baseline
	Classification string  `json:"classification"`
}

// Classification values for DevicePerformance.
const (
	ConsumptionHigh   = "high"
	ConsumptionLow    = "low"
	ConsumptionNormal = "normal"
)

// Anomaly is one statistically detected irregularity.
type Anomaly struct {
	Type        string `json:"type"` // "usage_deviation" or "zero_power"
	Description string `json:"description"`
	DeviceID    string `json:"device_id,omitempty"`
}

// Anomaly type values.
const (
	AnomalyUsageDeviation = "usage_deviation"
	AnomalyZeroPower      = "zero_power"
)

// Trend descriptors comparing efficiency across recent analyses.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// Analysis is one monitoring cycle's full output. Each run supersedes
// the previous one; a short history is retained for trend computation.
type Analysis struct {
	Timestamp   time.Time           `json:"timestamp"`
	Source      string              `json:"source"`
	Insight     Insight             `json:"insight"`
	Stats       Stats               `json:"stats"`
	Performance []DevicePerformance `json:"performance"`
	Anomalies   []Anomaly           `json:"anomalies"`
	Trend       string              `json:"trend"`
}
