package forecast

import "time"

// Fixed curve and bounds. Peak windows follow the utility's
// time-of-use schedule: morning 7-9, evening 18-21, overnight 23-6.
const (
	peakMultiplier      = 1.8
	overnightMultiplier = 0.3

	baselineConfidence    = 0.7
	statisticalConfidence = 0.6

	minConfidence = 0.3
	maxConfidence = 1.0

	// maxPlausibleWatts bounds a believable whole-home draw; points
	// beyond it are dropped as hallucinations.
	maxPlausibleWatts = 20000
	// minPlausibleWatts floors a forecast point. A history of zeros
	// (everything switched off) must not predict a dead-flat zero hour.
	minPlausibleWatts = 50

	// highUsageWatts is the threshold above which a prediction raises
	// the peak probability.
	highUsageWatts = 5000
)

// isPeakHour reports whether h falls in a peak window.
func isPeakHour(h int) bool {
	return (h >= 7 && h <= 9) || (h >= 18 && h <= 21)
}

// isOvernight reports whether h falls in the overnight trough.
func isOvernight(h int) bool {
	return h >= 23 || h <= 6
}

// hourMultiplier returns the fixed time-of-day curve value.
func hourMultiplier(h int) float64 {
	switch {
	case isPeakHour(h):
		return peakMultiplier
	case isOvernight(h):
		return overnightMultiplier
	default:
		return 1.0
	}
}

// timeContext labels an hour for clients.
func timeContext(h int) string {
	switch {
	case h >= 7 && h <= 9:
		return ContextMorningPeak
	case h >= 18 && h <= 21:
		return ContextEveningPeak
	case isOvernight(h):
		return ContextOvernight
	default:
		return ContextDaytime
	}
}

// costTier maps an hour to the utility pricing tier.
func costTier(h int) string {
	switch {
	case isPeakHour(h):
		return TierPeak
	case isOvernight(h):
		return TierOffPeak
	default:
		return TierStandard
	}
}

// seasonalMultiplier is a coarse weather proxy: heating and cooling
// season push usage up, shoulder months do not.
func seasonalMultiplier(m time.Month) float64 {
	switch m {
	case time.December, time.January, time.February,
		time.June, time.July, time.August:
		return 1.15
	default:
		return 1.0
	}
}

// peakProbability follows the fixed rule: base 0.1, +0.6 inside a
// peak window, +0.3 above the high-usage threshold, capped at 1.0.
func peakProbability(h int, predictedUsage float64) float64 {
	p := 0.1
	if isPeakHour(h) {
		p += 0.6
	}
	if predictedUsage > highUsageWatts {
		p += 0.3
	}
	if p > 1.0 {
		p = 1.0
	}
	return p
}

// clampUsage bounds a predicted usage to the plausible range. The AI
// path drops out-of-range points outright; the statistical and
// baseline paths clamp, since their inputs are real readings that may
// legitimately sit at an extreme.
func clampUsage(w float64) float64 {
	if w < minPlausibleWatts {
		return minPlausibleWatts
	}
	if w > maxPlausibleWatts {
		return maxPlausibleWatts
	}
	return w
}

func clampConfidence(c float64) float64 {
	if c < minConfidence {
		return minConfidence
	}
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}
