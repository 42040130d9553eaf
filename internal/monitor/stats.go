package monitor

import (
	"fmt"
	"math"

	"github.com/jouleworks/gridmind/internal/device"
	"github.com/jouleworks/gridmind/internal/telemetry"
)

// Detection thresholds for the statistical anomaly rules.
const (
	// deviationThreshold is the relative difference between the recent
	// and preceding usage windows that flags a usage anomaly.
	deviationThreshold = 0.30
	recentWindow       = 10
	precedingWindow    = 20

	// highRatio and lowRatio bound the normal band for a device's
	// draw relative to its category baseline.
	highRatio = 1.2
	lowRatio  = 0.5
)

// computeStats derives mean/max/min/stddev, coefficient of variation,
// and the hour with the highest average usage from the readings.
func computeStats(readings []telemetry.Reading) Stats {
	if len(readings) == 0 {
		return Stats{}
	}

	var sum float64
	max := math.Inf(-1)
	min := math.Inf(1)
	for _, r := range readings {
		sum += r.TotalPower
		if r.TotalPower > max {
			max = r.TotalPower
		}
		if r.TotalPower < min {
			min = r.TotalPower
		}
	}
	mean := sum / float64(len(readings))

	var sqDiff float64
	for _, r := range readings {
		d := r.TotalPower - mean
		sqDiff += d * d
	}
	stdDev := math.Sqrt(sqDiff / float64(len(readings)))

	coefVar := 0.0
	if mean > 0 {
		coefVar = stdDev / mean
	}

	return Stats{
		Mean:     mean,
		Max:      max,
		Min:      min,
		StdDev:   stdDev,
		CoefVar:  coefVar,
		PeakHour: peakHour(readings),
	}
}

// peakHour returns the hour of day with the highest average total
// power across the readings.
func peakHour(readings []telemetry.Reading) int {
	var sums [24]float64
	var counts [24]int
	for _, r := range readings {
		h := r.Timestamp.Hour()
		sums[h] += r.TotalPower
		counts[h]++
	}

	best, bestAvg := 0, -1.0
	for h := range 24 {
		if counts[h] == 0 {
			continue
		}
		avg := sums[h] / float64(counts[h])
		if avg > bestAvg {
			best, bestAvg = h, avg
		}
	}
	return best
}

// classifyDevices computes each on device's efficiency ratio against
// its category baseline.
func classifyDevices(devices []device.Device) []DevicePerformance {
	out := make([]DevicePerformance, 0, len(devices))
	for _, d := range devices {
		if !d.IsOn {
			continue
		}
		ratio := d.CurrentPower / device.BaselinePower(d.Category)
		cls := ConsumptionNormal
		switch {
		case ratio > highRatio:
			cls = ConsumptionHigh
		case ratio < lowRatio:
			cls = ConsumptionLow
		}
		out = append(out, DevicePerformance{
			DeviceID:       d.ID,
			Ratio:          ratio,
			Classification: cls,
		})
	}
	return out
}

// detectAnomalies applies the two deterministic rules: a ≥30% shift
// between the most recent ~10 readings' average and the preceding
// ~20 readings' average, and any device reporting on with zero power.
func detectAnomalies(devices []device.Device, readings []telemetry.Reading) []Anomaly {
	var anomalies []Anomaly

	if dev, ok := usageDeviation(readings); ok {
		direction := "increased"
		if dev < 0 {
			direction = "decreased"
		}
		anomalies = append(anomalies, Anomaly{
			Type: AnomalyUsageDeviation,
			Description: fmt.Sprintf("recent usage %s %.0f%% versus the preceding window",
				direction, math.Abs(dev)*100),
		})
	} else if dev, ok := latestSpike(readings); ok {
		direction := "above"
		if dev < 0 {
			direction = "below"
		}
		anomalies = append(anomalies, Anomaly{
			Type: AnomalyUsageDeviation,
			Description: fmt.Sprintf("latest reading is %.0f%% %s the recent average",
				math.Abs(dev)*100, direction),
		})
	}

	for _, d := range devices {
		if d.IsOn && d.CurrentPower == 0 {
			anomalies = append(anomalies, Anomaly{
				Type:        AnomalyZeroPower,
				DeviceID:    d.ID,
				Description: fmt.Sprintf("device %s reports on with zero power draw", d.ID),
			})
		}
	}

	return anomalies
}

// usageDeviation compares the recent window's average against the
// preceding window's. Returns the signed relative deviation and
// whether it crosses the threshold. Not enough readings means no
// deviation.
func usageDeviation(readings []telemetry.Reading) (float64, bool) {
	if len(readings) < recentWindow+precedingWindow {
		return 0, false
	}

	recent := readings[len(readings)-recentWindow:]
	preceding := readings[len(readings)-recentWindow-precedingWindow : len(readings)-recentWindow]

	recentAvg := avgPower(recent)
	precedingAvg := avgPower(preceding)
	if precedingAvg == 0 {
		return 0, false
	}

	dev := (recentAvg - precedingAvg) / precedingAvg
	return dev, math.Abs(dev) >= deviationThreshold
}

// latestSpike compares the newest reading against the average of the
// recentWindow readings before it, catching single-sample jumps the
// window comparison smooths over.
func latestSpike(readings []telemetry.Reading) (float64, bool) {
	if len(readings) < recentWindow+1 {
		return 0, false
	}

	latest := readings[len(readings)-1].TotalPower
	prior := avgPower(readings[len(readings)-1-recentWindow : len(readings)-1])
	if prior == 0 {
		return 0, false
	}

	dev := (latest - prior) / prior
	return dev, math.Abs(dev) >= deviationThreshold
}

func avgPower(readings []telemetry.Reading) float64 {
	if len(readings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range readings {
		sum += r.TotalPower
	}
	return sum / float64(len(readings))
}
