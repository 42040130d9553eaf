package forecast

import (
	"time"

	"github.com/jouleworks/gridmind/internal/device"
	"github.com/jouleworks/gridmind/internal/telemetry"
)

// hourlyAverages buckets readings by hour of day and returns the mean
// total power per bucket. Hours with no readings hold zero and false.
func hourlyAverages(readings []telemetry.Reading) ([24]float64, [24]bool) {
	var sums [24]float64
	var counts [24]int
	for _, r := range readings {
		h := r.Timestamp.Hour()
		sums[h] += r.TotalPower
		counts[h]++
	}
	var avgs [24]float64
	var have [24]bool
	for h := 0; h < 24; h++ {
		if counts[h] > 0 {
			avgs[h] = sums[h] / float64(counts[h])
			have[h] = true
		}
	}
	return avgs, have
}

// hourlyRepresentatives collapses readings into at most 24 synthetic
// readings, one per hour of day, ordered oldest-hour-first relative to
// the current hour. They feed the prompt, not the forecast itself.
func hourlyRepresentatives(readings []telemetry.Reading, currentHour int) []telemetry.Reading {
	avgs, have := hourlyAverages(readings)
	out := make([]telemetry.Reading, 0, 24)
	for offset := 23; offset >= 0; offset-- {
		h := ((currentHour-offset)%24 + 24) % 24
		if !have[h] {
			continue
		}
		out = append(out, telemetry.Reading{
			Timestamp:  time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC),
			TotalPower: avgs[h],
		})
	}
	return out
}

// trendFactor compares the mean of the newest window readings to the
// mean of the window before it. It is clamped to [0.5, 1.5] so one
// noisy window cannot swing the whole forecast.
func trendFactor(readings []telemetry.Reading, window int) float64 {
	if len(readings) < 2*window {
		return 1.0
	}
	recent := readings[len(readings)-window:]
	prior := readings[len(readings)-2*window : len(readings)-window]
	priorMean := meanPower(prior)
	if priorMean == 0 {
		return 1.0
	}
	f := meanPower(recent) / priorMean
	if f < 0.5 {
		f = 0.5
	}
	if f > 1.5 {
		f = 1.5
	}
	return f
}

func meanPower(readings []telemetry.Reading) float64 {
	if len(readings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range readings {
		sum += r.TotalPower
	}
	return sum / float64(len(readings))
}

// statisticalPoints builds 24 hourly points from per-hour historical
// averages scaled by the recent trend. Hours never observed fall back
// to the fixed curve applied to the overall mean.
func statisticalPoints(readings []telemetry.Reading, now time.Time) []Point {
	avgs, have := hourlyAverages(readings)
	factor := trendFactor(readings, 24)
	overall := meanPower(readings)
	season := seasonalMultiplier(now.Month())

	points := make([]Point, 0, 24)
	for offset := 0; offset < 24; offset++ {
		h := (now.Hour() + offset) % 24
		usage := avgs[h]
		if !have[h] {
			usage = overall * hourMultiplier(h)
		}
		points = append(points, Point{
			Hour:           h,
			PredictedUsage: usage * factor * season,
			Confidence:     statisticalConfidence,
		})
	}
	return points
}

// baselinePoints builds 24 hourly points from the fixed time-of-day
// curve anchored to the fleet's current draw. Used before enough
// history accumulates for anything data-driven.
func baselinePoints(devices []device.Device, now time.Time) []Point {
	var base float64
	for _, d := range devices {
		if d.IsOn {
			base += d.CurrentPower
		}
	}
	if base == 0 {
		for _, d := range devices {
			base += device.BaselinePower(d.Category)
		}
	}
	season := seasonalMultiplier(now.Month())

	points := make([]Point, 0, 24)
	for offset := 0; offset < 24; offset++ {
		h := (now.Hour() + offset) % 24
		points = append(points, Point{
			Hour:           h,
			PredictedUsage: base * hourMultiplier(h) * season,
			Confidence:     baselineConfidence,
		})
	}
	return points
}
