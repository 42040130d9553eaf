package orchestrator

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jouleworks/gridmind/internal/device"
	"github.com/jouleworks/gridmind/internal/events"
	"github.com/jouleworks/gridmind/internal/metrics"
	"github.com/jouleworks/gridmind/internal/telemetry"
)

// Simulation curve. Per-device multipliers are gentler than the
// whole-home forecast curve: an individual device does not triple its
// draw at dinner time.
const (
	simPeakMultiplier      = 1.3
	simOvernightMultiplier = 0.7
	jitterSpread           = 0.2 // draw varies ±10% around the curve
)

func defaultRand() float64 { return rand.Float64() }

// simMultiplier is the time-of-day factor applied to every on device.
func simMultiplier(hour int) float64 {
	switch {
	case (hour >= 7 && hour <= 9) || (hour >= 18 && hour <= 21):
		return simPeakMultiplier
	case hour >= 23 || hour <= 6:
		return simOvernightMultiplier
	default:
		return 1.0
	}
}

// tick advances the simulated telemetry: recompute each on device's
// draw from its category baseline, the time-of-day curve, and bounded
// jitter; accrue energy and cost; append and broadcast one Reading.
func (o *Orchestrator) tick(ctx context.Context) {
	now := o.nowFunc()
	mult := simMultiplier(now.Hour())
	dt := time.Duration(o.cfg.Sim.TickIntervalSec) * time.Second

	o.maybeRollDay(now)

	reading := telemetry.Reading{
		Timestamp: now,
		Devices:   make(map[string]telemetry.DevicePoint),
	}

	o.store.Update(func(devices []device.Device) {
		for i := range devices {
			d := &devices[i]
			if d.IsOn {
				jitter := 1 - jitterSpread/2 + jitterSpread*o.randFn()
				draw := device.BaselinePower(d.Category) * mult * jitter
				if d.Category == device.CategoryLighting && d.Brightness > 0 {
					draw *= float64(d.Brightness) / 100
				}
				d.CurrentPower = draw

				kwh := d.CurrentPower * dt.Hours() / 1000
				d.EnergyToday += kwh
				d.CostToday += kwh * o.cfg.Sim.CostPerKWh
			}
			reading.Devices[d.ID] = telemetry.DevicePoint{Power: d.CurrentPower, IsOn: d.IsOn}
			reading.TotalPower += d.CurrentPower
		}
	})

	o.hist.Append(reading)
	metrics.TotalPowerWatts.Set(reading.TotalPower)
	o.bus.Publish(events.Event{Type: events.TypeEnergyUpdate, Data: reading})
}

// maybeRollDay resets the per-day energy and cost counters at
// midnight.
func (o *Orchestrator) maybeRollDay(now time.Time) {
	o.mu.Lock()
	rolled := now.Day() != o.lastDay
	o.lastDay = now.Day()
	o.mu.Unlock()
	if !rolled {
		return
	}
	o.store.Update(func(devices []device.Device) {
		for i := range devices {
			devices[i].EnergyToday = 0
			devices[i].CostToday = 0
		}
	})
	o.logger.Info("daily counters reset")
}
