package orchestrator

import "time"

// Stats is the aggregate snapshot served at /api/stats.
type Stats struct {
	Timestamp        time.Time `json:"timestamp"`
	TotalPowerWatts  float64   `json:"total_power_watts"`
	EnergyTodayKWh   float64   `json:"energy_today_kwh"`
	CostToday        float64   `json:"cost_today"`
	DeviceCount      int       `json:"device_count"`
	DevicesOn        int       `json:"devices_on"`
	ReadingCount     int       `json:"reading_count"`
	SystemHealth     string    `json:"system_health"`
	TotalSavings     float64   `json:"total_savings"`
	ForecastAccuracy *float64  `json:"forecast_accuracy,omitempty"`
	UptimeSeconds    float64   `json:"uptime_seconds"`
}

// Stats aggregates current fleet, history, and agent state.
func (o *Orchestrator) Stats() Stats {
	now := o.nowFunc()
	s := Stats{
		Timestamp:    now,
		DeviceCount:  o.store.Count(),
		ReadingCount: o.hist.Len(),
		SystemHealth: string(o.Health()),
		TotalSavings: o.optimizeAgent.TotalSavings(),
	}

	for _, d := range o.store.Snapshot() {
		s.TotalPowerWatts += d.CurrentPower
		s.EnergyTodayKWh += d.EnergyToday
		s.CostToday += d.CostToday
		if d.IsOn {
			s.DevicesOn++
		}
	}

	if acc, ok := o.forecastAgent.Accuracy(); ok {
		s.ForecastAccuracy = &acc
	}

	o.mu.RLock()
	if !o.startedAt.IsZero() {
		s.UptimeSeconds = now.Sub(o.startedAt).Seconds()
	}
	o.mu.RUnlock()
	return s
}
