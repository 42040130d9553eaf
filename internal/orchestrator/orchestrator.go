// Package orchestrator owns the device store and reading history, runs
// the three analysis agents on their schedules, and broadcasts every
// state change on the events bus.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jouleworks/gridmind/internal/agent"
	"github.com/jouleworks/gridmind/internal/config"
	"github.com/jouleworks/gridmind/internal/device"
	"github.com/jouleworks/gridmind/internal/events"
	"github.com/jouleworks/gridmind/internal/forecast"
	"github.com/jouleworks/gridmind/internal/llm"
	"github.com/jouleworks/gridmind/internal/metrics"
	"github.com/jouleworks/gridmind/internal/monitor"
	"github.com/jouleworks/gridmind/internal/optimize"
	"github.com/jouleworks/gridmind/internal/schedule"
	"github.com/jouleworks/gridmind/internal/telemetry"
)

// Orchestrator wires the store, history, bus, and agents together.
// Construct with New, then Start; Stop shuts every periodic task down
// and closes the bus.
type Orchestrator struct {
	cfg    *config.Config
	store  *device.Store
	hist   *telemetry.History
	bus    *events.Bus
	runner *schedule.Runner
	logger *slog.Logger

	monitorAgent  *monitor.Agent
	forecastAgent *forecast.Agent
	optimizeAgent *optimize.Agent

	nowFunc func() time.Time
	randFn  func() float64 // uniform [0,1) jitter source

	mu        sync.RWMutex
	health    agent.SystemHealth
	lastDay   int
	startedAt time.Time
}

// New builds an orchestrator with the default device fleet. The LLM
// client is shared across all three agents.
func New(cfg *config.Config, client llm.Client, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		cfg:     cfg,
		store:   device.NewStore(device.DefaultDevices()),
		hist:    telemetry.NewHistory(cfg.Sim.HistorySize),
		bus:     events.New(),
		runner:  schedule.NewRunner(logger),
		logger:  logger.With("component", "orchestrator"),
		nowFunc: time.Now,
		randFn:  defaultRand,
		health:  agent.SystemUnhealthy,
	}

	o.monitorAgent = monitor.New(client, o.Devices, o.Readings, o.bus, logger)
	o.forecastAgent = forecast.New(client, o.Devices, o.Readings, o.bus, cfg.Sim.CostPerKWh, logger)
	o.optimizeAgent = optimize.New(client, o.Devices, o.forecastAgent.Latest,
		func(deviceID string, action device.Action, value float64) error {
			_, err := o.ControlDevice(deviceID, action, value)
			return err
		},
		o.bus, logger)
	return o
}

// Bus exposes the broadcast channel for transports (websocket, MQTT).
func (o *Orchestrator) Bus() *events.Bus { return o.bus }

// Start registers and launches all periodic tasks. The agents get an
// immediate first pass so the system has output shortly after startup.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	o.startedAt = o.nowFunc()
	o.lastDay = o.startedAt.Day()
	o.mu.Unlock()

	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	o.runner.Add(schedule.Task{Name: "tick", Interval: sec(o.cfg.Sim.TickIntervalSec), Immediate: true, Run: o.tick})
	o.runner.Add(schedule.Task{Name: "monitor", Interval: sec(o.cfg.Agents.MonitorIntervalSec), Immediate: true, Run: o.monitorAgent.Run})
	o.runner.Add(schedule.Task{Name: "forecast", Interval: sec(o.cfg.Agents.ForecastIntervalSec), Immediate: true, Run: o.forecastAgent.Run})
	o.runner.Add(schedule.Task{Name: "optimize", Interval: sec(o.cfg.Agents.OptimizeIntervalSec), Immediate: true, Run: o.optimizeAgent.Run})
	o.runner.Add(schedule.Task{Name: "coordination", Interval: sec(o.cfg.Agents.CoordIntervalSec), Run: o.coordinate})
	o.runner.Add(schedule.Task{Name: "health", Interval: sec(o.cfg.Agents.HealthIntervalSec), Immediate: true, Run: o.checkHealth})
	o.runner.Start(ctx)

	o.logger.Info("orchestrator started",
		"devices", o.store.Count(),
		"tick_interval_sec", o.cfg.Sim.TickIntervalSec,
	)
}

// Stop cancels all periodic tasks, waits for in-flight cycles, and
// closes the bus. Already-computed state stays readable.
func (o *Orchestrator) Stop() {
	o.runner.Stop()
	o.bus.Close()
	o.logger.Info("orchestrator stopped")
}

// Devices returns a copy of the current device fleet.
func (o *Orchestrator) Devices() []device.Device { return o.store.Snapshot() }

// Device returns one device by id.
func (o *Orchestrator) Device(id string) (device.Device, error) { return o.store.Get(id) }

// Readings returns up to n most recent readings, oldest first.
func (o *Orchestrator) Readings(n int) []telemetry.Reading { return o.hist.Recent(n) }

// ReadingsSince returns readings at or after t, oldest first.
func (o *Orchestrator) ReadingsSince(t time.Time) []telemetry.Reading { return o.hist.Since(t) }

// LatestReading returns the newest reading, if any.
func (o *Orchestrator) LatestReading() (telemetry.Reading, bool) { return o.hist.Latest() }

// Analysis returns the monitor agent's latest output, if any.
func (o *Orchestrator) Analysis() (monitor.Analysis, bool) { return o.monitorAgent.Latest() }

// Forecast returns the forecast agent's latest output, if any.
func (o *Orchestrator) Forecast() (forecast.Forecast, bool) { return o.forecastAgent.Latest() }

// Recommendations returns the optimizer's current ranked list.
func (o *Orchestrator) Recommendations() []optimize.Recommendation {
	return o.optimizeAgent.Active()
}

// Health returns the latest aggregated system health.
func (o *Orchestrator) Health() agent.SystemHealth {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.health
}

// ControlDevice applies one control action and broadcasts the updated
// device. An unknown id or bad value returns the error with no
// broadcast.
func (o *Orchestrator) ControlDevice(id string, action device.Action, value float64) (device.Device, error) {
	d, err := o.store.Control(id, action, value)
	if err != nil {
		return device.Device{}, err
	}
	o.bus.Publish(events.Event{Type: events.TypeDeviceUpdate, Data: d})
	o.logger.Info("device controlled", "device", id, "action", string(action), "value", value)
	return d, nil
}

// ApplyRecommendation carries out one recommendation by id through the
// optimizer.
func (o *Orchestrator) ApplyRecommendation(id string) (optimize.Recommendation, error) {
	return o.optimizeAgent.Apply(id)
}

// IngestReading accepts a reading from an external telemetry source.
// A zero timestamp is stamped with the current time.
func (o *Orchestrator) IngestReading(r telemetry.Reading) {
	if r.Timestamp.IsZero() {
		r.Timestamp = o.nowFunc()
	}
	o.hist.Append(r)
	metrics.TotalPowerWatts.Set(r.TotalPower)
	o.bus.Publish(events.Event{Type: events.TypeEnergyUpdate, Data: r})
}

// coordinate is the low-frequency observation pass: it logs which
// agents are producing output.
func (o *Orchestrator) coordinate(ctx context.Context) {
	o.logger.Debug("coordination pass",
		"monitor", string(o.monitorAgent.Status()),
		"forecast", string(o.forecastAgent.Status()),
		"optimize", string(o.optimizeAgent.Status()),
	)
}

// checkHealth aggregates agent statuses and broadcasts the result.
type healthReport struct {
	Status string            `json:"status"`
	Agents map[string]string `json:"agents"`
}

func (o *Orchestrator) checkHealth(ctx context.Context) {
	statuses := []agent.Status{
		o.monitorAgent.Status(),
		o.forecastAgent.Status(),
		o.optimizeAgent.Status(),
	}
	health := agent.Aggregate(statuses)

	o.mu.Lock()
	changed := health != o.health
	o.health = health
	o.mu.Unlock()

	report := healthReport{
		Status: string(health),
		Agents: map[string]string{
			"monitor":  string(statuses[0]),
			"forecast": string(statuses[1]),
			"optimize": string(statuses[2]),
		},
	}
	o.bus.Publish(events.Event{Type: events.TypeSystemHealth, Data: report})

	if changed {
		o.logger.Info("system health changed", "status", string(health))
	}
}
