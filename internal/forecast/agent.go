package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jouleworks/gridmind/internal/agent"
	"github.com/jouleworks/gridmind/internal/device"
	"github.com/jouleworks/gridmind/internal/events"
	"github.com/jouleworks/gridmind/internal/llm"
	"github.com/jouleworks/gridmind/internal/metrics"
	"github.com/jouleworks/gridmind/internal/prompts"
	"github.com/jouleworks/gridmind/internal/telemetry"
)

const (
	// minReadings is the history floor below which the agent emits the
	// fixed baseline curve instead of a data-driven forecast.
	minReadings = 24
	// historyWindow is how many readings feed the hourly averages.
	historyWindow = 720
	// forecastHours is the horizon length.
	forecastHours = 24
	// retainedForecasts bounds the kept forecasts used for accuracy.
	retainedForecasts = 12

	// accuracyMinAge and accuracyMaxAge bracket how old a forecast must
	// be before its prediction for the current hour is scored against
	// the actual reading.
	accuracyMinAge = 30 * time.Minute
	accuracyMaxAge = 2 * time.Hour
)

// Agent is the forecast agent. Construct with New; run on a schedule
// via Run.
type Agent struct {
	llm        llm.Client
	devices    func() []device.Device
	readings   func(n int) []telemetry.Reading
	bus        *events.Bus
	logger     *slog.Logger
	costPerKWh float64
	nowFunc    func() time.Time

	mu     sync.RWMutex
	status agent.Status
	latest *Forecast
	past   []Forecast
}

// New creates the forecast agent. devices and readings are snapshot
// accessors supplied by the orchestrator.
func New(client llm.Client, devices func() []device.Device, readings func(n int) []telemetry.Reading, bus *events.Bus, costPerKWh float64, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		llm:        client,
		devices:    devices,
		readings:   readings,
		bus:        bus,
		logger:     logger.With("agent", "forecast"),
		costPerKWh: costPerKWh,
		nowFunc:    time.Now,
		status:     agent.StatusInitializing,
	}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return "forecast" }

// Status implements agent.Agent.
func (a *Agent) Status() agent.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Latest returns the most recent forecast, or false before the first
// completed cycle.
func (a *Agent) Latest() (Forecast, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.latest == nil {
		return Forecast{}, false
	}
	return *a.latest, true
}

// Run executes one forecast cycle. Thin history yields the baseline
// curve; an LLM failure yields the statistical fallback. Run never
// fails the cycle.
func (a *Agent) Run(ctx context.Context) {
	start := a.nowFunc()
	defer func() {
		metrics.AgentCycleDuration.WithLabelValues("forecast").Observe(time.Since(start).Seconds())
	}()

	readings := a.readings(historyWindow)
	devices := a.devices()

	var (
		points    []Point
		source    string
		llmFailed bool
	)
	if len(readings) < minReadings {
		a.logger.Debug("history too thin, emitting baseline curve",
			"have", len(readings), "need", minReadings)
		points = baselinePoints(devices, start)
		source = SourceBaseline
	} else {
		points, source, llmFailed = a.aiPoints(ctx, devices, readings, start)
	}

	a.enrich(points, source)

	fc := Forecast{
		GeneratedAt: start,
		Source:      source,
		Points:      points,
	}

	a.mu.Lock()
	a.latest = &fc
	a.past = append(a.past, fc)
	if len(a.past) > retainedForecasts {
		a.past = a.past[len(a.past)-retainedForecasts:]
	}
	if llmFailed {
		a.status = agent.StatusDegraded
	} else {
		a.status = agent.StatusRunning
	}
	a.mu.Unlock()

	metrics.AgentCycles.WithLabelValues("forecast", source).Inc()
	a.bus.Publish(events.Event{Type: events.TypePredictionsUpdate, Data: fc})

	a.logger.Info("forecast complete",
		"source", source,
		"hours", len(points),
		"next_hour_watts", points[0].PredictedUsage,
	)
}

// aiForecastShape mirrors the JSON object the prompt requests.
type aiForecastShape struct {
	Hours []struct {
		Hour           int     `json:"hour"`
		PredictedUsage float64 `json:"predicted_usage"`
		PredictedCost  float64 `json:"predicted_cost"`
		Confidence     float64 `json:"confidence"`
	} `json:"hours"`
}

// aiPoints calls the LLM and validates its response. Points with
// implausible usage or out-of-range confidence are dropped; a response
// that does not survive with a full horizon falls back to the
// statistical path. The third return reports whether a configured
// backend failed.
func (a *Agent) aiPoints(ctx context.Context, devices []device.Device, readings []telemetry.Reading, now time.Time) ([]Point, string, bool) {
	hourly := hourlyRepresentatives(readings, now.Hour())
	text, err := a.llm.GenerateText(ctx, prompts.ForecastPrompt(devices, hourly, now.Hour()), llm.SampleOptions{
		MaxTokens:   1024,
		Temperature: 0.2,
		TopP:        0.9,
	})
	if err != nil {
		a.recordLLMError(err)
		metrics.Fallbacks.WithLabelValues("forecast").Inc()
		return statisticalPoints(readings, now), SourceStatistical, !errors.Is(err, llm.ErrUnconfigured)
	}
	metrics.LLMRequests.WithLabelValues("ok").Inc()

	raw, ok := llm.ExtractJSON(text)
	if !ok {
		a.logger.Warn("llm response contained no JSON object")
		return a.malformed(readings, now)
	}
	var shape aiForecastShape
	if err := json.Unmarshal([]byte(raw), &shape); err != nil {
		a.logger.Warn("llm forecast failed to parse", "error", err)
		return a.malformed(readings, now)
	}

	byHour := make(map[int]Point, forecastHours)
	for _, h := range shape.Hours {
		if h.Hour < 0 || h.Hour > 23 {
			continue
		}
		if h.PredictedUsage <= 0 || h.PredictedUsage > maxPlausibleWatts {
			continue
		}
		if h.Confidence < 0 || h.Confidence > 1 {
			continue
		}
		if _, dup := byHour[h.Hour]; dup {
			continue
		}
		byHour[h.Hour] = Point{
			Hour:           h.Hour,
			PredictedUsage: h.PredictedUsage,
			PredictedCost:  h.PredictedCost,
			Confidence:     clampConfidence(h.Confidence),
		}
	}

	// The horizon must cover each of the next 24 hours exactly once,
	// starting from the current hour. 24 copies of one hour is not a
	// forecast. Assembling from the map also fixes any ordering the
	// model chose.
	points := make([]Point, 0, forecastHours)
	for offset := 0; offset < forecastHours; offset++ {
		p, ok := byHour[(now.Hour()+offset)%24]
		if !ok {
			a.logger.Warn("llm forecast incomplete after validation",
				"valid", len(byHour), "want", forecastHours)
			return a.malformed(readings, now)
		}
		points = append(points, p)
	}
	return points, SourceAI, false
}

func (a *Agent) malformed(readings []telemetry.Reading, now time.Time) ([]Point, string, bool) {
	metrics.LLMRequests.WithLabelValues("malformed").Inc()
	metrics.Fallbacks.WithLabelValues("forecast").Inc()
	return statisticalPoints(readings, now), SourceStatistical, true
}

func (a *Agent) recordLLMError(err error) {
	switch {
	case errors.Is(err, llm.ErrUnconfigured):
		metrics.LLMRequests.WithLabelValues("unconfigured").Inc()
		a.logger.Debug("llm unconfigured, using statistical forecast")
	default:
		var authErr *llm.AuthError
		if errors.As(err, &authErr) {
			metrics.LLMRequests.WithLabelValues("auth_error").Inc()
		} else {
			metrics.LLMRequests.WithLabelValues("request_error").Inc()
		}
		a.logger.Warn("llm call failed, using statistical forecast", "error", err)
	}
}

// enrich bounds each point's usage and fills the derived fields: time
// context, cost tier, peak probability, and a cost estimate where the
// source did not supply one.
func (a *Agent) enrich(points []Point, source string) {
	for i := range points {
		p := &points[i]
		p.PredictedUsage = clampUsage(p.PredictedUsage)
		p.TimeContext = timeContext(p.Hour)
		p.CostTier = costTier(p.Hour)
		p.PeakProbability = peakProbability(p.Hour, p.PredictedUsage)
		if source != SourceAI || p.PredictedCost <= 0 {
			p.PredictedCost = p.PredictedUsage / 1000 * a.costPerKWh
		}
	}
}

// Accuracy scores the prediction made roughly an hour ago for the
// current hour against the most recent reading. It returns false when
// no forecast of suitable age exists or no reading is available.
func (a *Agent) Accuracy() (float64, bool) {
	latest := a.readings(1)
	if len(latest) == 0 {
		return 0, false
	}
	actual := latest[len(latest)-1].TotalPower
	if actual <= 0 {
		return 0, false
	}
	now := a.nowFunc()

	a.mu.RLock()
	defer a.mu.RUnlock()
	for i := len(a.past) - 1; i >= 0; i-- {
		age := now.Sub(a.past[i].GeneratedAt)
		if age < accuracyMinAge {
			continue
		}
		if age > accuracyMaxAge {
			break
		}
		for _, p := range a.past[i].Points {
			if p.Hour == now.Hour() {
				relErr := (p.PredictedUsage - actual) / actual
				if relErr < 0 {
					relErr = -relErr
				}
				score := 1 - relErr
				if score < 0 {
					score = 0
				}
				return score, true
			}
		}
	}
	return 0, false
}
