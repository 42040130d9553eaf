package optimize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jouleworks/gridmind/internal/agent"
	"github.com/jouleworks/gridmind/internal/device"
	"github.com/jouleworks/gridmind/internal/events"
	"github.com/jouleworks/gridmind/internal/forecast"
	"github.com/jouleworks/gridmind/internal/llm"
	"github.com/jouleworks/gridmind/internal/metrics"
	"github.com/jouleworks/gridmind/internal/prompts"
)

const (
	// maxRecommendations bounds the active list.
	maxRecommendations = 5
	// appliedHistoryCap bounds the applied log.
	appliedHistoryCap = 50
	// summaryHours is how much of the forecast the prompt carries.
	summaryHours = 12
)

// ErrUnknownRecommendation is returned by Apply for an id not in the
// active list.
var ErrUnknownRecommendation = errors.New("unknown recommendation id")

// ControlFunc issues one device-control command. The orchestrator
// supplies its ControlDevice method.
type ControlFunc func(deviceID string, action device.Action, value float64) error

// Agent is the optimization agent. Construct with New; run on a
// schedule via Run.
type Agent struct {
	llm      llm.Client
	devices  func() []device.Device
	forecast func() (forecast.Forecast, bool)
	control  ControlFunc
	bus      *events.Bus
	logger   *slog.Logger
	nowFunc  func() time.Time

	mu           sync.RWMutex
	status       agent.Status
	active       []Recommendation
	applied      []Applied
	totalSavings float64
}

// New creates the optimization agent. devices and forecastFn are
// snapshot accessors; control is how Apply reaches the device store.
func New(client llm.Client, devices func() []device.Device, forecastFn func() (forecast.Forecast, bool), control ControlFunc, bus *events.Bus, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		llm:      client,
		devices:  devices,
		forecast: forecastFn,
		control:  control,
		bus:      bus,
		logger:   logger.With("agent", "optimize"),
		nowFunc:  time.Now,
		status:   agent.StatusInitializing,
	}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return "optimize" }

// Status implements agent.Agent.
func (a *Agent) Status() agent.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Active returns a copy of the current ranked recommendation list.
func (a *Agent) Active() []Recommendation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Recommendation, len(a.active))
	copy(out, a.active)
	return out
}

// AppliedHistory returns a copy of the applied log, newest last.
func (a *Agent) AppliedHistory() []Applied {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Applied, len(a.applied))
	copy(out, a.applied)
	return out
}

// TotalSavings returns the accumulated savings from applied
// recommendations, in dollars.
func (a *Agent) TotalSavings() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totalSavings
}

// Run executes one optimization cycle. No forecast yet means immediate
// mode; an LLM failure yields the rule-based set. The active list is
// never left empty after a completed cycle.
func (a *Agent) Run(ctx context.Context) {
	start := a.nowFunc()
	defer func() {
		metrics.AgentCycleDuration.WithLabelValues("optimize").Observe(time.Since(start).Seconds())
	}()

	devices := a.devices()
	fc, haveForecast := a.forecast()

	recs, source, llmFailed := a.aiRecommendations(ctx, devices, fc, haveForecast, start)
	// Score and rank the full candidate set before cutting to the cap,
	// so a late-listed candidate can still make the top of the list.
	recs = enhance(recs, devices, start, source)
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}

	a.mu.Lock()
	a.active = recs
	if llmFailed {
		a.status = agent.StatusDegraded
	} else {
		a.status = agent.StatusRunning
	}
	a.mu.Unlock()

	metrics.AgentCycles.WithLabelValues("optimize", source).Inc()
	metrics.ActiveRecommendations.Set(float64(len(recs)))
	a.bus.Publish(events.Event{Type: events.TypeRecommendationsUpdate, Data: recs})

	a.logger.Info("optimization complete",
		"source", source,
		"recommendations", len(recs),
		"immediate", !haveForecast,
	)
}

// aiRecShape mirrors the JSON object the prompt requests.
type aiRecShape struct {
	Recommendations []struct {
		Title            string   `json:"title"`
		Description      string   `json:"description"`
		Category         string   `json:"category"`
		PotentialSavings float64  `json:"potential_savings"`
		Priority         string   `json:"priority"`
		Difficulty       string   `json:"difficulty"`
		DeviceIDs        []string `json:"device_ids"`
		Action           string   `json:"action"`
		Value            *float64 `json:"value"`
	} `json:"recommendations"`
}

// aiRecommendations calls the LLM and validates its response. Any
// failure yields the deterministic rule set. The third return reports
// whether a configured backend failed.
func (a *Agent) aiRecommendations(ctx context.Context, devices []device.Device, fc forecast.Forecast, haveForecast bool, now time.Time) ([]Recommendation, string, bool) {
	summary := ""
	if haveForecast {
		summary = summarizeForecast(fc)
	}
	text, err := a.llm.GenerateText(ctx, prompts.OptimizationPrompt(devices, summary, now.Hour()), llm.SampleOptions{
		MaxTokens:   1024,
		Temperature: 0.4,
		TopP:        0.9,
	})
	if err != nil {
		a.recordLLMError(err)
		metrics.Fallbacks.WithLabelValues("optimize").Inc()
		return a.ruleFallback(devices, now), SourceRules, !errors.Is(err, llm.ErrUnconfigured)
	}
	metrics.LLMRequests.WithLabelValues("ok").Inc()

	raw, ok := llm.ExtractJSON(text)
	if !ok {
		a.logger.Warn("llm response contained no JSON object")
		return a.malformed(devices, now)
	}
	var shape aiRecShape
	if err := json.Unmarshal([]byte(raw), &shape); err != nil {
		a.logger.Warn("llm recommendations failed to parse", "error", err)
		return a.malformed(devices, now)
	}

	known := make(map[string]bool, len(devices))
	for _, d := range devices {
		known[d.ID] = true
	}
	recs := make([]Recommendation, 0, len(shape.Recommendations))
	for _, r := range shape.Recommendations {
		if r.Title == "" || r.PotentialSavings < 0 {
			continue
		}
		ids := r.DeviceIDs[:0:0]
		for _, id := range r.DeviceIDs {
			if known[id] {
				ids = append(ids, id)
			}
		}
		recs = append(recs, Recommendation{
			Title:            r.Title,
			Description:      r.Description,
			Category:         r.Category,
			PotentialSavings: r.PotentialSavings,
			Priority:         r.Priority,
			Difficulty:       r.Difficulty,
			DeviceIDs:        ids,
			Action:           r.Action,
			Value:            r.Value,
		})
	}
	if len(recs) == 0 {
		a.logger.Warn("llm returned no usable recommendations")
		return a.malformed(devices, now)
	}
	return recs, SourceAI, false
}

func (a *Agent) malformed(devices []device.Device, now time.Time) ([]Recommendation, string, bool) {
	metrics.LLMRequests.WithLabelValues("malformed").Inc()
	metrics.Fallbacks.WithLabelValues("optimize").Inc()
	return a.ruleFallback(devices, now), SourceRules, true
}

func (a *Agent) ruleFallback(devices []device.Device, now time.Time) []Recommendation {
	var total float64
	for _, d := range devices {
		total += d.CurrentPower
	}
	return ruleRecommendations(devices, total, now.Hour())
}

func (a *Agent) recordLLMError(err error) {
	switch {
	case errors.Is(err, llm.ErrUnconfigured):
		metrics.LLMRequests.WithLabelValues("unconfigured").Inc()
		a.logger.Debug("llm unconfigured, using rule-based recommendations")
	default:
		var authErr *llm.AuthError
		if errors.As(err, &authErr) {
			metrics.LLMRequests.WithLabelValues("auth_error").Inc()
		} else {
			metrics.LLMRequests.WithLabelValues("request_error").Inc()
		}
		a.logger.Warn("llm call failed, using rule-based recommendations", "error", err)
	}
}

// Apply carries out the recommendation with the given id: one control
// command per affected device. Any command failure leaves the
// recommendation active and returns the error; on success it moves to
// the applied log and its savings accrue.
func (a *Agent) Apply(id string) (Recommendation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := -1
	for i, r := range a.active {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Recommendation{}, fmt.Errorf("%w: %s", ErrUnknownRecommendation, id)
	}
	rec := a.active[idx]

	if rec.Action != "" && len(rec.DeviceIDs) > 0 {
		action, err := device.ParseAction(rec.Action)
		if err != nil {
			return Recommendation{}, fmt.Errorf("recommendation %s is not automatable: %w", id, err)
		}
		var value float64
		if rec.Value != nil {
			value = *rec.Value
		}
		for _, deviceID := range rec.DeviceIDs {
			if err := a.control(deviceID, action, value); err != nil {
				return Recommendation{}, fmt.Errorf("applying %s to device %s: %w", id, deviceID, err)
			}
		}
	}

	a.active = append(a.active[:idx], a.active[idx+1:]...)
	for i := range a.active {
		a.active[i].Rank = i + 1
	}
	a.applied = append(a.applied, Applied{Recommendation: rec, AppliedAt: a.nowFunc()})
	if len(a.applied) > appliedHistoryCap {
		a.applied = a.applied[len(a.applied)-appliedHistoryCap:]
	}
	a.totalSavings += rec.PotentialSavings

	metrics.TotalSavings.Add(rec.PotentialSavings)
	metrics.ActiveRecommendations.Set(float64(len(a.active)))
	remaining := make([]Recommendation, len(a.active))
	copy(remaining, a.active)
	a.bus.Publish(events.Event{Type: events.TypeRecommendationsUpdate, Data: remaining})

	a.logger.Info("recommendation applied",
		"id", rec.ID,
		"title", rec.Title,
		"savings", rec.PotentialSavings,
	)
	return rec, nil
}

// summarizeForecast renders the near-term forecast for the prompt.
func summarizeForecast(fc forecast.Forecast) string {
	var b strings.Builder
	points := fc.Points
	if len(points) > summaryHours {
		points = points[:summaryHours]
	}
	for _, p := range points {
		fmt.Fprintf(&b, "- hour %02d: %.0f W, $%.2f, %s tier (confidence %.2f)\n",
			p.Hour, p.PredictedUsage, p.PredictedCost, p.CostTier, p.Confidence)
	}
	return b.String()
}
