package monitor

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
	// minReadings is the history floor below which a cycle is a no-op.
	minReadings = 10
	// statsWindow is how many readings feed the statistical block.
	statsWindow = 288
	// trendWindow is how many past analyses the trend looks across.
	trendWindow = 5
	// trendDelta is the efficiency-score change (in score points on the
	// 0-1 scale) that separates improving/declining from stable.
	trendDelta = 0.05
	// historyCap bounds the retained analysis history.
	historyCap = 24
)

// Agent is the monitoring agent. Construct with New; run on a schedule
// via Run.
type Agent struct {
	llm      llm.Client
	devices  func() []device.Device
	readings func(n int) []telemetry.Reading
	bus      *events.Bus
	logger   *slog.Logger
	nowFunc  func() time.Time

	mu      sync.RWMutex
	status  agent.Status
	latest  *Analysis
	history []Analysis
}

// New creates the monitoring agent. devices and readings are snapshot
// accessors supplied by the orchestrator; the agent never touches the
// live store.
func New(client llm.Client, devices func() []device.Device, readings func(n int) []telemetry.Reading, bus *events.Bus, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		llm:      client,
		devices:  devices,
		readings: readings,
		bus:      bus,
		logger:   logger.With("agent", "monitor"),
		nowFunc:  time.Now,
		status:   agent.StatusInitializing,
	}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return "monitor" }

// Status implements agent.Agent.
func (a *Agent) Status() agent.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Latest returns the most recent analysis, or false before the first
// completed cycle.
func (a *Agent) Latest() (Analysis, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.latest == nil {
		return Analysis{}, false
	}
	return *a.latest, true
}

// Run executes one monitoring cycle. Insufficient history is a no-op,
// not an error; an LLM failure degrades to the statistical default.
// Run never fails the cycle.
func (a *Agent) Run(ctx context.Context) {
	start := a.nowFunc()
	defer func() {
		metrics.AgentCycleDuration.WithLabelValues("monitor").Observe(time.Since(start).Seconds())
	}()

	readings := a.readings(statsWindow)
	if len(readings) < minReadings {
		a.logger.Debug("skipping cycle, not enough history",
			"have", len(readings), "need", minReadings)
		metrics.AgentCycles.WithLabelValues("monitor", "skipped").Inc()
		return
	}
	devices := a.devices()

	insight, source, llmFailed := a.aiInsight(ctx, devices, readings)

	analysis := Analysis{
		Timestamp:   start,
		Source:      source,
		Insight:     insight,
		Stats:       computeStats(readings),
		Performance: classifyDevices(devices),
		Anomalies:   detectAnomalies(devices, readings),
	}

	a.mu.Lock()
	a.history = append(a.history, analysis)
	if len(a.history) > historyCap {
		a.history = a.history[len(a.history)-historyCap:]
	}
	analysis.Trend = trend(a.history)
	a.history[len(a.history)-1].Trend = analysis.Trend
	a.latest = &analysis
	if llmFailed {
		a.status = agent.StatusDegraded
	} else {
		a.status = agent.StatusRunning
	}
	a.mu.Unlock()

	metrics.AgentCycles.WithLabelValues("monitor", source).Inc()
	a.bus.Publish(events.Event{Type: events.TypeAnalysisUpdate, Data: analysis})

	a.logger.Info("analysis complete",
		"source", source,
		"efficiency", analysis.Insight.EfficiencyScore,
		"anomalies", len(analysis.Anomalies),
		"reported", prompts.SummarizeAnomalies(analysis.Insight.Anomalies),
		"trend", analysis.Trend,
	)
}

// aiInsightShape mirrors the JSON object the prompt requests.
type aiInsightShape struct {
	EfficiencyScore float64  `json:"efficiency_score"`
	Anomalies       []string `json:"anomalies"`
	Insights        []string `json:"insights"`
	PotentialIssues []string `json:"potential_issues"`
}

// aiInsight calls the LLM and parses its response. Any failure,
// unconfigured backend, network, malformed JSON, yields the
// statistical default; the cycle itself never fails. The third return
// reports whether a configured backend failed (an unconfigured backend
// makes fallback the agent's normal mode, not a degradation).
func (a *Agent) aiInsight(ctx context.Context, devices []device.Device, readings []telemetry.Reading) (Insight, string, bool) {
	text, err := a.llm.GenerateText(ctx, prompts.MonitoringPrompt(devices, readings), llm.SampleOptions{
		MaxTokens:     512,
		Temperature:   0.2,
		TopP:          0.9,
		StopSequences: prompts.MonitoringStops(),
	})
	if err != nil {
		a.recordLLMError(err)
		metrics.Fallbacks.WithLabelValues("monitor").Inc()
		return defaultInsight(), SourceStatistical, !errors.Is(err, llm.ErrUnconfigured)
	}
	metrics.LLMRequests.WithLabelValues("ok").Inc()

	raw, ok := llm.ExtractJSON(text)
	if !ok {
		a.logger.Warn("llm response contained no JSON object")
		metrics.LLMRequests.WithLabelValues("malformed").Inc()
		metrics.Fallbacks.WithLabelValues("monitor").Inc()
		return defaultInsight(), SourceStatistical, true
	}

	var shape aiInsightShape
	if err := json.Unmarshal([]byte(raw), &shape); err != nil {
		a.logger.Warn("llm insight failed to parse", "error", err)
		metrics.LLMRequests.WithLabelValues("malformed").Inc()
		metrics.Fallbacks.WithLabelValues("monitor").Inc()
		return defaultInsight(), SourceStatistical, true
	}

	return Insight{
		EfficiencyScore: clamp(shape.EfficiencyScore, 0, 1),
		Anomalies:       shape.Anomalies,
		Insights:        shape.Insights,
		PotentialIssues: shape.PotentialIssues,
		Available:       true,
	}, SourceAI, false
}

func (a *Agent) recordLLMError(err error) {
	switch {
	case errors.Is(err, llm.ErrUnconfigured):
		metrics.LLMRequests.WithLabelValues("unconfigured").Inc()
		a.logger.Debug("llm unconfigured, using statistical insight")
	default:
		var authErr *llm.AuthError
		if errors.As(err, &authErr) {
			metrics.LLMRequests.WithLabelValues("auth_error").Inc()
		} else {
			metrics.LLMRequests.WithLabelValues("request_error").Inc()
		}
		a.logger.Warn("llm call failed, using statistical insight", "error", err)
	}
}

// defaultInsight is the statistically-derived substitute: mid-range
// efficiency, no claims.
func defaultInsight() Insight {
	return Insight{
		EfficiencyScore: 0.5,
		Anomalies:       []string{},
		Insights:        []string{},
		PotentialIssues: []string{},
		Available:       false,
	}
}

// trend compares the earliest and latest efficiency scores across the
// last trendWindow analyses.
func trend(history []Analysis) string {
	window := history
	if len(window) > trendWindow {
		window = window[len(window)-trendWindow:]
	}
	if len(window) < 2 {
		return TrendStable
	}

	diff := window[len(window)-1].Insight.EfficiencyScore - window[0].Insight.EfficiencyScore
	switch {
	case diff > trendDelta:
		return TrendImproving
	case diff < -trendDelta:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
