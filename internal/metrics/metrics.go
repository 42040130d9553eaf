// Package metrics defines the Prometheus instrumentation for the
// pipeline. Metrics register on the default registry and are exposed
// by the API server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gridmind"

var (
	// AgentCycles counts completed agent cycles by agent and result
	// ("ai", "statistical", "rules", "baseline", "skipped").
	AgentCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_cycles_total",
			Help:      "Completed analysis agent cycles by agent and result source.",
		},
		[]string{"agent", "result"},
	)

	// AgentCycleDuration observes wall time per agent cycle.
	AgentCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_cycle_seconds",
			Help:      "Duration of analysis agent cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"agent"},
	)

	// LLMRequests counts generation calls by outcome ("ok", "auth_error",
	// "request_error", "unconfigured", "malformed").
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM generation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// Fallbacks counts cycles that substituted deterministic output.
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Agent cycles that fell back to deterministic output.",
		},
		[]string{"agent"},
	)

	// TotalPowerWatts tracks the latest reading's total draw.
	TotalPowerWatts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_power_watts",
			Help:      "Total instantaneous power draw from the latest reading.",
		},
	)

	// ActiveRecommendations tracks the current active recommendation count.
	ActiveRecommendations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recommendations_active",
			Help:      "Recommendations currently in the active set.",
		},
	)

	// TotalSavings accumulates savings from applied recommendations.
	TotalSavings = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applied_savings_dollars_total",
			Help:      "Accumulated potential savings from applied recommendations.",
		},
	)

	// WSClients tracks connected WebSocket subscribers.
	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected WebSocket push subscribers.",
		},
	)
)
