// Package agent defines the contract shared by the three analysis
// agents and the health aggregation the orchestrator reports.
package agent

import "context"

// Status is one agent's lifecycle state.
type Status string

const (
	// StatusInitializing means the agent has not completed a cycle yet.
	StatusInitializing Status = "initializing"
	// StatusRunning means the last cycle produced output through its
	// primary path, or through the deliberate fallback path when no
	// LLM backend is configured.
	StatusRunning Status = "running"
	// StatusDegraded means a configured LLM backend failed on the last
	// cycle and the agent substituted statistical output.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy means the agent cannot produce output at all.
	// Not expected in normal operation.
	StatusUnhealthy Status = "unhealthy"
)

// SystemHealth is the aggregate over all agents.
type SystemHealth string

const (
	SystemHealthy   SystemHealth = "healthy"
	SystemDegraded  SystemHealth = "degraded"
	SystemUnhealthy SystemHealth = "unhealthy"
)

// Agent is the orchestrator's view of one analysis agent.
type Agent interface {
	// Name identifies the agent in logs and health reports.
	Name() string
	// Run executes one analysis cycle. Failures are absorbed into
	// fallback output; Run never returns an error.
	Run(ctx context.Context)
	// Status returns the agent's current lifecycle state.
	Status() Status
}

// Aggregate folds per-agent statuses into one system health value:
// all running is healthy, some running is degraded, none running is
// unhealthy. Degraded agents still count as producing output, so a
// mixed fleet reports degraded rather than unhealthy.
func Aggregate(statuses []Status) SystemHealth {
	if len(statuses) == 0 {
		return SystemUnhealthy
	}
	running := 0
	for _, s := range statuses {
		if s == StatusRunning {
			running++
		}
	}
	switch {
	case running == len(statuses):
		return SystemHealthy
	case running > 0:
		return SystemDegraded
	default:
		return SystemUnhealthy
	}
}
