// Package schedule provides the cancellable periodic task runner the
// orchestrator uses for every timed loop (simulation tick, agent
// cycles, coordination, health checks). Shutdown is deterministic: Stop
// cancels all tasks and waits for in-flight runs to return.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one periodic job.
type Task struct {
	// Name identifies the task in logs.
	Name string
	// Interval is the tick period. Must be positive.
	Interval time.Duration
	// Immediate runs the task once right after Start, before the first
	// tick. Agents use this so the system has output shortly after
	// startup instead of waiting a full interval.
	Immediate bool
	// Run executes one cycle. The context is cancelled at Stop; long
	// calls (LLM requests) must honor it.
	Run func(ctx context.Context)
}

// Runner owns a set of periodic tasks under one context.
type Runner struct {
	logger *slog.Logger

	mu      sync.Mutex
	tasks   []Task
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewRunner creates an empty runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Add registers a task. Must be called before Start.
func (r *Runner) Add(t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
}

// Start launches one goroutine per task. Calling Start twice is a
// no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	for _, t := range r.tasks {
		r.wg.Add(1)
		go r.loop(ctx, t)
	}
	r.logger.Debug("periodic tasks started", "tasks", len(r.tasks))
}

// Stop cancels all tasks and blocks until in-flight runs return. Safe
// to call more than once.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, t Task) {
	defer r.wg.Done()

	if t.Immediate {
		t.Run(ctx)
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("periodic task stopped", "task", t.Name)
			return
		case <-ticker.C:
			start := time.Now()
			t.Run(ctx)
			r.logger.Debug("periodic task ran",
				"task", t.Name,
				"duration", time.Since(start),
			)
		}
	}
}
