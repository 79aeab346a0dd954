// Package bridge drives a task graph to completion through the lock-aware
// executor. It pulls ready tasks from the graph, starts them under a
// concurrency ceiling, applies per-task timeouts and retry budgets, and
// dispatches each task to a handler selected by its type.
package bridge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	orchestrator "github.com/flyingrobots/wesley-sub010"
	"github.com/flyingrobots/wesley-sub010/executor"
	"github.com/flyingrobots/wesley-sub010/graph"
	"github.com/flyingrobots/wesley-sub010/metrics"
)

// Config holds configuration for the Bridge.
type Config struct {
	// Executor runs the SQL behind sql and migration tasks (required).
	Executor *executor.Executor

	// MaxConcurrentTasks caps how many tasks run at once (default: 3).
	MaxConcurrentTasks int64

	// RetryBaseDelay is the first retry backoff; it doubles with each
	// consumed retry (default: 1s).
	RetryBaseDelay time.Duration

	// ShutdownGrace bounds how long a cancelled run waits for in-flight
	// tasks before force-clearing bookkeeping (default: 30s). Underlying
	// database statements are not cancelled past the grace period; they run
	// to completion or server-side timeout independently.
	ShutdownGrace time.Duration

	// Logger is for observability (optional).
	Logger orchestrator.Logger

	// Collector records Prometheus metrics (optional; nil records nothing).
	Collector *metrics.Collector
}

// Bridge executes task graphs. All state is per-run; one Bridge can execute
// multiple graphs sequentially, and independent bridges can coexist.
type Bridge struct {
	config Config
	sem    *semaphore.Weighted
}

// New creates a new Bridge with the given configuration.
// Returns an error if no executor is provided.
func New(cfg Config) (*Bridge, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("bridge: executor is required")
	}
	if cfg.MaxConcurrentTasks == 0 {
		cfg.MaxConcurrentTasks = 3
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}

	return &Bridge{
		config: cfg,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrentTasks),
	}, nil
}

type settlement struct {
	task   orchestrator.Task
	result orchestrator.TaskResult
}

// ExecuteTaskGraph runs every task in the graph, respecting dependency order,
// priority and the concurrency ceiling. It refuses cyclic graphs and graphs
// with unresolved dependencies before starting anything.
//
// A permanently failed task blocks all of its dependents; when no task can
// start and none is running while work remains, the run stops with a
// *StallError instead of hanging. The returned GraphResult is populated on
// failure paths too, so callers always get completion counts.
func (b *Bridge) ExecuteTaskGraph(ctx context.Context, g *graph.Graph) (orchestrator.GraphResult, error) {
	start := time.Now()

	if unresolved := g.Validate(); len(unresolved) > 0 {
		b.config.Collector.IncGraphRun("rejected")
		return orchestrator.GraphResult{}, fmt.Errorf("%w: graph references unknown tasks %v", orchestrator.ErrTaskNotFound, unresolved)
	}
	if cycles := g.DetectCycles(); len(cycles) > 0 {
		b.config.Collector.IncGraphRun("rejected")
		return orchestrator.GraphResult{}, &graph.CircularDependencyError{Cycles: cycles}
	}

	total := g.Len()
	completed := make(map[string]struct{}, total)
	failed := make(map[string]struct{})
	running := make(map[string]struct{})
	results := make(map[string]orchestrator.TaskResult, total)

	// Buffered to the task count so a late settlement after shutdown
	// force-clear never blocks its goroutine.
	settlements := make(chan settlement, total)

	record := func(s settlement) {
		delete(running, s.task.ID)
		results[s.task.ID] = s.result
		if s.result.Success {
			completed[s.task.ID] = struct{}{}
			b.config.Collector.IncTaskCompleted(string(taskType(s.task)))
		} else {
			failed[s.task.ID] = struct{}{}
			b.config.Collector.IncTaskFailed(string(taskType(s.task)))
		}
		b.config.Collector.ObserveTaskDuration(string(taskType(s.task)), s.result.Duration.Seconds())
		b.config.Collector.SetRunningTasks(len(running))
	}

	finish := func(success bool, outcome string) orchestrator.GraphResult {
		b.config.Collector.IncGraphRun(outcome)
		return orchestrator.GraphResult{
			Success:        success,
			Duration:       time.Since(start),
			CompletedTasks: sortedIDs(completed),
			FailedTasks:    sortedIDs(failed),
			Results:        results,
		}
	}

	for len(completed) < total {
		started := 0
		for _, task := range g.ReadyTasks(completed) {
			if _, ok := running[task.ID]; ok {
				continue
			}
			if _, ok := failed[task.ID]; ok {
				continue
			}
			if !b.sem.TryAcquire(1) {
				break
			}
			running[task.ID] = struct{}{}
			b.config.Collector.SetRunningTasks(len(running))
			if b.config.Logger != nil {
				b.config.Logger.Info(ctx, "starting task",
					"taskID", task.ID, "type", string(taskType(task)), "priority", task.Priority)
			}
			go b.runTask(ctx, task, settlements)
			started++
		}

		if started == 0 && len(running) == 0 {
			err := &StallError{
				FailedTasks: sortedIDs(failed),
				Remaining:   b.remaining(g, completed),
			}
			if b.config.Logger != nil {
				b.config.Logger.Error(ctx, "graph execution stalled",
					"failed", err.FailedTasks, "remaining", err.Remaining)
			}
			return finish(false, "stalled"), err
		}

		select {
		case s := <-settlements:
			record(s)
		case <-ctx.Done():
			b.drain(running, settlements, record, func(id string) {
				failed[id] = struct{}{}
				results[id] = orchestrator.TaskResult{
					TaskID: id,
					Err:    fmt.Errorf("task %s: %w", id, orchestrator.ErrShutdown),
				}
			})
			return finish(false, "cancelled"), fmt.Errorf("graph execution cancelled: %w", ctx.Err())
		}
	}

	return finish(true, "success"), nil
}

// drain waits up to the shutdown grace period for in-flight tasks, then
// force-clears bookkeeping for whatever is still running. Force-cleared tasks
// get a shutdown failure result; their database statements are not cancelled
// and run to completion or server-side timeout on their own.
func (b *Bridge) drain(running map[string]struct{}, settlements <-chan settlement, record func(settlement), forceFail func(id string)) {
	grace := time.NewTimer(b.config.ShutdownGrace)
	defer grace.Stop()

	for len(running) > 0 {
		select {
		case s := <-settlements:
			record(s)
		case <-grace.C:
			for id := range running {
				forceFail(id)
				delete(running, id)
			}
			b.config.Collector.SetRunningTasks(0)
			return
		}
	}
}

// runTask executes one task, consuming its retry budget on failure. Each
// retry operates on an extended copy of the task so the original value stays
// an untouched audit record.
func (b *Bridge) runTask(ctx context.Context, task orchestrator.Task, out chan<- settlement) {
	// Released here rather than by the receiver so a task that outlives the
	// shutdown grace period still frees its slot when it finishes.
	defer b.sem.Release(1)

	start := time.Now()
	current := task
	attempts := 0

	var (
		output  map[string]any
		lastErr error
	)
	for {
		attempts++
		output, lastErr = b.attempt(ctx, current)
		if lastErr == nil || ctx.Err() != nil {
			break
		}
		if current.RetryCount >= current.MaxRetries {
			break
		}

		delay := b.config.RetryBaseDelay << current.RetryCount
		b.config.Collector.IncTaskRetry()
		if b.config.Logger != nil {
			b.config.Logger.Warn(ctx, "task failed, retrying",
				"taskID", current.ID, "attempt", attempts, "backoff", delay, "error", lastErr)
		}
		select {
		case <-ctx.Done():
			lastErr = fmt.Errorf("task %s: %w", current.ID, ctx.Err())
		case <-time.After(delay):
			current = current.WithRetry()
			continue
		}
		break
	}

	if lastErr != nil {
		lastErr = fmt.Errorf("task %s failed after %d attempt(s): %w", task.ID, attempts, lastErr)
	}

	out <- settlement{
		task: task,
		result: orchestrator.TaskResult{
			TaskID:   task.ID,
			Success:  lastErr == nil,
			Attempts: attempts,
			Duration: time.Since(start),
			Output:   output,
			Err:      lastErr,
		},
	}
}

// attempt runs a single execution attempt under the task's timeout.
func (b *Bridge) attempt(ctx context.Context, task orchestrator.Task) (map[string]any, error) {
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	switch taskType(task) {
	case orchestrator.TaskTypeSQL:
		return b.handleSQL(ctx, task)
	case orchestrator.TaskTypeMigration:
		return b.handleMigration(ctx, task)
	case orchestrator.TaskTypeGeneration:
		return b.handleGeneration(ctx, task)
	case orchestrator.TaskTypeValidation:
		return b.handleValidation(ctx, task)
	default:
		return nil, fmt.Errorf("task %s: %w: %q", task.ID, orchestrator.ErrUnknownTaskType, task.Type)
	}
}

func (b *Bridge) remaining(g *graph.Graph, completed map[string]struct{}) []string {
	var out []string
	for _, task := range g.Tasks() {
		if _, ok := completed[task.ID]; !ok {
			out = append(out, task.ID)
		}
	}
	sort.Strings(out)
	return out
}

// taskType applies the sql default for tasks created without an explicit type.
func taskType(task orchestrator.Task) orchestrator.TaskType {
	if task.Type == "" {
		return orchestrator.TaskTypeSQL
	}
	return task.Type
}

func sortedIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
