package orchestrator

import "time"

// TaskType selects which bridge handler executes a task.
type TaskType string

const (
	// TaskTypeSQL executes a single SQL operation through the lock-aware executor.
	TaskTypeSQL TaskType = "sql"

	// TaskTypeMigration executes an ordered list of SQL operations sequentially.
	TaskTypeMigration TaskType = "migration"

	// TaskTypeGeneration records expected artifact counts for a code-generation
	// step. Actual generation is performed by an external collaborator.
	TaskTypeGeneration TaskType = "generation"

	// TaskTypeValidation runs schema/migration sanity checks.
	TaskTypeValidation TaskType = "validation"
)

// Task is an identified unit of work in a task graph.
//
// Identity (ID and dependency edges) is immutable once the task is added to a
// graph. Configuration is never mutated in place: retries produce an extended
// copy via WithRetry so the original remains an audit record.
type Task struct {
	// ID is the unique identifier for this task within a graph.
	ID string

	// Name is a human-readable description of the task.
	Name string

	// Type selects the bridge handler for this task (default: sql).
	Type TaskType

	// Dependencies are the IDs of tasks that must complete before this one
	// becomes ready. All dependencies are hard/blocking.
	Dependencies []string

	// Resources names the resources this task needs access to.
	Resources []string

	// Priority orders ready tasks; higher runs first.
	Priority int

	// EstimatedDuration is used for critical-path computation.
	// Zero contributes one unit to path length.
	EstimatedDuration time.Duration

	// MaxRetries is the number of times a failed task is resubmitted
	// before being marked permanently failed.
	MaxRetries int

	// Timeout bounds a single execution attempt. Zero means no task-level
	// timeout; server-side statement timeouts still apply.
	Timeout time.Duration

	// RequiresExclusiveAccess marks the task as needing sole access to its
	// resources.
	RequiresExclusiveAccess bool

	// CanRunConcurrently marks the task as safe to run alongside other tasks.
	CanRunConcurrently bool

	// RetryCount is the number of attempts already consumed. It is only ever
	// set on copies produced by WithRetry.
	RetryCount int

	// Tags carry free-form labels for filtering and reporting.
	Tags []string

	// Metadata carries task-type-specific payload, e.g. "sql", "params" and
	// "transaction" for sql tasks or "operations" for migration tasks.
	Metadata map[string]any
}

// WithRetry returns a copy of the task with RetryCount incremented.
// Slices and the metadata map are copied so the original task is never
// mutated, preserving a clean audit trail of retries.
func (t Task) WithRetry() Task {
	next := t
	next.RetryCount = t.RetryCount + 1

	if t.Dependencies != nil {
		next.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.Resources != nil {
		next.Resources = append([]string(nil), t.Resources...)
	}
	if t.Tags != nil {
		next.Tags = append([]string(nil), t.Tags...)
	}
	if t.Metadata != nil {
		next.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			next.Metadata[k] = v
		}
	}

	return next
}

// Operation is a single runnable SQL statement.
type Operation struct {
	// ID identifies the operation in results and telemetry.
	ID string

	// SQL is the statement text.
	SQL string

	// Params are positional statement parameters.
	Params []any

	// Transaction wraps the statement in an explicit BEGIN/COMMIT.
	Transaction bool
}

// TaskResult records the outcome of a single task.
type TaskResult struct {
	// TaskID is the ID of the task this result belongs to.
	TaskID string

	// Success reports whether the task eventually completed.
	Success bool

	// Attempts is the total number of execution attempts, including retries.
	Attempts int

	// Duration is the wall-clock time from first start to final settlement.
	Duration time.Duration

	// Output carries handler-specific result data (e.g. rows affected,
	// expected artifact counts).
	Output map[string]any

	// Err is the final error for permanently failed tasks, nil on success.
	Err error
}

// GraphResult summarizes a full task-graph run.
// Callers always receive either a structured success or a structured failure
// with partial completion counts, never an ambiguous partial state.
type GraphResult struct {
	// Success reports whether every task in the graph completed.
	Success bool

	// Duration is the total wall-clock time of the run.
	Duration time.Duration

	// CompletedTasks lists the IDs of tasks that completed.
	CompletedTasks []string

	// FailedTasks lists the IDs of tasks that permanently failed.
	FailedTasks []string

	// Results maps task ID to its final result.
	Results map[string]TaskResult
}
