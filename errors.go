package orchestrator

import "errors"

var (
	// ErrTaskNotFound indicates the referenced task does not exist in the graph.
	ErrTaskNotFound = errors.New("task not found")

	// ErrUnknownTaskType indicates a task carries a type the bridge has no
	// handler for.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrShutdown marks tasks force-cleared when a cancelled run exceeds its
	// shutdown grace period.
	ErrShutdown = errors.New("orchestrator shutting down")
)
