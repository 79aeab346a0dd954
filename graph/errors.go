package graph

import (
	"fmt"
	"strings"
)

// CircularDependencyError indicates the graph cannot be topologically ordered,
// either because of a dependency cycle or because a dependency never resolves
// to a task in the graph.
type CircularDependencyError struct {
	// Cycles are the dependency cycles found, if any. Empty when the failure
	// is caused by unresolved foreign dependencies alone.
	Cycles [][]string
}

// Error implements error.
func (e *CircularDependencyError) Error() string {
	if len(e.Cycles) == 0 {
		return "graph cannot be topologically ordered: unresolved dependencies"
	}

	parts := make([]string, len(e.Cycles))
	for i, cycle := range e.Cycles {
		parts[i] = strings.Join(cycle, " -> ")
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(parts, "; "))
}
