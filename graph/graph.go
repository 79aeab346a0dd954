// Package graph implements the task dependency model: readiness computation,
// cycle detection, topological ordering, and critical-path analysis. It
// performs no I/O.
package graph

import (
	"fmt"
	"sort"
	"time"

	orchestrator "github.com/flyingrobots/wesley-sub010"
)

// defaultTaskWeight is the critical-path contribution of a task with no
// duration estimate.
const defaultTaskWeight = time.Millisecond

// Graph owns a set of tasks and their dependency edges. It is built once per
// orchestration run and discarded afterwards; it is not designed for
// concurrent mutation from multiple writers.
type Graph struct {
	tasks map[string]orchestrator.Task
	order []string // insertion order, for deterministic iteration

	// dependencies[id] holds the ids this task depends on; dependents is the
	// reverse adjacency. Both may reference ids not (yet) present in tasks.
	dependencies map[string]map[string]struct{}
	dependents   map[string]map[string]struct{}
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		tasks:        make(map[string]orchestrator.Task),
		dependencies: make(map[string]map[string]struct{}),
		dependents:   make(map[string]map[string]struct{}),
	}
}

// AddTask inserts a task and updates forward and reverse adjacency.
// Re-adding an existing id overwrites the task and rebuilds its edges.
// A task that lists itself as a dependency is rejected.
func (g *Graph) AddTask(task orchestrator.Task) error {
	if task.ID == "" {
		return fmt.Errorf("task id is required")
	}
	for _, dep := range task.Dependencies {
		if dep == task.ID {
			return fmt.Errorf("task %q depends on itself", task.ID)
		}
	}

	if _, exists := g.tasks[task.ID]; exists {
		// Overwrite: drop the old edges before rebuilding.
		for dep := range g.dependencies[task.ID] {
			delete(g.dependents[dep], task.ID)
		}
		delete(g.dependencies, task.ID)
	} else {
		g.order = append(g.order, task.ID)
	}

	g.tasks[task.ID] = task

	deps := make(map[string]struct{}, len(task.Dependencies))
	for _, dep := range task.Dependencies {
		deps[dep] = struct{}{}
		if g.dependents[dep] == nil {
			g.dependents[dep] = make(map[string]struct{})
		}
		g.dependents[dep][task.ID] = struct{}{}
	}
	g.dependencies[task.ID] = deps

	return nil
}

// Task returns the task with the given id.
func (g *Graph) Task(id string) (orchestrator.Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Tasks returns all tasks in insertion order.
func (g *Graph) Tasks() []orchestrator.Task {
	out := make([]orchestrator.Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	return len(g.tasks)
}

// Dependents returns the ids of tasks that depend on the given id, sorted.
func (g *Graph) Dependents(id string) []string {
	return sortedKeys(g.dependents[id])
}

// Dependencies returns the dependency ids of the given task, sorted.
// Ids that do not resolve to a task in the graph are included.
func (g *Graph) Dependencies(id string) []string {
	return sortedKeys(g.dependencies[id])
}

// Validate returns the dependency ids referenced by tasks in the graph that
// do not resolve to a task, sorted. A non-empty result is a caller error:
// such a graph can never complete a topological order.
func (g *Graph) Validate() []string {
	missing := make(map[string]struct{})
	for _, deps := range g.dependencies {
		for dep := range deps {
			if _, ok := g.tasks[dep]; !ok {
				missing[dep] = struct{}{}
			}
		}
	}
	return sortedKeys(missing)
}

// ReadyTasks returns all tasks not yet completed whose every dependency is
// completed, sorted by priority descending with task id as the tie-breaker.
// The order is deterministic for a fixed graph and completed set.
func (g *Graph) ReadyTasks(completed map[string]struct{}) []orchestrator.Task {
	var ready []orchestrator.Task
	for _, id := range g.order {
		if _, done := completed[id]; done {
			continue
		}
		blocked := false
		for dep := range g.dependencies[id] {
			if _, done := completed[dep]; !done {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, g.tasks[id])
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].ID < ready[j].ID
	})

	return ready
}

// DetectCycles walks the graph depth-first from every unvisited node and
// records a cycle whenever a node on the current recursion stack is revisited.
// The recorded cycle runs from the node's first occurrence to the revisit,
// inclusive. At least one cycle is found if any exist; distinct overlapping
// cycles are not exhaustively enumerated.
func (g *Graph) DetectCycles() [][]string {
	var cycles [][]string

	visited := make(map[string]bool, len(g.tasks))
	onStack := make(map[string]bool, len(g.tasks))
	var path []string

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, dep := range g.Dependencies(id) {
			if _, ok := g.tasks[dep]; !ok {
				continue // unresolved foreign dependency, not a cycle
			}
			if !visited[dep] {
				visit(dep)
				continue
			}
			if onStack[dep] {
				start := 0
				for i, node := range path {
					if node == dep {
						start = i
						break
					}
				}
				cycle := append([]string(nil), path[start:]...)
				cycle = append(cycle, dep)
				cycles = append(cycles, cycle)
			}
		}

		onStack[id] = false
		path = path[:len(path)-1]
	}

	for _, id := range g.order {
		if !visited[id] {
			visit(id)
		}
	}

	return cycles
}

// ExecutionOrder computes a topological order over the dependency map using
// Kahn's algorithm. In-degrees count every dependency edge, including
// unresolved foreign ids, so a graph with either a cycle or an unresolvable
// dependency fails with a CircularDependencyError.
func (g *Graph) ExecutionOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.tasks))
	for _, id := range g.order {
		indegree[id] = len(g.dependencies[id])
	}

	var queue []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.tasks))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, dependent := range g.Dependents(id) {
			if _, ok := g.tasks[dependent]; !ok {
				continue
			}
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) < len(g.tasks) {
		return nil, &CircularDependencyError{Cycles: g.DetectCycles()}
	}

	return order, nil
}

// CriticalPath holds the longest-duration dependency chain through the graph.
type CriticalPath struct {
	// Path is the chain of task ids from first to last.
	Path []string

	// Duration is the summed weight of the chain. Tasks without a duration
	// estimate contribute one millisecond.
	Duration time.Duration

	// Tasks are the tasks on the path, in path order.
	Tasks []orchestrator.Task
}

// CriticalPath computes the longest-duration path through the DAG by dynamic
// programming over the topological order, tracking predecessors for path
// reconstruction. It fails if the graph cannot be topologically ordered.
func (g *Graph) CriticalPath() (CriticalPath, error) {
	order, err := g.ExecutionOrder()
	if err != nil {
		return CriticalPath{}, err
	}

	weight := func(id string) time.Duration {
		if d := g.tasks[id].EstimatedDuration; d > 0 {
			return d
		}
		return defaultTaskWeight
	}

	// finish[id] is the completion time of the heaviest chain ending at id.
	finish := make(map[string]time.Duration, len(order))
	prev := make(map[string]string, len(order))

	for _, id := range order {
		var best time.Duration
		bestPrev := ""
		for _, dep := range g.Dependencies(id) {
			if finish[dep] > best {
				best = finish[dep]
				bestPrev = dep
			}
		}
		finish[id] = best + weight(id)
		if bestPrev != "" {
			prev[id] = bestPrev
		}
	}

	end := ""
	var longest time.Duration
	for _, id := range order {
		if finish[id] > longest || end == "" {
			longest = finish[id]
			end = id
		}
	}

	if end == "" {
		return CriticalPath{}, nil
	}

	var path []string
	for id := end; ; {
		path = append(path, id)
		p, ok := prev[id]
		if !ok {
			break
		}
		id = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	tasks := make([]orchestrator.Task, len(path))
	for i, id := range path {
		tasks[i] = g.tasks[id]
	}

	return CriticalPath{Path: path, Duration: longest, Tasks: tasks}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
