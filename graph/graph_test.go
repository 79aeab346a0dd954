package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orchestrator "github.com/flyingrobots/wesley-sub010"
)

func task(id string, priority int, deps ...string) orchestrator.Task {
	return orchestrator.Task{ID: id, Priority: priority, Dependencies: deps}
}

func completedSet(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func TestAddTask_RejectsEmptyID(t *testing.T) {
	g := New()

	err := g.AddTask(orchestrator.Task{})

	require.Error(t, err)
	assert.Equal(t, 0, g.Len())
}

func TestAddTask_RejectsSelfLoop(t *testing.T) {
	g := New()

	err := g.AddTask(task("a", 0, "a"))

	require.Error(t, err)
}

func TestAddTask_ReAddingSameIDOverwrites(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(task("a", 1, "b")))
	require.NoError(t, g.AddTask(task("b", 1)))

	require.NoError(t, g.AddTask(task("a", 7)))

	got, ok := g.Task("a")
	require.True(t, ok)
	assert.Equal(t, 7, got.Priority)
	assert.Empty(t, g.Dependencies("a"), "old edges should be dropped on overwrite")
	assert.Equal(t, 2, g.Len())
}

func TestValidate_ReportsUnresolvedDependencies(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(task("a", 0, "missing-1", "missing-2")))

	unresolved := g.Validate()

	assert.Equal(t, []string{"missing-1", "missing-2"}, unresolved)
}

func TestReadyTasks_PriorityDescending(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(task("A", 1)))
	require.NoError(t, g.AddTask(task("B", 5)))

	ready := g.ReadyTasks(nil)

	require.Len(t, ready, 2)
	assert.Equal(t, "B", ready[0].ID)
	assert.Equal(t, "A", ready[1].ID)
}

func TestReadyTasks_TiesBreakByID(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(task("zeta", 3)))
	require.NoError(t, g.AddTask(task("alpha", 3)))

	ready := g.ReadyTasks(nil)

	require.Len(t, ready, 2)
	assert.Equal(t, "alpha", ready[0].ID)
	assert.Equal(t, "zeta", ready[1].ID)
}

func TestReadyTasks_PrepareLintTestScenario(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(task("prepare", 1)))
	require.NoError(t, g.AddTask(task("lint", 5)))
	require.NoError(t, g.AddTask(task("test", 3, "prepare", "lint")))

	ready := g.ReadyTasks(nil)
	require.Len(t, ready, 2)
	assert.Equal(t, "lint", ready[0].ID)
	assert.Equal(t, "prepare", ready[1].ID)

	ready = g.ReadyTasks(completedSet("lint"))
	require.Len(t, ready, 1)
	assert.Equal(t, "prepare", ready[0].ID)

	ready = g.ReadyTasks(completedSet("lint", "prepare"))
	require.Len(t, ready, 1)
	assert.Equal(t, "test", ready[0].ID)
}

func TestReadyTasks_ExcludesCompleted(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(task("a", 0)))

	assert.Empty(t, g.ReadyTasks(completedSet("a")))
}

func TestDetectCycles_AcyclicGraphIsClean(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(task("a", 0)))
	require.NoError(t, g.AddTask(task("b", 0, "a")))
	require.NoError(t, g.AddTask(task("c", 0, "a", "b")))

	assert.Empty(t, g.DetectCycles())
}

func TestDetectCycles_FindsTwoNodeCycle(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(task("a", 0, "b")))
	require.NoError(t, g.AddTask(task("b", 0, "a")))

	cycles := g.DetectCycles()

	require.NotEmpty(t, cycles)
	assert.GreaterOrEqual(t, len(cycles[0]), 2)
}

func TestExecutionOrder_DependenciesPrecedeDependents(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(task("a", 0)))
	require.NoError(t, g.AddTask(task("b", 0, "a")))
	require.NoError(t, g.AddTask(task("c", 0, "b")))
	require.NoError(t, g.AddTask(task("d", 0, "a")))

	order, err := g.ExecutionOrder()

	require.NoError(t, err)
	require.Len(t, order, 4)
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, taskID := range []string{"b", "c", "d"} {
		for _, dep := range g.Dependencies(taskID) {
			assert.Less(t, pos[dep], pos[taskID], "%s should precede %s", dep, taskID)
		}
	}
}

func TestExecutionOrder_CycleFailsWithCircularDependencyError(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(task("a", 0, "c")))
	require.NoError(t, g.AddTask(task("b", 0, "a")))
	require.NoError(t, g.AddTask(task("c", 0, "b")))

	_, err := g.ExecutionOrder()

	var cdErr *CircularDependencyError
	require.ErrorAs(t, err, &cdErr)
	assert.NotEmpty(t, cdErr.Cycles)
}

func TestExecutionOrder_UnresolvedDependencyFails(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(task("a", 0, "ghost")))

	_, err := g.ExecutionOrder()

	require.Error(t, err)
}

func TestCriticalPath_PicksLongestChain(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(orchestrator.Task{ID: "a", EstimatedDuration: 100 * time.Millisecond}))
	require.NoError(t, g.AddTask(orchestrator.Task{ID: "b", Dependencies: []string{"a"}, EstimatedDuration: 500 * time.Millisecond}))
	require.NoError(t, g.AddTask(orchestrator.Task{ID: "c", Dependencies: []string{"a"}, EstimatedDuration: 50 * time.Millisecond}))
	require.NoError(t, g.AddTask(orchestrator.Task{ID: "d", Dependencies: []string{"b", "c"}, EstimatedDuration: 200 * time.Millisecond}))

	cp, err := g.CriticalPath()

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d"}, cp.Path)
	assert.Equal(t, 800*time.Millisecond, cp.Duration)
	require.Len(t, cp.Tasks, 3)
	assert.Equal(t, "a", cp.Tasks[0].ID)
}

func TestCriticalPath_ZeroEstimatesCountOneUnit(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(task("a", 0)))
	require.NoError(t, g.AddTask(task("b", 0, "a")))
	require.NoError(t, g.AddTask(task("c", 0, "b")))

	cp, err := g.CriticalPath()

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, cp.Path)
	assert.Equal(t, 3*time.Millisecond, cp.Duration)
}

func TestCriticalPath_CyclicGraphFails(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(task("a", 0, "b")))
	require.NoError(t, g.AddTask(task("b", 0, "a")))

	_, err := g.CriticalPath()

	require.Error(t, err)
}
