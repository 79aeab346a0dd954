package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orchestrator "github.com/flyingrobots/wesley-sub010"
	"github.com/flyingrobots/wesley-sub010/db"
	"github.com/flyingrobots/wesley-sub010/executor"
	"github.com/flyingrobots/wesley-sub010/graph"
)

func newTestBridge(t *testing.T, pool *db.MockPool) *Bridge {
	t.Helper()
	exec := executor.New(executor.Config{
		Pool:              pool,
		RetryBaseDelay:    time.Millisecond,
		QueuePollInterval: time.Millisecond,
	})
	b, err := New(Config{Executor: exec, RetryBaseDelay: time.Millisecond})
	require.NoError(t, err)
	return b
}

func sqlTask(id string, priority int, sql string, deps ...string) orchestrator.Task {
	return orchestrator.Task{
		ID:           id,
		Priority:     priority,
		Type:         orchestrator.TaskTypeSQL,
		Dependencies: deps,
		Metadata:     map[string]any{"sql": sql},
	}
}

func buildGraph(t *testing.T, tasks ...orchestrator.Task) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, task := range tasks {
		require.NoError(t, g.AddTask(task))
	}
	return g
}

func TestNew_RequiresExecutor(t *testing.T) {
	_, err := New(Config{})

	require.Error(t, err)
}

func TestExecuteTaskGraph_RunsAllTasksInDependencyOrder(t *testing.T) {
	pool := db.NewMockPool()
	var mu sync.Mutex
	var executed []string
	pool.Conn.ExecContextFunc = func(ctx context.Context, query string, args ...any) (int64, error) {
		if !strings.HasPrefix(query, "SET ") {
			mu.Lock()
			executed = append(executed, query)
			mu.Unlock()
		}
		return 1, nil
	}
	b := newTestBridge(t, pool)

	g := buildGraph(t,
		sqlTask("create", 0, "CREATE TABLE users (id bigint)"),
		sqlTask("seed", 0, "INSERT INTO users (id) VALUES (1)", "create"),
		sqlTask("verify", 0, "SELECT count(*) FROM users", "seed"),
	)

	result, err := b.ExecuteTaskGraph(context.Background(), g)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"create", "seed", "verify"}, result.CompletedTasks)
	assert.Empty(t, result.FailedTasks)
	require.Len(t, result.Results, 3)
	assert.True(t, result.Results["seed"].Success)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"CREATE TABLE users (id bigint)",
		"INSERT INTO users (id) VALUES (1)",
		"SELECT count(*) FROM users",
	}, executed)
}

func TestExecuteTaskGraph_RejectsCyclicGraph(t *testing.T) {
	pool := db.NewMockPool()
	b := newTestBridge(t, pool)

	g := buildGraph(t,
		sqlTask("a", 0, "SELECT 1", "b"),
		sqlTask("b", 0, "SELECT 2", "a"),
	)

	_, err := b.ExecuteTaskGraph(context.Background(), g)

	var cdErr *graph.CircularDependencyError
	require.ErrorAs(t, err, &cdErr)
	assert.Equal(t, 0, pool.AcquireCalls, "nothing executes on a cyclic graph")
}

func TestExecuteTaskGraph_RejectsUnresolvedDependencies(t *testing.T) {
	pool := db.NewMockPool()
	b := newTestBridge(t, pool)

	g := buildGraph(t, sqlTask("a", 0, "SELECT 1", "ghost"))

	_, err := b.ExecuteTaskGraph(context.Background(), g)

	require.Error(t, err)
	assert.ErrorIs(t, err, orchestrator.ErrTaskNotFound)
	assert.Contains(t, err.Error(), "ghost")
}

func TestExecuteTaskGraph_FailedTaskBlocksDependentsAndStalls(t *testing.T) {
	pool := db.NewMockPool()
	pool.Conn.ExecContextFunc = func(ctx context.Context, query string, args ...any) (int64, error) {
		if strings.HasPrefix(query, "INSERT") {
			return 0, errors.New("table missing")
		}
		return 1, nil
	}
	b := newTestBridge(t, pool)

	g := buildGraph(t,
		sqlTask("ok", 0, "SELECT 1"),
		sqlTask("broken", 0, "INSERT INTO missing VALUES (1)"),
		sqlTask("blocked", 0, "SELECT 2", "broken"),
	)

	result, err := b.ExecuteTaskGraph(context.Background(), g)

	var stallErr *StallError
	require.ErrorAs(t, err, &stallErr)
	assert.Equal(t, []string{"broken"}, stallErr.FailedTasks)
	assert.Equal(t, []string{"blocked", "broken"}, stallErr.Remaining)

	assert.False(t, result.Success)
	assert.Equal(t, []string{"ok"}, result.CompletedTasks)
	assert.Equal(t, []string{"broken"}, result.FailedTasks)
	require.Contains(t, result.Results, "broken")
	assert.Error(t, result.Results["broken"].Err)
	assert.NotContains(t, result.Results, "blocked", "blocked tasks never start")
}

func TestExecuteTaskGraph_RetriesFailedTaskUntilSuccess(t *testing.T) {
	pool := db.NewMockPool()
	var mu sync.Mutex
	attempts := 0
	pool.Conn.ExecContextFunc = func(ctx context.Context, query string, args ...any) (int64, error) {
		if strings.HasPrefix(query, "SET ") {
			return 0, nil
		}
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 1, nil
	}
	b := newTestBridge(t, pool)

	task := sqlTask("flaky", 0, "INSERT INTO events VALUES (1)")
	task.MaxRetries = 3
	g := buildGraph(t, task)

	result, err := b.ExecuteTaskGraph(context.Background(), g)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Results["flaky"].Attempts)
}

func TestExecuteTaskGraph_RetryBudgetExhausted(t *testing.T) {
	pool := db.NewMockPool()
	pool.Conn.ExecContextFunc = func(ctx context.Context, query string, args ...any) (int64, error) {
		if strings.HasPrefix(query, "SET ") {
			return 0, nil
		}
		return 0, errors.New("permanent")
	}
	b := newTestBridge(t, pool)

	task := sqlTask("doomed", 0, "INSERT INTO events VALUES (1)")
	task.MaxRetries = 2
	g := buildGraph(t, task)

	result, err := b.ExecuteTaskGraph(context.Background(), g)

	require.Error(t, err)
	assert.False(t, result.Success)
	require.Contains(t, result.Results, "doomed")
	assert.Equal(t, 3, result.Results["doomed"].Attempts, "initial attempt plus two retries")
}

func TestExecuteTaskGraph_UnknownTaskTypeFails(t *testing.T) {
	pool := db.NewMockPool()
	b := newTestBridge(t, pool)

	g := buildGraph(t, orchestrator.Task{ID: "weird", Type: "teleport"})

	result, err := b.ExecuteTaskGraph(context.Background(), g)

	require.Error(t, err)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Results["weird"].Err, orchestrator.ErrUnknownTaskType)
}

func TestExecuteTaskGraph_MigrationRunsOperationsSequentially(t *testing.T) {
	pool := db.NewMockPool()
	var mu sync.Mutex
	var executed []string
	pool.Conn.ExecContextFunc = func(ctx context.Context, query string, args ...any) (int64, error) {
		if !strings.HasPrefix(query, "SET ") {
			mu.Lock()
			executed = append(executed, query)
			mu.Unlock()
		}
		return 1, nil
	}
	b := newTestBridge(t, pool)

	g := buildGraph(t, orchestrator.Task{
		ID:   "migrate",
		Type: orchestrator.TaskTypeMigration,
		Metadata: map[string]any{
			"operations": []orchestrator.Operation{
				{SQL: "CREATE TABLE a (id int)"},
				{SQL: "CREATE TABLE b (id int)"},
			},
		},
	})

	result, err := b.ExecuteTaskGraph(context.Background(), g)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Results["migrate"].Output["operations"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"CREATE TABLE a (id int)", "CREATE TABLE b (id int)"}, executed)
}

func TestExecuteTaskGraph_MigrationAcceptsJSONDecodedOperations(t *testing.T) {
	pool := db.NewMockPool()
	b := newTestBridge(t, pool)

	g := buildGraph(t, orchestrator.Task{
		ID:   "migrate",
		Type: orchestrator.TaskTypeMigration,
		Metadata: map[string]any{
			"operations": []any{
				map[string]any{"sql": "CREATE TABLE a (id int)", "transaction": true},
			},
		},
	})

	result, err := b.ExecuteTaskGraph(context.Background(), g)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, pool.Conn.Statements(), "BEGIN")
}

func TestExecuteTaskGraph_GenerationAndValidationHandlers(t *testing.T) {
	pool := db.NewMockPool()
	b := newTestBridge(t, pool)

	g := buildGraph(t,
		orchestrator.Task{
			ID:       "gen",
			Type:     orchestrator.TaskTypeGeneration,
			Metadata: map[string]any{"expected_artifacts": 4},
		},
		orchestrator.Task{
			ID:           "check",
			Type:         orchestrator.TaskTypeValidation,
			Dependencies: []string{"gen"},
			Metadata:     map[string]any{"checks": []string{"tables", "columns"}},
		},
	)

	result, err := b.ExecuteTaskGraph(context.Background(), g)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 4, result.Results["gen"].Output["expectedArtifacts"])
	assert.Equal(t, 2, result.Results["check"].Output["checks"])
	assert.Equal(t, true, result.Results["check"].Output["valid"])
	assert.Equal(t, 0, pool.AcquireCalls, "neither handler touches the database")
}

func TestExecuteTaskGraph_ValidationFailureIsPermanent(t *testing.T) {
	pool := db.NewMockPool()
	b := newTestBridge(t, pool)

	g := buildGraph(t, orchestrator.Task{
		ID:       "check",
		Type:     orchestrator.TaskTypeValidation,
		Metadata: map[string]any{"valid": false},
	})

	result, err := b.ExecuteTaskGraph(context.Background(), g)

	var stallErr *StallError
	require.ErrorAs(t, err, &stallErr)
	assert.Equal(t, []string{"check"}, result.FailedTasks)
}

func TestExecuteTaskGraph_TaskTimeoutFailsTheTask(t *testing.T) {
	pool := db.NewMockPool()
	pool.Conn.ExecContextFunc = func(ctx context.Context, query string, args ...any) (int64, error) {
		if strings.HasPrefix(query, "SET ") {
			return 0, nil
		}
		<-ctx.Done()
		return 0, ctx.Err()
	}
	b := newTestBridge(t, pool)

	task := sqlTask("slow", 0, "SELECT pg_sleep(3600)")
	task.Timeout = 10 * time.Millisecond
	g := buildGraph(t, task)

	result, err := b.ExecuteTaskGraph(context.Background(), g)

	require.Error(t, err)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Results["slow"].Err, context.DeadlineExceeded)
}

func TestExecuteTaskGraph_ConcurrencyCeilingIsRespected(t *testing.T) {
	pool := db.NewMockPool()
	var mu sync.Mutex
	running, peak := 0, 0
	release := make(chan struct{})
	pool.Conn.ExecContextFunc = func(ctx context.Context, query string, args ...any) (int64, error) {
		if strings.HasPrefix(query, "SET ") {
			return 0, nil
		}
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		<-release
		mu.Lock()
		running--
		mu.Unlock()
		return 1, nil
	}

	exec := executor.New(executor.Config{Pool: pool, QueuePollInterval: time.Millisecond})
	b, err := New(Config{Executor: exec, MaxConcurrentTasks: 2})
	require.NoError(t, err)

	// Disjoint resource keys so the executor never queues; only the bridge
	// ceiling limits concurrency.
	g := buildGraph(t,
		sqlTask("t1", 0, "SELECT 1 FROM alpha"),
		sqlTask("t2", 0, "SELECT 1 FROM beta"),
		sqlTask("t3", 0, "SELECT 1 FROM gamma"),
		sqlTask("t4", 0, "SELECT 1 FROM delta"),
	)

	done := make(chan struct{})
	go func() {
		result, runErr := b.ExecuteTaskGraph(context.Background(), g)
		assert.NoError(t, runErr)
		assert.True(t, result.Success)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return peak >= 2
	}, time.Second, time.Millisecond)
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}

func TestExecuteTaskGraph_CancellationStopsTheRun(t *testing.T) {
	pool := db.NewMockPool()
	pool.Conn.ExecContextFunc = func(ctx context.Context, query string, args ...any) (int64, error) {
		if strings.HasPrefix(query, "SET ") {
			return 0, nil
		}
		<-ctx.Done()
		return 0, ctx.Err()
	}
	exec := executor.New(executor.Config{Pool: pool, QueuePollInterval: time.Millisecond})
	b, err := New(Config{Executor: exec, ShutdownGrace: 50 * time.Millisecond})
	require.NoError(t, err)

	g := buildGraph(t, sqlTask("hang", 0, "SELECT pg_sleep(3600)"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := b.ExecuteTaskGraph(ctx, g)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, result.Success)
}
