// Package executor runs SQL operations with lock-level-aware admission
// control. Each operation is classified by the table-lock strength it needs;
// conflicting operations on the same resource key are queued FIFO and settled
// as the blocking operation releases. The connection pool's utilization acts
// as a backpressure gate, and deadlock victims are retried with exponential
// backoff.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	orchestrator "github.com/flyingrobots/wesley-sub010"
	"github.com/flyingrobots/wesley-sub010/db"
	"github.com/flyingrobots/wesley-sub010/metrics"
)

// Config holds configuration for the Executor.
type Config struct {
	// Pool hands out database sessions (required).
	Pool db.Pool

	// LockTimeout is applied per connection via SET lock_timeout before a
	// statement runs. The server-side timeout is the authoritative cutoff
	// for in-flight SQL (default: 10s).
	LockTimeout time.Duration

	// BackpressureThreshold queues new operations once pool utilization
	// exceeds it (default: 0.8).
	BackpressureThreshold float64

	// DeadlockRetries is how many times a deadlock victim is retried
	// (default: 3).
	DeadlockRetries int

	// RetryBaseDelay is the first deadlock backoff; it doubles per attempt
	// (default: 1s).
	RetryBaseDelay time.Duration

	// QueuePollInterval is how often a parked operation re-checks admission,
	// covering backpressure that relaxes without a local completion
	// (default: 100ms).
	QueuePollInterval time.Duration

	// HistorySize bounds the rolling operation history feeding Stats
	// (default: 1000).
	HistorySize int

	// Logger is for observability (optional).
	Logger orchestrator.Logger

	// Collector records Prometheus metrics (optional; nil records nothing).
	Collector *metrics.Collector
}

// ActiveOperation is one currently executing operation, tracked for conflict
// testing.
type ActiveOperation struct {
	OperationID string
	Level       LockLevel
	ResourceKey string
	StartTime   time.Time

	// special marks CONCURRENTLY index builds, capped at one per resource key.
	special bool
}

// Result reports a completed operation.
type Result struct {
	OperationID     string
	ResourceKey     string
	Level           LockLevel
	RowsAffected    int64
	Duration        time.Duration
	QueueWait       time.Duration
	DeadlockRetries int
}

// Stats summarizes recent executor activity from the rolling history.
type Stats struct {
	// TotalOperations is the number of operations in the history window.
	TotalOperations int

	// SuccessRate is the fraction of windowed operations that succeeded.
	SuccessRate float64

	// AvgDuration is the mean execution time over the window.
	AvgDuration time.Duration

	// ActiveOperations is the number of operations executing right now.
	ActiveOperations int

	// QueuedOperations is the number of operations parked on conflicts.
	QueuedOperations int
}

type waiter struct {
	op       orchestrator.Operation
	analysis Analysis
	key      string
	admit    chan struct{}
	queuedAt time.Time
}

type historyEntry struct {
	success  bool
	duration time.Duration
}

// Executor executes operations against the pool under lock-aware admission
// control. All state is instance-scoped; independent executors can coexist.
type Executor struct {
	config Config

	mu      sync.Mutex
	active  map[string][]ActiveOperation // resourceKey -> running ops
	queues  map[string][]*waiter         // resourceKey -> FIFO waiters
	queued  int
	history []historyEntry
}

// New creates a new Executor with the given configuration.
// Applies defaults for every zero-valued tuning field.
func New(cfg Config) *Executor {
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	if cfg.BackpressureThreshold == 0 {
		cfg.BackpressureThreshold = 0.8
	}
	if cfg.DeadlockRetries == 0 {
		cfg.DeadlockRetries = 3
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.QueuePollInterval == 0 {
		cfg.QueuePollInterval = 100 * time.Millisecond
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = 1000
	}

	return &Executor{
		config: cfg,
		active: make(map[string][]ActiveOperation),
		queues: make(map[string][]*waiter),
	}
}

// Execute runs one operation. Conflicting operations queue until the blocking
// operation on their resource key releases; queued operations on a key settle
// strictly FIFO. The active-operation record and the pooled connection are
// released on every path, so a failure never leaves a stuck resource key.
func (e *Executor) Execute(ctx context.Context, op orchestrator.Operation) (Result, error) {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}

	analysis := AnalyzeLockLevel(op.SQL)
	key := ResourceKey(op.SQL)
	start := time.Now()

	w := e.admit(op, analysis, key)
	var queueWait time.Duration
	if w != nil {
		e.config.Collector.IncQueued()
		if e.config.Logger != nil {
			e.config.Logger.Debug(ctx, "operation queued on conflict",
				"operationID", op.ID, "resourceKey", key, "level", string(analysis.Level))
		}
		if err := e.await(ctx, w); err != nil {
			return Result{}, fmt.Errorf("operation %s cancelled while queued: %w", op.ID, err)
		}
		queueWait = time.Since(w.queuedAt)
	}

	// The slot is reserved from here on; free it and wake the next waiter no
	// matter how execution ends.
	defer e.finish(op.ID, key)

	rows, retries, err := e.run(ctx, op)
	duration := time.Since(start) - queueWait

	e.recordHistory(err == nil, duration)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.config.Collector.IncOperation(string(analysis.Level), outcome)
	e.config.Collector.ObserveOperationDuration(duration.Seconds())

	if err != nil {
		return Result{}, err
	}

	return Result{
		OperationID:     op.ID,
		ResourceKey:     key,
		Level:           analysis.Level,
		RowsAffected:    rows,
		Duration:        duration,
		QueueWait:       queueWait,
		DeadlockRetries: retries,
	}, nil
}

// admit reserves an execution slot immediately when the operation is
// conflict-free and no earlier waiter is parked on the key; otherwise it
// appends a waiter to the key's FIFO queue and returns it.
func (e *Executor) admit(op orchestrator.Operation, analysis Analysis, key string) *waiter {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queues[key]) == 0 && !e.hasConflictsLocked(analysis, key) {
		e.reserveLocked(op.ID, analysis, key)
		return nil
	}

	w := &waiter{
		op:       op,
		analysis: analysis,
		key:      key,
		admit:    make(chan struct{}),
		queuedAt: time.Now(),
	}
	e.queues[key] = append(e.queues[key], w)
	e.queued++
	e.config.Collector.SetQueueDepth(e.queued)
	return w
}

// await parks until the waiter is admitted. The poll ticker re-drives the
// queue so backpressure that relaxes without a local completion still admits
// parked work.
func (e *Executor) await(ctx context.Context, w *waiter) error {
	ticker := time.NewTicker(e.config.QueuePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if !e.removeWaiter(w) {
				// Lost the race: already admitted, so the reservation exists
				// and must be freed.
				e.finish(w.op.ID, w.key)
			}
			return ctx.Err()
		case <-w.admit:
			return nil
		case <-ticker.C:
			e.processQueue(w.key)
		}
	}
}

// hasConflictsLocked reports whether an operation at the given level would
// conflict with the currently active operations on the resource key, or
// whether the pool is past its backpressure threshold. Callers hold e.mu.
func (e *Executor) hasConflictsLocked(analysis Analysis, key string) bool {
	for _, a := range e.active[key] {
		// An ACCESS_EXCLUSIVE request waits for any active operation on the key.
		if analysis.Level == AccessExclusive {
			return true
		}
		if Conflicts(analysis.Level, a.Level) {
			return true
		}
		// At most one CONCURRENTLY index build per resource key.
		if analysis.RequiresSpecialHandling && a.special {
			return true
		}
	}

	stats := e.config.Pool.Stats()
	util := stats.Utilization()
	e.config.Collector.SetPoolUtilization(util)
	return util > e.config.BackpressureThreshold
}

func (e *Executor) reserveLocked(opID string, analysis Analysis, key string) {
	e.active[key] = append(e.active[key], ActiveOperation{
		OperationID: opID,
		Level:       analysis.Level,
		ResourceKey: key,
		StartTime:   time.Now(),
		special:     analysis.RequiresSpecialHandling,
	})
}

// finish removes the active-operation record and admits the next eligible
// waiter on the key.
func (e *Executor) finish(opID, key string) {
	e.mu.Lock()
	ops := e.active[key]
	for i, a := range ops {
		if a.OperationID == opID {
			e.active[key] = append(ops[:i], ops[i+1:]...)
			break
		}
	}
	if len(e.active[key]) == 0 {
		delete(e.active, key)
	}
	e.mu.Unlock()

	e.processQueue(key)
}

// processQueue admits the head waiter for the key if it now clears conflict
// checks. Only the head is considered: settlement within a key is strictly
// FIFO.
func (e *Executor) processQueue(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.queues[key]
	if len(q) == 0 {
		return
	}

	head := q[0]
	if e.hasConflictsLocked(head.analysis, key) {
		return
	}

	e.queues[key] = q[1:]
	if len(e.queues[key]) == 0 {
		delete(e.queues, key)
	}
	e.queued--
	e.config.Collector.SetQueueDepth(e.queued)

	e.reserveLocked(head.op.ID, head.analysis, key)
	close(head.admit)
}

// removeWaiter unparks a cancelled waiter. It reports false when the waiter
// had already been admitted.
func (e *Executor) removeWaiter(w *waiter) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.queues[w.key]
	for i, cand := range q {
		if cand == w {
			e.queues[w.key] = append(q[:i], q[i+1:]...)
			if len(e.queues[w.key]) == 0 {
				delete(e.queues, w.key)
			}
			e.queued--
			e.config.Collector.SetQueueDepth(e.queued)
			return true
		}
	}
	return false
}

// run acquires a connection, applies the per-connection lock timeout, and
// executes the statement, retrying deadlock victims with exponential backoff.
func (e *Executor) run(ctx context.Context, op orchestrator.Operation) (int64, int, error) {
	conn, err := e.config.Pool.Acquire(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("operation %s: failed to acquire connection: %w", op.ID, err)
	}
	defer func() { _ = e.config.Pool.Release(conn) }()

	timeoutMS := e.config.LockTimeout.Milliseconds()
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET lock_timeout = '%dms'", timeoutMS)); err != nil {
		return 0, 0, fmt.Errorf("operation %s: failed to set lock_timeout: %w", op.ID, err)
	}

	retries := 0
	for {
		rows, err := e.runStatement(ctx, conn, op)
		if err == nil {
			return rows, retries, nil
		}

		if db.IsDeadlock(err) && retries < e.config.DeadlockRetries {
			delay := e.config.RetryBaseDelay << retries
			retries++
			e.config.Collector.IncDeadlockRetry()
			if e.config.Logger != nil {
				e.config.Logger.Warn(ctx, "deadlock detected, retrying",
					"operationID", op.ID, "attempt", retries, "backoff", delay)
			}
			select {
			case <-ctx.Done():
				return 0, retries, fmt.Errorf("operation %s: %w", op.ID, ctx.Err())
			case <-time.After(delay):
			}
			continue
		}

		if db.IsLockNotAvailable(err) {
			return 0, retries, fmt.Errorf("operation %s exceeded lock_timeout: %w", op.ID, err)
		}
		return 0, retries, fmt.Errorf("operation %s failed: %w", op.ID, err)
	}
}

// runStatement executes the operation's SQL, under an explicit transaction
// when requested.
func (e *Executor) runStatement(ctx context.Context, conn db.Conn, op orchestrator.Operation) (int64, error) {
	if !op.Transaction {
		return conn.ExecContext(ctx, op.SQL, op.Params...)
	}

	if _, err := conn.ExecContext(ctx, "BEGIN"); err != nil {
		return 0, err
	}

	rows, err := conn.ExecContext(ctx, op.SQL, op.Params...)
	if err != nil {
		if _, rbErr := conn.ExecContext(ctx, "ROLLBACK"); rbErr != nil && e.config.Logger != nil {
			e.config.Logger.Error(ctx, "rollback failed", "operationID", op.ID, "error", rbErr)
		}
		return 0, err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return 0, err
	}
	return rows, nil
}

func (e *Executor) recordHistory(success bool, duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, historyEntry{success: success, duration: duration})
	if len(e.history) > e.config.HistorySize {
		e.history = e.history[len(e.history)-e.config.HistorySize:]
	}
}

// Stats reports success rate and mean duration over the rolling history plus
// current active/queued counts.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{
		TotalOperations:  len(e.history),
		QueuedOperations: e.queued,
	}
	for _, ops := range e.active {
		stats.ActiveOperations += len(ops)
	}

	if len(e.history) == 0 {
		return stats
	}

	succeeded := 0
	var total time.Duration
	for _, h := range e.history {
		if h.success {
			succeeded++
		}
		total += h.duration
	}
	stats.SuccessRate = float64(succeeded) / float64(len(e.history))
	stats.AvgDuration = total / time.Duration(len(e.history))
	return stats
}

// ActiveOperations returns a snapshot of every running operation.
func (e *Executor) ActiveOperations() []ActiveOperation {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []ActiveOperation
	for _, ops := range e.active {
		out = append(out, ops...)
	}
	return out
}

// QueueDepths returns the number of parked operations per resource key.
func (e *Executor) QueueDepths() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]int, len(e.queues))
	for key, q := range e.queues {
		out[key] = len(q)
	}
	return out
}
