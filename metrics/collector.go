package metrics

// Collector wraps metrics and provides helper methods with a pre-filled
// namespace label. A nil *Collector is valid and records nothing, so callers
// do not need to guard every observation.
type Collector struct {
	namespace string
}

// NewCollector creates a new Collector for the given orchestrator namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{namespace: namespace}
}

// IncOperation increments the operations counter for a lock level and outcome.
func (c *Collector) IncOperation(level, outcome string) {
	if c == nil {
		return
	}
	OperationsTotal.WithLabelValues(c.namespace, level, outcome).Inc()
}

// ObserveOperationDuration records an operation latency observation.
func (c *Collector) ObserveOperationDuration(seconds float64) {
	if c == nil {
		return
	}
	OperationDuration.WithLabelValues(c.namespace).Observe(seconds)
}

// IncQueued increments the queued-operations counter.
func (c *Collector) IncQueued() {
	if c == nil {
		return
	}
	OperationsQueued.WithLabelValues(c.namespace).Inc()
}

// SetQueueDepth sets the queue depth gauge.
func (c *Collector) SetQueueDepth(depth int) {
	if c == nil {
		return
	}
	QueueDepth.WithLabelValues(c.namespace).Set(float64(depth))
}

// IncDeadlockRetry increments the deadlock retry counter.
func (c *Collector) IncDeadlockRetry() {
	if c == nil {
		return
	}
	DeadlockRetriesTotal.WithLabelValues(c.namespace).Inc()
}

// SetPoolUtilization sets the pool utilization gauge.
func (c *Collector) SetPoolUtilization(utilization float64) {
	if c == nil {
		return
	}
	PoolUtilization.WithLabelValues(c.namespace).Set(utilization)
}

// IncLockAcquisition increments the lock acquisition counter for a mode.
func (c *Collector) IncLockAcquisition(mode string) {
	if c == nil {
		return
	}
	LockAcquisitionsTotal.WithLabelValues(c.namespace, mode).Inc()
}

// IncLockTimeout increments the lock timeout counter.
func (c *Collector) IncLockTimeout() {
	if c == nil {
		return
	}
	LockTimeoutsTotal.WithLabelValues(c.namespace).Inc()
}

// IncTaskCompleted increments the completed-tasks counter for a task type.
func (c *Collector) IncTaskCompleted(taskType string) {
	if c == nil {
		return
	}
	TasksCompletedTotal.WithLabelValues(c.namespace, taskType).Inc()
}

// IncTaskFailed increments the failed-tasks counter for a task type.
func (c *Collector) IncTaskFailed(taskType string) {
	if c == nil {
		return
	}
	TasksFailedTotal.WithLabelValues(c.namespace, taskType).Inc()
}

// IncTaskRetry increments the task retry counter.
func (c *Collector) IncTaskRetry() {
	if c == nil {
		return
	}
	TaskRetriesTotal.WithLabelValues(c.namespace).Inc()
}

// ObserveTaskDuration records a task latency observation for a task type.
func (c *Collector) ObserveTaskDuration(taskType string, seconds float64) {
	if c == nil {
		return
	}
	TaskDuration.WithLabelValues(c.namespace, taskType).Observe(seconds)
}

// IncGraphRun increments the graph-runs counter with an outcome of
// "success" or "failure".
func (c *Collector) IncGraphRun(outcome string) {
	if c == nil {
		return
	}
	GraphRunsTotal.WithLabelValues(c.namespace, outcome).Inc()
}

// SetRunningTasks sets the running-tasks gauge.
func (c *Collector) SetRunningTasks(count int) {
	if c == nil {
		return
	}
	RunningTasks.WithLabelValues(c.namespace).Set(float64(count))
}
