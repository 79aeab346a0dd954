package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OperationsTotal tracks executed SQL operations by lock level and outcome.
var OperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wesley_orchestrator_operations_total",
		Help: "Total SQL operations executed",
	},
	[]string{"namespace", "level", "outcome"},
)

// OperationDuration tracks SQL operation execution latency.
var OperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "wesley_orchestrator_operation_duration_seconds",
		Help:    "SQL operation execution latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"namespace"},
)

// OperationsQueued tracks operations parked behind a conflicting lock.
var OperationsQueued = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wesley_orchestrator_operations_queued_total",
		Help: "Total operations queued on lock conflicts",
	},
	[]string{"namespace"},
)

// QueueDepth tracks the current number of queued operations.
var QueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "wesley_orchestrator_queue_depth",
		Help: "Current queued operations across all resource keys",
	},
	[]string{"namespace"},
)

// DeadlockRetriesTotal tracks deadlock-triggered retries.
var DeadlockRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wesley_orchestrator_deadlock_retries_total",
		Help: "Total operation retries caused by deadlock detection",
	},
	[]string{"namespace"},
)

// PoolUtilization tracks connection pool utilization at admission time.
var PoolUtilization = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "wesley_orchestrator_pool_utilization",
		Help: "Connection pool utilization (active/total)",
	},
	[]string{"namespace"},
)

// LockAcquisitionsTotal tracks advisory lock acquisitions by mode.
var LockAcquisitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wesley_orchestrator_lock_acquisitions_total",
		Help: "Total advisory lock acquisitions",
	},
	[]string{"namespace", "mode"},
)

// LockTimeoutsTotal tracks advisory lock acquisitions that timed out.
var LockTimeoutsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wesley_orchestrator_lock_timeouts_total",
		Help: "Total advisory lock acquisition timeouts",
	},
	[]string{"namespace"},
)

// TasksCompletedTotal tracks completed tasks by type.
var TasksCompletedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wesley_orchestrator_tasks_completed_total",
		Help: "Total tasks completed",
	},
	[]string{"namespace", "type"},
)

// TasksFailedTotal tracks permanently failed tasks by type.
var TasksFailedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wesley_orchestrator_tasks_failed_total",
		Help: "Total tasks that exhausted their retry budget",
	},
	[]string{"namespace", "type"},
)

// TaskRetriesTotal tracks task-level retries.
var TaskRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wesley_orchestrator_task_retries_total",
		Help: "Total task retry attempts",
	},
	[]string{"namespace"},
)

// TaskDuration tracks task execution latency by type.
var TaskDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "wesley_orchestrator_task_duration_seconds",
		Help:    "Task execution latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"namespace", "type"},
)

// GraphRunsTotal tracks completed graph runs by outcome.
var GraphRunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wesley_orchestrator_graph_runs_total",
		Help: "Total task graph runs",
	},
	[]string{"namespace", "outcome"},
)

// RunningTasks tracks the number of tasks currently in flight.
var RunningTasks = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "wesley_orchestrator_running_tasks",
		Help: "Tasks currently executing",
	},
	[]string{"namespace"},
)
