package bridge

import (
	"fmt"
	"strings"
)

// StallError reports a run that can no longer make progress: no task is
// running, no task is ready, and work remains. Permanently failed tasks block
// their dependents, so one failure upstream can strand an entire subtree.
type StallError struct {
	// FailedTasks are the tasks that exhausted their retry budget.
	FailedTasks []string

	// Remaining are the tasks that never completed, including the failed
	// ones and everything blocked behind them.
	Remaining []string
}

func (e *StallError) Error() string {
	return fmt.Sprintf("graph execution stalled: %d task(s) failed [%s], %d task(s) unfinished [%s]",
		len(e.FailedTasks), strings.Join(e.FailedTasks, ", "),
		len(e.Remaining), strings.Join(e.Remaining, ", "))
}
