package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <plan-file>",
	Short: "Validate a task plan and print its execution order and critical path",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	g, err := loadPlan(args[0])
	if err != nil {
		return err
	}

	if cycles := g.DetectCycles(); len(cycles) > 0 {
		for _, cycle := range cycles {
			fmt.Fprintf(cmd.ErrOrStderr(), "cycle: %s\n", strings.Join(cycle, " -> "))
		}
		return fmt.Errorf("plan contains %d circular dependency chain(s)", len(cycles))
	}

	order, err := g.ExecutionOrder()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tasks: %d\n\n", g.Len())
	fmt.Fprintln(out, "Execution order:")
	for i, id := range order {
		task, _ := g.Task(id)
		fmt.Fprintf(out, "  %2d. %-24s priority=%d deps=%v\n", i+1, id, task.Priority, task.Dependencies)
	}

	cp, err := g.CriticalPath()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nCritical path (%s):\n  %s\n", cp.Duration, strings.Join(cp.Path, " -> "))

	return nil
}
