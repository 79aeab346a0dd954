package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	orchestrator "github.com/flyingrobots/wesley-sub010"
	"github.com/flyingrobots/wesley-sub010/bridge"
	"github.com/flyingrobots/wesley-sub010/db"
	"github.com/flyingrobots/wesley-sub010/executor"
	"github.com/flyingrobots/wesley-sub010/lock"
	"github.com/flyingrobots/wesley-sub010/metrics"
)

// runLockIdentifier guards against two orchestration runs migrating the same
// database at once.
const runLockIdentifier = "orchestration-run"

var runCmd = &cobra.Command{
	Use:   "run <plan-file>",
	Short: "Execute a task plan against a PostgreSQL database",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().String("database-url", "", "PostgreSQL connection string (env: WESLEY_DATABASE_URL)")
	runCmd.Flags().Int("max-conns", 10, "maximum pooled database connections")
	runCmd.Flags().Int64("max-concurrent", 3, "maximum concurrently running tasks")
	runCmd.Flags().Duration("lock-timeout", 10*time.Second, "per-connection lock_timeout for statements")
	runCmd.Flags().String("metrics-addr", "", "address for the Prometheus /metrics endpoint (disabled when empty)")

	rootCmd.AddCommand(runCmd)
	bindFlag(runCmd, "database-url")
	bindFlag(runCmd, "max-conns")
	bindFlag(runCmd, "max-concurrent")
	bindFlag(runCmd, "lock-timeout")
	bindFlag(runCmd, "metrics-addr")
}

func runRun(cmd *cobra.Command, args []string) error {
	g, err := loadPlan(args[0])
	if err != nil {
		return err
	}

	dsn := v.GetString("database-url")
	if dsn == "" {
		return fmt.Errorf("no database URL: pass --database-url or set WESLEY_DATABASE_URL")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger()
	collector := metrics.NewCollector("wesley")

	pool, err := db.Open(ctx, "postgres", dsn, v.GetInt("max-conns"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if addr := v.GetString("metrics-addr"); addr != "" {
		srv := metrics.NewServer(metrics.ServerConfig{Addr: addr})
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info(ctx, "metrics server listening", "addr", addr)
	}

	manager := lock.New(lock.Config{Logger: logger, Collector: collector})
	lockConn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire lock connection: %w", err)
	}
	defer func() { _ = pool.Release(lockConn) }()

	acquired, err := manager.TryAcquireExclusive(ctx, lockConn, runLockIdentifier, lock.Options{})
	if err != nil {
		return err
	}
	if !acquired {
		return &lock.ConflictError{
			Key:        manager.GenerateKey(runLockIdentifier),
			Identifier: runLockIdentifier,
		}
	}
	defer func() { _, _ = manager.Release(context.Background(), lockConn, runLockIdentifier, lock.Options{}) }()

	exec := executor.New(executor.Config{
		Pool:        pool,
		LockTimeout: v.GetDuration("lock-timeout"),
		Logger:      logger,
		Collector:   collector,
	})

	br, err := bridge.New(bridge.Config{
		Executor:           exec,
		MaxConcurrentTasks: v.GetInt64("max-concurrent"),
		Logger:             logger,
		Collector:          collector,
	})
	if err != nil {
		return err
	}

	result, err := br.ExecuteTaskGraph(ctx, g)
	printSummary(cmd, result)
	if err != nil {
		return err
	}
	return nil
}

func printSummary(cmd *cobra.Command, result orchestrator.GraphResult) {
	out := cmd.OutOrStdout()
	status := "FAILED"
	if result.Success {
		status = "OK"
	}
	fmt.Fprintf(out, "\n%s  completed=%d failed=%d duration=%s\n",
		status, len(result.CompletedTasks), len(result.FailedTasks), result.Duration.Round(time.Millisecond))

	for _, id := range result.CompletedTasks {
		r := result.Results[id]
		fmt.Fprintf(out, "  ok   %-24s attempts=%d duration=%s\n", id, r.Attempts, r.Duration.Round(time.Millisecond))
	}
	for _, id := range result.FailedTasks {
		r := result.Results[id]
		fmt.Fprintf(out, "  fail %-24s attempts=%d error=%v\n", id, r.Attempts, r.Err)
	}
}
