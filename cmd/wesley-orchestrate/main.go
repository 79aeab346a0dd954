// wesley-orchestrate loads a JSON task plan and either inspects it (plan) or
// executes it against a PostgreSQL database (run).
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flyingrobots/wesley-sub010/logging"
)

var (
	v        = viper.New()
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "wesley-orchestrate",
	Short: "Dependency-ordered, lock-aware SQL task orchestration",
	Long: `wesley-orchestrate drives a task graph of SQL, migration, generation and
validation tasks against a PostgreSQL database. Tasks run concurrently up to a
configurable ceiling; operations that need conflicting table locks are queued
per resource key, and deadlock victims are retried with exponential backoff.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	v.SetEnvPrefix("WESLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// bindFlag registers a flag with viper so WESLEY_<FLAG> env vars act as
// fallbacks.
func bindFlag(cmd *cobra.Command, name string) {
	_ = v.BindPFlag(name, cmd.Flags().Lookup(name))
}

func newLogger() *logging.ZerologAdapter {
	return logging.NewConsole(os.Stderr, logLevel)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
