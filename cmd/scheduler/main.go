package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/RezaEskandarii/jobfire/app"
	"github.com/RezaEskandarii/jobfire/internal/logger"
	"github.com/RezaEskandarii/jobfire/jobmanager"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath      string
	shutdownTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "jobfire",
	Short: "jobfire - job scheduling and execution service",
	Long: `jobfire arms timers for cron, interval and one-time jobs, runs them
with a per-job lock and a timeout, retries failures and records every
execution.

Configuration is read from --config and JOBFIRE_* environment variables,
for example JOBFIRE_STORAGE=postgres and JOBFIRE_POSTGRES_URL=...`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler and the ops server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := readSettings()
		if err != nil {
			return err
		}
		cfg, err := settings.SchedulerConfig()
		if err != nil {
			return err
		}
		return jobmanager.Migrate(cmd.Context(), cfg)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (yaml, toml or json)")
	runCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "how long to wait for running executions on shutdown")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func readSettings() (*Settings, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return loadSettings(v)
}

func run(ctx context.Context) error {
	settings, err := readSettings()
	if err != nil {
		return err
	}
	l, err := logger.New(settings.LogLevel, false, settings.Instance)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	defer l.Sync()

	cfg, err := settings.SchedulerConfig(builtinHandlers(l.Named("handler"))...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := jobmanager.New(ctx, cfg, app.WithLogger(l))
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		l.Infow("shutdown requested")
	case err := <-s.Errors():
		if err != nil {
			l.Errorw("ops server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
