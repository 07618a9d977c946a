package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"satmetrics/internal/config"
	"satmetrics/internal/runner"
	"satmetrics/internal/store"
)

const defaultDatabasePath = "./satmetrics.db"

func newRunCmd(a *app) *cobra.Command {
	var (
		configPath string
		comment    string
		benchmark  int64
		solvers    []string
		tests      []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a benchmark suite",
		Long: `run executes every (test file, solver, iteration) combination the
config describes, ingests the solver output into metrics and stores
the runs in the configured SQLite database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg.FilterSolvers(solvers)
			cfg.FilterTests(tests)
			if err := cfg.Preflight(a.logger); err != nil {
				return fmt.Errorf("config contains errors:\n%w", err)
			}

			dbPath := cfg.Database.Path
			if dbPath == "" {
				dbPath = defaultDatabasePath
			}
			db, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Init(cfg, benchmark, comment); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runner.New(cfg, db, a.logger).Execute(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the config file")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&comment, "comment", "", "comment added to the benchmark")
	cmd.Flags().Int64VarP(&benchmark, "benchmark", "b", 0, "existing benchmark to continue")
	cmd.Flags().StringArrayVarP(&solvers, "solver", "s", nil, "solver to use (default: all)")
	cmd.Flags().StringArrayVarP(&tests, "test", "t", nil, "test set to use (default: all)")
	return cmd
}
