package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"satmetrics/internal/store"
)

func newMergeCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "merge -o <output.db> <database>...",
		Short: "Merge metric databases",
		Long: `merge copies the benchmarks and runs of one or more metric databases
into a single output database. Solvers and test sets are matched by
name; benchmarks get fresh ids.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := store.Open(output)
			if err != nil {
				return err
			}
			defer dst.Close()
			if err := dst.EnsureSchema(); err != nil {
				return err
			}

			var total int64
			for _, src := range args {
				copied, err := dst.Merge(src)
				if err != nil {
					return fmt.Errorf("merge %s: %w", src, err)
				}
				a.logger.Info("merged database",
					zap.String("source", src),
					zap.Int64("runs", copied))
				total += copied
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %d runs from %d databases into %s\n",
				total, len(args), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output database path")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
