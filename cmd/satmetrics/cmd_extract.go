package main

import (
	"io"

	"github.com/spf13/cobra"

	"satmetrics/pkg/api"
)

func newExtractCmd() *cobra.Command {
	var fixClauses bool
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Read cadical output from stdin and print metrics",
		Long: `extract scans cadical output from stdin and prints one line per
collected metric, "<name>: <value>", in the order the metrics were
first observed. An unparsable "c parsed" line aborts the run before
any output is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return extract(cmd.InOrStdin(), cmd.OutOrStdout(), fixClauses)
		},
	}
	cmd.Flags().BoolVar(&fixClauses, "fix-clauses", false,
		"report the real clause count instead of the legacy parse-time-derived value")
	return cmd
}

func extract(r io.Reader, w io.Writer, fixClauses bool) error {
	metrics, err := api.Extract(r, api.Options{FixClauses: fixClauses})
	if err != nil {
		return err
	}
	_, err = metrics.WriteTo(w)
	return err
}
