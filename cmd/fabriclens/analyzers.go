package main

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fabriclens/internal/analyzer"
)

func newAnalyzersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyzers",
		Short: "List the registered analyzers and the tables they read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := analyzer.NewDefaultRegistry(a.cfg.Analyzers, nil, a.logger)

			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ANALYZER\tTABLES")
			for _, info := range reg.ListAnalyzers() {
				tables := "(topology)"
				if len(info.Tables) > 0 {
					tables = strings.Join(info.Tables, ", ")
				}
				fmt.Fprintf(tw, "%s\t%s\n", info.Name, tables)
			}
			for _, name := range slices.Sorted(slices.Values(a.cfg.Analyzers.Disabled)) {
				fmt.Fprintf(tw, "%s\t(disabled)\n", name)
			}
			return tw.Flush()
		},
	}
}
