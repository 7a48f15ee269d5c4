package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fabriclens/internal/dump"
)

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables <path>",
		Short: "List the tables a dataset declares",
		Long: `List the index entries of a dump directory or file: table name,
declared row count, and the file holding the table. Table bodies are not
read. Flat telemetry files show their row count as "-".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := dump.Open(args[0])
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			defer ds.Close()

			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tROWS\tSIZE\tSOURCE")
			for _, e := range ds.Entries() {
				rows := "-"
				if e.Rows >= 0 {
					rows = humanize.Comma(int64(e.Rows))
				}
				size := "-"
				if e.Size > 0 {
					size = humanize.IBytes(uint64(e.Size))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, rows, size, filepath.Base(e.File))
			}
			return tw.Flush()
		},
	}
}
