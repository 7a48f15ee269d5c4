package codec

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"fabriclens/internal/report"
)

// DefaultTextLimit is the number of aggregated records the text report lists
const DefaultTextLimit = 25

// TextCodec renders a result as a human readable report
type TextCodec struct {
	// Limit caps the listed records; zero or less lists all of them
	Limit int
}

// NewTextCodec creates a text codec with the default record limit
func NewTextCodec() *TextCodec {
	return &TextCodec{Limit: DefaultTextLimit}
}

// Format returns the codec format identifier
func (c *TextCodec) Format() string {
	return "text"
}

// Export writes the report
func (c *TextCodec) Export(result *report.Result, w io.Writer) error {
	ew := &errWriter{w: w}
	h := result.Health
	s := result.Summary

	ew.printf("Dataset: %s\n", result.Dataset)
	if h != nil {
		ew.printf("Health:  %.2f/100  grade %s (%s)\n", h.Score, h.Grade, h.Status)
	}
	ew.printf("Fabric:  %s, %s, %s\n",
		english.Plural(s.Entities, "node", ""),
		english.Plural(s.Ports, "port", ""),
		english.Plural(s.Links, "link", ""))
	ew.printf("Found:   %s critical, %s warning, %s info\n",
		humanize.Comma(int64(s.Critical)),
		humanize.Comma(int64(s.Warning)),
		humanize.Comma(int64(s.Info)))

	if h != nil {
		ew.printf("\n")
		tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tWEIGHT\tDEDUCTION\tSCORE\tRECORDS")
		for _, sub := range h.Categories {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				sub.Category,
				humanize.Ftoa(sub.Weight),
				humanize.FtoaWithDigits(sub.Deduction, 2),
				humanize.FtoaWithDigits(sub.Score, 2),
				humanize.Comma(int64(sub.Records)))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		records := h.Records
		if c.Limit > 0 && len(records) > c.Limit {
			records = records[:c.Limit]
		}
		if len(records) > 0 {
			ew.printf("\n")
			tw = tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SEVERITY\tWEIGHT\tENTITY\tKIND\tCOUNT\tANALYZERS")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					r.Severity,
					humanize.FtoaWithDigits(r.Weight, 3),
					r.Entity,
					r.Kind,
					r.Count,
					strings.Join(r.Analyzers, ","))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if hidden := len(h.Records) - len(records); hidden > 0 {
				ew.printf("... %s not shown\n", english.Plural(hidden, "more record", ""))
			}
		}
	}

	if len(s.UnavailableTables) > 0 {
		ew.printf("\nUnavailable tables: %s\n", strings.Join(s.UnavailableTables, ", "))
	}
	if n := s.TotalSkipped(); n > 0 {
		tables := make([]string, 0, len(s.SkippedRows))
		for t := range s.SkippedRows {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		parts := make([]string, 0, len(tables))
		for _, t := range tables {
			parts = append(parts, fmt.Sprintf("%s %s", t, humanize.Comma(int64(s.SkippedRows[t]))))
		}
		ew.printf("Skipped rows: %s (%s)\n", humanize.Comma(int64(n)), strings.Join(parts, ", "))
	}
	if len(s.DisabledChecks) > 0 {
		ew.printf("Disabled checks: %s\n", strings.Join(s.DisabledChecks, ", "))
	}
	for _, e := range s.AnalyzerErrors {
		ew.printf("Analyzer %s failed: %s\n", e.Analyzer, e.Error)
	}

	return ew.err
}

// errWriter keeps the first write error so the report body stays linear
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...any) {
	fmt.Fprintf(e, format, args...)
}
