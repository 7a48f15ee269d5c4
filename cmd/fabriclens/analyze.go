package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fabriclens/internal/codec"
	"fabriclens/internal/config"
	"fabriclens/internal/dump"
	"fabriclens/internal/report"
	"fabriclens/internal/repository/sqlite"
	"fabriclens/internal/service"
)

type analyzeOptions struct {
	format       string
	output       string
	sqlite       string
	reference    string
	workers      int
	timeout      time.Duration
	berThreshold int
	berMinEvents uint64
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze <path>",
		Short: "Analyze a diagnostic dump and report fabric health",
		Long: `Analyze a diagnostic dump directory or a single dump file.

The exit status is 1 when the dataset cannot be read. Missing tables and
analyzer failures are reported in the result and do not fail the run.

Examples:
  fabriclens analyze /data/ibdiagnet2
  fabriclens analyze /data/ibdiagnet2 --format text
  fabriclens analyze /data/ibdiagnet2 --format yaml --output health.yaml --sqlite health.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyAnalyzeFlags(cmd, a.cfg, &opts)
			return a.runAnalyze(cmd.Context(), args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.format, "format", "f", "json", "output format (json, yaml, text)")
	f.StringVarP(&opts.output, "output", "o", "", "write the result to a file instead of stdout")
	f.StringVar(&opts.sqlite, "sqlite", "", "also export the result to a SQLite snapshot")
	f.StringVar(&opts.reference, "reference", "", "firmware compliance reference YAML")
	f.IntVar(&opts.workers, "workers", 0, "analyzers run at once (0 = GOMAXPROCS)")
	f.DurationVar(&opts.timeout, "timeout", 0, "abort the run after this long (0 = no limit)")
	f.IntVar(&opts.berThreshold, "ber-threshold", 14, "BER magnitude below which a port is suspect")
	f.Uint64Var(&opts.berMinEvents, "ber-min-events", 1, "error events required to flag a port")
	return cmd
}

// applyAnalyzeFlags lets explicitly set flags override the config file
func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config, opts *analyzeOptions) {
	f := cmd.Flags()
	if f.Changed("workers") {
		cfg.Analysis.Workers = opts.workers
	}
	if f.Changed("timeout") {
		cfg.Analysis.Timeout = config.Duration(opts.timeout)
	}
	if f.Changed("sqlite") {
		cfg.Export.SQLite = opts.sqlite
	}
	if f.Changed("reference") {
		cfg.Compliance.Reference = opts.reference
	}
	if f.Changed("ber-threshold") {
		cfg.Analyzers.BER.MagnitudeThreshold = opts.berThreshold
	}
	if f.Changed("ber-min-events") {
		cfg.Analyzers.BER.MinErrorEvents = opts.berMinEvents
	}
}

func (a *app) runAnalyze(ctx context.Context, path string, opts analyzeOptions) error {
	enc, err := codec.ForFormat(opts.format)
	if err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, refErr := service.BuildRegistry(a.cfg.Analyzers, a.cfg.Compliance.Reference, a.logger)
	if refErr != nil {
		a.logger.Warn("compliance reference unusable, reference checks disabled", "error", refErr)
	}

	svcOpts := []service.Option{
		service.WithLogger(a.logger),
		service.WithWorkers(a.cfg.Analysis.Workers),
		service.WithTimeout(a.cfg.Analysis.Timeout.Duration()),
	}
	if a.cfg.Export.SQLite != "" {
		repo, err := sqlite.New(a.cfg.Export.SQLite)
		if err != nil {
			return fmt.Errorf("open sqlite export: %w", err)
		}
		defer repo.Close()
		svcOpts = append(svcOpts, service.WithExporter(repo))
	}

	result, runErr := service.NewAnalysisService(reg, svcOpts...).Analyze(ctx, path)
	if result == nil {
		if dump.IsFormatError(runErr) {
			return &exitError{code: 1, err: runErr}
		}
		return runErr
	}

	if err := a.writeResult(enc, result, opts.output); err != nil {
		return err
	}
	// the result is already written; only the export failed
	return runErr
}

func (a *app) writeResult(enc codec.Exporter, result *report.Result, output string) error {
	if output == "" {
		return enc.Export(result, a.stdout)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := enc.Export(result, f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", output, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	a.logger.Info("result written", "path", output, "format", enc.Format())
	return nil
}
