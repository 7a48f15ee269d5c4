package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"fabriclens/internal/config"
	"fabriclens/internal/logger"
)

// app holds state shared by every subcommand
type app struct {
	stdout io.Writer
	stderr io.Writer

	cfgFile   string
	logLevel  string
	logFormat string

	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "fabriclens",
		Short: "Health analysis for InfiniBand fabric diagnostic dumps",
		Long: `fabriclens reads ibdiagnet-style diagnostic dumps, runs a set of
domain analyzers over them (bit error rate, port counters, link stability,
congestion, optics, power, firmware compliance, topology) and reports a
0-100 health score with a letter grade and the anomalies behind it.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup() },
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: search $"+config.EnvConfigPath+", ./"+config.ConfigFileName+", XDG, /etc)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (auto, tint, text, json)")

	root.AddCommand(
		newAnalyzeCmd(a),
		newTablesCmd(a),
		newAnalyzersCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")
	return root
}

// setup loads the config and builds the logger
func (a *app) setup() error {
	var err error
	if a.cfgFile != "" {
		a.cfg, a.cfgPath, err = config.LoadFromPath(a.cfgFile)
	} else {
		a.cfg, a.cfgPath, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := a.setupLogger(); err != nil {
		return err
	}

	if a.cfgPath != "" {
		a.logger.Debug("config loaded", "path", a.cfgPath, "summary", a.cfg.Summary())
	}
	return nil
}

// setupLogger builds the logger from the config and the log flags
func (a *app) setupLogger() error {
	opts := logger.Options{Level: a.cfg.Log.Level, Format: a.cfg.Log.Format}
	if a.logLevel != "" {
		opts.Level = a.logLevel
	}
	if a.logFormat != "" {
		opts.Format = a.logFormat
	}
	l, err := logger.NewWriter(a.stderr, opts)
	if err != nil {
		return err
	}
	a.logger = l
	return nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "fabriclens %s\n", version)
		},
	}
}
