package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fabriclens/internal/handler"
	"fabriclens/internal/hub"
	"fabriclens/internal/repository/sqlite"
	"fabriclens/internal/service"
	"fabriclens/internal/watcher"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API, event stream and metrics over HTTP",
		Long: `Serve the analysis API.

  POST /api/analyze   {"path": "/data/ibdiagnet2"}
  GET  /api/analyzers
  GET  /api/result
  GET  /api/anomalies?severity=critical
  GET  /api/events    (Server-Sent Events)
  GET  /metrics
  GET  /health

Dataset paths are trusted and read from the local filesystem.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("listen") {
				a.cfg.Server.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (default from config, :8080)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	eventBus := service.NewEventBus()
	metrics := service.NewMetrics()

	sseHub := hub.New(a.logger)
	go sseHub.Run(ctx)

	events := make(chan service.Event, 100)
	eventBus.Subscribe(events)
	defer eventBus.Unsubscribe(events)
	go hub.Forward(ctx, sseHub, events)

	reg, refErr := service.BuildRegistry(a.cfg.Analyzers, a.cfg.Compliance.Reference, a.logger)
	if refErr != nil {
		a.logger.Warn("compliance reference unusable, reference checks disabled", "error", refErr)
	}

	opts := []service.Option{
		service.WithEventBus(eventBus),
		service.WithMetrics(metrics),
		service.WithLogger(a.logger),
		service.WithWorkers(a.cfg.Analysis.Workers),
		service.WithTimeout(a.cfg.Analysis.Timeout.Duration()),
	}
	var store handler.ResultStore
	if path := a.cfg.Export.SQLite; path != "" {
		repo, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("open sqlite export: %w", err)
		}
		defer repo.Close()
		a.logger.Info("exporting results", "sqlite", path)
		opts = append(opts, service.WithExporter(repo))
		store = repo
	}
	svc := service.NewAnalysisService(reg, opts...)

	if ref := a.cfg.Compliance.Reference; ref != "" && a.cfg.Compliance.Watch {
		reloader := service.NewReferenceReloader(svc, a.cfg.Analyzers, ref, a.logger)
		w := watcher.New(ref, func() { _ = reloader.Reload() }).WithLogger(a.logger)
		go func() {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("compliance reference watcher stopped", "error", err)
			}
		}()
	}

	api := handler.NewAnalysisHandler(svc, store, a.logger)
	server := &http.Server{
		Addr:              a.cfg.Server.Listen,
		Handler:           handler.NewRouter(api, sseHub, metrics.Handler(), a.logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", server.Addr, "analyzers", reg.Len(), "workers", svc.Workers())
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
