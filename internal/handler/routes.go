package handler

import (
	"log/slog"
	"net/http"
)

// NewRouter wires the API, the event stream and the metrics endpoint.
// events and metrics may be nil.
func NewRouter(api *AnalysisHandler, events, metrics http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/analyze", api.Analyze)
	mux.HandleFunc("GET /api/analyzers", api.ListAnalyzers)
	mux.HandleFunc("GET /api/result", api.GetResult)
	mux.HandleFunc("GET /api/anomalies", api.ListAnomalies)
	mux.HandleFunc("GET /health", api.Health)

	if events != nil {
		mux.Handle("GET /api/events", events)
	}
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return Chain(mux,
		Recover(logger),
		Logger(logger),
	)
}
