package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"fabriclens/internal/analyzer"
	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
	"fabriclens/internal/report"
	"fabriclens/internal/repository"
	"fabriclens/internal/service"
)

// maxRequestBody bounds POST bodies; requests only carry a path
const maxRequestBody = 1 << 20

// ResultStore reads back exported snapshots
type ResultStore interface {
	LoadResult(ctx context.Context) (*report.Result, error)
	Anomalies(ctx context.Context, severity domain.Severity) ([]domain.Anomaly, error)
}

// AnalysisHandler serves the analysis API
type AnalysisHandler struct {
	svc    *service.AnalysisService
	store  ResultStore
	last   atomic.Pointer[report.Result]
	logger *slog.Logger
}

// NewAnalysisHandler creates a new analysis handler. store may be nil, in
// which case only the latest result of this process is served.
func NewAnalysisHandler(svc *service.AnalysisService, store ResultStore, logger *slog.Logger) *AnalysisHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisHandler{svc: svc, store: store, logger: logger.With("component", "api")}
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// AnalyzeRequest names the dataset to analyze. The path is trusted.
type AnalyzeRequest struct {
	Path string `json:"path"`
}

// Analyze runs one analysis and returns the result
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		h.writeError(w, "Dataset path is required", "", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Analyze(r.Context(), req.Path)
	switch {
	case err == nil:
	case result != nil:
		// analysis finished; only the export failed
		h.logger.Warn("result export failed", "path", req.Path, "error", err)
	case errors.Is(err, os.ErrNotExist):
		h.writeError(w, "Dataset not found", err.Error(), http.StatusNotFound)
		return
	case dump.IsFormatError(err):
		h.writeError(w, "Dataset cannot be read", err.Error(), http.StatusUnprocessableEntity)
		return
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, "Analysis timed out", err.Error(), http.StatusGatewayTimeout)
		return
	case errors.Is(err, context.Canceled):
		h.writeError(w, "Analysis canceled", err.Error(), http.StatusServiceUnavailable)
		return
	default:
		h.logger.Error("analysis failed", "path", req.Path, "error", err)
		h.writeError(w, "Analysis failed", err.Error(), http.StatusInternalServerError)
		return
	}

	h.last.Store(result)
	h.writeJSON(w, result, http.StatusOK)
}

// ListAnalyzers returns the registered analyzers and the tables they read
func (h *AnalysisHandler) ListAnalyzers(w http.ResponseWriter, r *http.Request) {
	infos := h.svc.Registry().ListAnalyzers()
	if infos == nil {
		infos = []analyzer.Info{}
	}
	h.writeJSON(w, infos, http.StatusOK)
}

// GetResult returns the latest result, preferring the exported snapshot
func (h *AnalysisHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		result, err := h.store.LoadResult(r.Context())
		switch {
		case err == nil:
			h.writeJSON(w, result, http.StatusOK)
			return
		case !errors.Is(err, repository.ErrNoSnapshot):
			h.logger.Error("failed to load snapshot", "error", err)
			h.writeError(w, "Failed to load result", err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if result := h.last.Load(); result != nil {
		h.writeJSON(w, result, http.StatusOK)
		return
	}
	h.writeError(w, "No result yet", "run POST /api/analyze first", http.StatusNotFound)
}

// ListAnomalies returns stored anomaly records, optionally filtered by
// the severity query parameter
func (h *AnalysisHandler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, "No snapshot store configured", "set export.sqlite", http.StatusNotFound)
		return
	}

	severity := domain.Severity(r.URL.Query().Get("severity"))
	if severity != "" && severity.Rank() == 0 {
		h.writeError(w, "Invalid severity", string(severity), http.StatusBadRequest)
		return
	}

	list, err := h.store.Anomalies(r.Context(), severity)
	if err != nil {
		h.logger.Error("failed to list anomalies", "error", err)
		h.writeError(w, "Failed to list anomalies", err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []domain.Anomaly{}
	}
	h.writeJSON(w, list, http.StatusOK)
}

// Health reports liveness
func (h *AnalysisHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]any{
		"status":    "ok",
		"analyzers": h.svc.Registry().Len(),
	}, http.StatusOK)
}

func (h *AnalysisHandler) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode JSON", "error", err)
	}
}

func (h *AnalysisHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}
