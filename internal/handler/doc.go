// Package handler implements the HTTP API of fabriclens serve.
//
// # Endpoints
//
//	POST /api/analyze    {"path": "..."} runs an analysis and returns the result
//	GET  /api/analyzers  registered analyzers and the tables they read
//	GET  /api/result     latest result (exported snapshot first, then in-memory)
//	GET  /api/anomalies  stored anomaly records, ?severity=critical|warning|info
//	GET  /api/events     Server-Sent Events stream of run progress
//	GET  /metrics        Prometheus metrics
//	GET  /health         liveness
//
// Errors are returned as JSON with an {error, details} structure. A dataset
// that cannot be read answers 422; a missing one answers 404.
package handler
