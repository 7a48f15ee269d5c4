// Package service implements the analysis pipeline of fabriclens.
//
// AnalysisService opens one dataset per call, resolves its topology, and
// runs every registered analyzer against the same read-only view on a
// bounded worker pool. Outputs are aggregated, scored, and assembled into
// a report.Result.
//
// # Concurrency
//
// Analyzers never see each other's output, so their completion order does
// not matter: outputs are stored by registry position and the aggregator
// merge is order-independent. The table cache belongs to the run and is
// dropped when Analyze returns.
//
// # Cancellation
//
// Canceling the context stops analyzers at their next table read or row
// batch. A canceled run returns ctx.Err() and no partial result.
//
// # Event System
//
// Runs publish analysis_started, analyzer_completed, analysis_completed,
// and analysis_failed on an EventBus. ReferenceReloader publishes
// reference_reloaded. In serve mode the hub forwards all of them to
// clients over Server-Sent Events.
package service
