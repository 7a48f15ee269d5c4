// Package repository defines persistence for analysis results.
//
// fabriclens keeps no history: a store holds exactly one snapshot, the
// latest exported result, and every save replaces it.
//
// # SQLite Implementation
//
// The sqlite subpackage stores the snapshot in three tables:
//
//   - summary: one row with the score, grade, counts, and the full result document
//   - categories: one row per scoring category
//   - anomalies: one row per anomaly record, indexed by severity and node
//
// The schema is created on open. Saves run in a single transaction so a
// reader never sees a mix of two snapshots.
package repository
