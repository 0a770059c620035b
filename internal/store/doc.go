// Package store provides SQLite-backed durable storage for the requirement
// fact tables.
//
// The store holds four kinds of raw facts plus their derived bookkeeping:
//   - Requirements and hierarchy edges (generation-stamped)
//   - Traces: located references from code/docs to requirements
//   - Test runs, tests and coverage links (historical, never swept)
//   - Reviews and manual verifications
//
// Quarantine: a trace, coverage link or verification whose referent does not
// exist yet is diverted into a parallel unrelated_* table instead of being
// rejected, and promoted into the primary table once the referent appears
// (see internal/recon).
//
// Writes happen through a Batch, which wraps one transaction and stamps
// every touched Requirement/Trace row with the batch's generation. Reads for
// derivation go through LoadSnapshot, which reads all fact tables under a
// single transaction so a concurrent batch cannot produce a torn view.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// All queries order results by their primary key columns so snapshot reads
// are deterministic across invocations.
package store
