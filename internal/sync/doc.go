// Package sync runs reconciliation passes for the manifest sync service.
//
// A pass is one full cycle of fetch, diff, store update and delta emission:
//
//  1. The manifest.Fetcher retrieves and validates the manifest.
//  2. The reconcile.Reconciler classifies every descriptor against the
//     version store and records new versions.
//  3. The sink.Sink receives the additive delta of new and changed locations.
//
// # Core Interfaces
//
//   - Manager: runs a single pass and reports its Result
//
// # Coordinator Package
//
// The sync/coordinator subpackage schedules passes on a ticker, guarantees
// that at most one pass runs at a time and records pass status and metrics.
//
// # Result Types
//
//   - Result: the manifest hash, reconciler output and published delta
//   - Error: a pass level failure with a Reason
//
// # Failure Reasons
//
//   - fetch-failed: the manifest was unreachable, returned a non-success
//     status or could not be decoded. The store is not touched.
//   - manifest-invalid: the manifest decoded but lacks spec.repositories or
//     has malformed entries. The store is not touched.
//   - publish-failed: the sink rejected the delta. Store updates made by the
//     pass stay committed, so the affected repositories are only published
//     again once their version changes.
//   - pass-cancelled: the pass timeout or shutdown interrupted the pass.
//     Descriptors processed before the interruption stay committed and the
//     remaining ones are handled by the next pass.
//
// Per-repository store failures do not fail the pass. They are reported in
// reconcile.Result.Failed. A repository whose lookup or upsert failed is
// retried on the next pass; one whose registration stamp failed after the
// upsert landed is classified unchanged until its version changes again.
package sync
