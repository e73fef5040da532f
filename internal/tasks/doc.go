// Package tasks orchestrates channel and playlist monitoring runs.
//
// # Core operation
//
// [MonitorEngine.Run] walks one user's configured sources and, per source:
//
//  1. resolves member channels (collections) or the playlist id
//  2. fetches recent videos through the [VideoProvider], throttled by a
//     process-local daily quota tracker
//  3. merges fetched videos into the shared catalog (create-if-absent),
//     resolving and upserting any channels seen for the first time
//  4. filters the merged set through the inclusion policy against the
//     source's checkpoint
//  5. links surviving videos to the source in fixed-size batches with
//     bounded retry, falling back to per-video linking
//  6. enqueues exactly one QUEUED generation job when at least one video
//     survived, then — and only then — advances the source checkpoint
//
// Anticipated failures (missing users, empty collections, upstream fetch
// errors, dropped batches, job-insert failures) degrade to "fewer jobs
// produced" and are logged; they never escape Run. Only store-level contract
// violations surface as errors, and even those abort at most the affected
// source.
//
// # Progress reporting
//
// Runs hold a per-run progress map (source id → processed/total channel
// counts) guarded by a mutex and discarded afterward; updates are also
// emitted on a non-blocking [ProgressUpdate] channel for CLI display.
//
// # Dependencies
//
// The engine consumes two interfaces it defines: [RecordStore] (satisfied by
// repositories.Catalog) and [VideoProvider] (satisfied by
// services.Provider), keeping runs testable against in-memory doubles.
package tasks
