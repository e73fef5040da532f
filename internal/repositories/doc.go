// Package repositories implements SQLite persistence for all domain entities.
//
// Every natural-keyed entity (channels, videos, source↔video links) is
// upsert-safe: inserting the same key twice neither fails nor duplicates the
// row, which is what lets the ingestion engine re-observe the same upstream
// listing across runs without corrupting the catalog.
//
// Key implementations:
//   - [UserRepository] : accounts and OAuth refresh tokens
//   - [ChannelRepository] : the shared channel catalog
//   - [SourceRepository] : monitoring targets, their channel membership and checkpoint
//   - [VideoRepository] : the shared video catalog and source↔video links
//   - [JobRepository] : generation jobs consumed by the downstream worker
//
// All Get operations report a missing row as an error wrapping
// [shared.ErrNotFound], distinguishable from transport failures with
// [errors.Is]. The [Catalog] aggregate bundles the repositories behind the
// single handle the ingestion engine consumes.
package repositories
