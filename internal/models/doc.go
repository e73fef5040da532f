// Package models defines domain entities for the TubeXtend ingestion pipeline.
//
// The package contains two categories of types:
//
// 1. Catalog entities, shared across all users and sources:
//   - [Channel] : YouTube channel metadata keyed by channel id
//   - [Video] : YouTube video metadata keyed by video id
//
// 2. Per-user monitoring state:
//   - [User] : account with optional OAuth refresh token
//   - [Source] : a monitoring target, either a channel collection or a playlist
//   - [SourceChannel] : membership link between a collection source and a channel
//   - [SourceVideo] : link recording that a video is relevant to a source
//   - [GenerationJob] : unit of work enqueued for the downstream podcast worker
//
// Entities carry Validate methods enforcing the natural-key and variant
// invariants the repositories rely on (e.g. playlist sources must name a
// playlist id).
package models
