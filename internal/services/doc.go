// Package services implements the video-listing provider: one contract over
// two interchangeable YouTube backends.
//
// # Backends
//
// [DataAPISource] is the primary backend over the YouTube Data API v3
// (google.golang.org/api/youtube/v3). It authenticates either with a
// per-user OAuth2 refresh token (golang.org/x/oauth2, refreshed tokens are
// persisted back through a [CredentialStore]) or with an API key, and paces
// outbound calls with a golang.org/x/time rate limiter. API quota costs make
// it the limited resource of the whole pipeline.
//
// [FeedSource] is the quota-free fallback over YouTube's public Atom feeds
// (https://www.youtube.com/feeds/videos.xml). Feeds only expose roughly the
// 15 most recent entries, so it trades depth for availability.
//
// # Provider
//
// [Provider] composes the two: when the primary backend signals quota
// exhaustion the fallback's answer is served transparently; any other
// backend failure degrades to an empty result so one source's fetch failure
// never aborts a whole monitoring run. Callers branch on the result, never
// on the backend.
//
// # Error handling
//
// Backends classify failures into sentinel errors from the shared package:
//   - [shared.ErrQuotaExceeded] : recoverable, triggers the fallback
//   - [shared.ErrNotFound] : absent channel/playlist, not an error upstream
//   - [shared.ErrUnauthenticated] : no usable credential, fatal
//
// Anything else is a transient upstream failure and is logged then absorbed
// at the Provider boundary.
package services
