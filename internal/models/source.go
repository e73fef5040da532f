package models

import (
	"fmt"
	"time"
)

// SourceType discriminates the two source variants.
type SourceType string

const (
	// SourceTypeChannelCollection monitors a set of member channels.
	SourceTypeChannelCollection SourceType = "channel_collection"
	// SourceTypePlaylist monitors a single upstream playlist.
	SourceTypePlaylist SourceType = "playlist"
)

// Source is a user-owned monitoring target.
//
// LastProcessedAt is the ingestion checkpoint: nil means the source has
// never been run, and a non-nil value marks the upload-time boundary below
// which videos are considered already handled. It advances exactly once per
// successful run, after job creation succeeds.
type Source struct {
	ID                string
	UserID            string
	Type              SourceType
	Name              string
	YouTubePlaylistID *string
	Preferences       map[string]any
	LastProcessedAt   *time.Time
	CreatedAt         time.Time
}

// Validate enforces the variant invariant: playlist sources must carry a
// playlist id.
func (s *Source) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("source id is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("source %s: user id is required", s.ID)
	}
	switch s.Type {
	case SourceTypeChannelCollection:
	case SourceTypePlaylist:
		if s.YouTubePlaylistID == nil || *s.YouTubePlaylistID == "" {
			return fmt.Errorf("source %s: playlist sources require a youtube playlist id", s.ID)
		}
	default:
		return fmt.Errorf("source %s: invalid source type %q", s.ID, s.Type)
	}
	return nil
}

// SourceChannel links a collection source to a member channel.
type SourceChannel struct {
	SourceID         string
	YouTubeChannelID string
}

// SourceVideo records that a video is relevant to a source.
//
// ProcessedAt is nil until the downstream worker folds the video into a
// finished podcast; unlinked or unprocessed videos are naturally retried on
// a later run.
type SourceVideo struct {
	SourceID       string
	YouTubeVideoID string
	ProcessedAt    *time.Time
}
