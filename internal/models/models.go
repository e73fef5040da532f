package models

import (
	"fmt"
	"strings"
	"time"
)

// User represents an account whose sources are monitored.
//
// RefreshToken and TokenExpiresAt are only set for users who completed the
// OAuth flow; users without a token fall back to API-key access upstream.
type User struct {
	ID             string
	Email          string
	DisplayName    string
	RefreshToken   *string
	TokenExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks that the user carries an id and a plausible email.
func (u *User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if !strings.Contains(u.Email, "@") {
		return fmt.Errorf("invalid email: %q", u.Email)
	}
	return nil
}

// Channel is a catalog entry for a YouTube channel, keyed by its YouTube
// channel id. Created when first observed; title and description may be
// refreshed later.
type Channel struct {
	YouTubeChannelID string
	Title            string
	Description      string
	ChannelURL       string
	CreatedAt        time.Time
}

// Validate checks the channel's natural key.
func (c *Channel) Validate() error {
	if c.YouTubeChannelID == "" {
		return fmt.Errorf("youtube channel id is required")
	}
	return nil
}

// Video is a catalog entry for a YouTube video, keyed by its YouTube video
// id. Videos are shared catalog entries, not per-source copies.
//
// UploadedAt is nil when the upstream listing omitted a publish timestamp;
// such videos cannot be ordered against a checkpoint.
type Video struct {
	YouTubeVideoID string
	Title          string
	Description    string
	URL            string
	ChannelID      string
	UploadedAt     *time.Time
	CreatedAt      time.Time
}

// Validate checks the video's natural key and owning channel.
func (v *Video) Validate() error {
	if v.YouTubeVideoID == "" {
		return fmt.Errorf("youtube video id is required")
	}
	if v.ChannelID == "" {
		return fmt.Errorf("channel id is required for video %s", v.YouTubeVideoID)
	}
	return nil
}
