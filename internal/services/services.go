package services

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/shared"
)

// VideoSource is the contract a listing backend implements. Both the Data
// API and the Atom feed backend satisfy it; the Provider never branches on
// which one answered.
type VideoSource interface {
	// FetchChannelVideos returns a channel's recent videos, newest first.
	FetchChannelVideos(ctx context.Context, channelID string) ([]models.Video, error)

	// FetchPlaylistVideos returns a playlist's videos across all available pages.
	FetchPlaylistVideos(ctx context.Context, playlistID string) ([]models.Video, error)

	// FetchChannelInfo resolves display metadata for a channel. A channel
	// that cannot be resolved yields (nil, nil), not an error.
	FetchChannelInfo(ctx context.Context, channelID string) (*models.Channel, error)

	// Name identifies the backend in logs.
	Name() string
}

// CredentialStore is the account store slice the primary backend needs for
// the OAuth flow: read a user's refresh token and persist it back after a
// refresh. The user repository satisfies it.
type CredentialStore interface {
	RefreshToken(userID string) (string, error)
	StoreToken(userID, refreshToken string, expiresAt time.Time) error
}

// Provider is the read-through adapter the ingestion engine consumes. It
// serves the primary backend's listings, transparently switching to the
// fallback on quota exhaustion and degrading to empty results on any other
// backend failure.
type Provider struct {
	primary  VideoSource
	fallback VideoSource
	logger   *log.Logger
}

// NewProvider creates a Provider over a primary and a fallback backend.
func NewProvider(primary, fallback VideoSource, logger *log.Logger) *Provider {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Provider{primary: primary, fallback: fallback, logger: shared.WithLogger(logger, "component", "provider")}
}

// FetchChannelVideos lists a channel's recent videos. Quota exhaustion on
// the primary backend switches to the fallback; other failures return an
// empty list. Only a missing credential is surfaced to the caller.
func (p *Provider) FetchChannelVideos(ctx context.Context, channelID string) ([]models.Video, error) {
	videos, err := p.primary.FetchChannelVideos(ctx, channelID)
	if err == nil {
		return videos, nil
	}
	if errors.Is(err, shared.ErrUnauthenticated) {
		return nil, err
	}
	if errors.Is(err, shared.ErrQuotaExceeded) {
		p.logger.Warn("primary backend quota exhausted, using fallback",
			"backend", p.primary.Name(), "channel_id", channelID)
		return p.fallbackChannelVideos(ctx, channelID)
	}

	p.logger.Error("channel listing failed",
		"backend", p.primary.Name(), "channel_id", channelID, "error", err)
	return nil, nil
}

func (p *Provider) fallbackChannelVideos(ctx context.Context, channelID string) ([]models.Video, error) {
	videos, err := p.fallback.FetchChannelVideos(ctx, channelID)
	if err != nil {
		p.logger.Error("fallback channel listing failed",
			"backend", p.fallback.Name(), "channel_id", channelID, "error", err)
		return nil, nil
	}
	return videos, nil
}

// FetchPlaylistVideos lists a playlist's videos with the same fallback and
// degradation semantics as FetchChannelVideos.
func (p *Provider) FetchPlaylistVideos(ctx context.Context, playlistID string) ([]models.Video, error) {
	videos, err := p.primary.FetchPlaylistVideos(ctx, playlistID)
	if err == nil {
		return videos, nil
	}
	if errors.Is(err, shared.ErrUnauthenticated) {
		return nil, err
	}
	if errors.Is(err, shared.ErrQuotaExceeded) {
		p.logger.Warn("primary backend quota exhausted, using fallback",
			"backend", p.primary.Name(), "playlist_id", playlistID)
		videos, err = p.fallback.FetchPlaylistVideos(ctx, playlistID)
		if err != nil {
			p.logger.Error("fallback playlist listing failed",
				"backend", p.fallback.Name(), "playlist_id", playlistID, "error", err)
			return nil, nil
		}
		return videos, nil
	}

	p.logger.Error("playlist listing failed",
		"backend", p.primary.Name(), "playlist_id", playlistID, "error", err)
	return nil, nil
}

// FetchChannelInfo resolves channel metadata, trying the fallback on quota
// exhaustion. An unresolvable channel is (nil, nil), not an error.
func (p *Provider) FetchChannelInfo(ctx context.Context, channelID string) (*models.Channel, error) {
	channel, err := p.primary.FetchChannelInfo(ctx, channelID)
	if err == nil {
		return channel, nil
	}
	if errors.Is(err, shared.ErrUnauthenticated) {
		return nil, err
	}
	if errors.Is(err, shared.ErrQuotaExceeded) {
		channel, err = p.fallback.FetchChannelInfo(ctx, channelID)
		if err != nil {
			p.logger.Error("fallback channel info failed",
				"backend", p.fallback.Name(), "channel_id", channelID, "error", err)
			return nil, nil
		}
		return channel, nil
	}

	p.logger.Error("channel info failed",
		"backend", p.primary.Name(), "channel_id", channelID, "error", err)
	return nil, nil
}
