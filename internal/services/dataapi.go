package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	youtube "google.golang.org/api/youtube/v3"
)

const (
	watchURLFormat   = "https://www.youtube.com/watch?v=%s"
	channelURLFormat = "https://www.youtube.com/channel/%s"

	// listPageSize is the Data API maximum per listing page.
	listPageSize = 50
)

// DataAPISource lists videos through the YouTube Data API v3, bound to one
// user for the duration of a run.
//
// Credential resolution order: the user's OAuth refresh token (refreshed
// tokens are written back through the credential store), then the API key.
// With neither, every call fails with [shared.ErrUnauthenticated].
type DataAPISource struct {
	cfg     shared.YouTubeConfig
	creds   CredentialStore
	userID  string
	limiter *rate.Limiter
	logger  *log.Logger

	mu  sync.Mutex
	svc *youtube.Service
	// opts lets tests point the client at a stub server.
	opts []option.ClientOption
}

// NewDataAPISource creates a Data API backend for the given user. userID may
// be empty for API-key-only access.
func NewDataAPISource(cfg shared.YouTubeConfig, creds CredentialStore, userID string, rps float64, logger *log.Logger) *DataAPISource {
	if rps <= 0 {
		rps = 1.0
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &DataAPISource{
		cfg:     cfg,
		creds:   creds,
		userID:  userID,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

// Name identifies the backend in logs.
func (s *DataAPISource) Name() string { return "youtube-data-api" }

// client builds (once) the youtube.Service with the best available credential.
func (s *DataAPISource) client(ctx context.Context) (*youtube.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.svc != nil {
		return s.svc, nil
	}

	opts := make([]option.ClientOption, 0, len(s.opts)+1)

	switch {
	case s.userID != "" && s.creds != nil:
		ts, err := s.tokenSource(ctx)
		if err != nil && s.cfg.APIKey == "" {
			return nil, err
		}
		if err == nil {
			opts = append(opts, option.WithTokenSource(ts))
			break
		}
		s.logger.Warn("no oauth credential, falling back to api key", "user_id", s.userID)
		fallthrough
	case s.cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(s.cfg.APIKey))
	default:
		return nil, fmt.Errorf("%w: user %q has no refresh token and no api key is configured",
			shared.ErrUnauthenticated, s.userID)
	}

	opts = append(opts, s.opts...)

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build youtube client: %w", err)
	}

	s.svc = svc
	return svc, nil
}

// tokenSource builds an auto-refreshing token source from the user's stored
// refresh token, persisting rotated tokens back to the credential store.
func (s *DataAPISource) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	refreshToken, err := s.creds.RefreshToken(s.userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUnauthenticated, err)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: user %s has no refresh token", shared.ErrUnauthenticated, s.userID)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeReadonlyScope},
	}

	base := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return &persistingTokenSource{
		base:      base,
		creds:     s.creds,
		userID:    s.userID,
		lastToken: refreshToken,
		logger:    s.logger,
	}, nil
}

// persistingTokenSource wraps an oauth2.TokenSource and writes rotated
// refresh tokens back to the credential store so later runs reuse them.
type persistingTokenSource struct {
	base      oauth2.TokenSource
	creds     CredentialStore
	userID    string
	logger    *log.Logger
	mu        sync.Mutex
	lastToken string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.RefreshToken != "" && tok.RefreshToken != p.lastToken {
		if err := p.creds.StoreToken(p.userID, tok.RefreshToken, tok.Expiry); err != nil {
			p.logger.Error("failed to persist refreshed token", "user_id", p.userID, "error", err)
		} else {
			p.lastToken = tok.RefreshToken
		}
	}

	return tok, nil
}

// classifyAPIError maps Data API failures onto the shared taxonomy.
func classifyAPIError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusForbidden, http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", shared.ErrQuotaExceeded, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", shared.ErrUnauthenticated, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", shared.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%w: %v", shared.ErrUpstream, err)
}

// FetchChannelVideos lists a channel's videos newest first, paginating the
// search endpoint until exhausted.
func (s *DataAPISource) FetchChannelVideos(ctx context.Context, channelID string) ([]models.Video, error) {
	svc, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	var videos []models.Video
	pageToken := ""

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		call := svc.Search.List([]string{"snippet"}).
			ChannelId(channelID).
			Order("date").
			Type("video").
			MaxResults(listPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, classifyAPIError(err)
		}

		for _, item := range resp.Items {
			if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
				continue
			}
			videos = append(videos, models.Video{
				YouTubeVideoID: item.Id.VideoId,
				Title:          item.Snippet.Title,
				Description:    item.Snippet.Description,
				URL:            fmt.Sprintf(watchURLFormat, item.Id.VideoId),
				ChannelID:      channelID,
				UploadedAt:     parseUploadTime(item.Snippet.PublishedAt),
			})
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return videos, nil
		}
	}
}

// FetchPlaylistVideos lists a playlist's videos across all pages.
func (s *DataAPISource) FetchPlaylistVideos(ctx context.Context, playlistID string) ([]models.Video, error) {
	svc, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	var videos []models.Video
	pageToken := ""

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		call := svc.PlaylistItems.List([]string{"snippet"}).
			PlaylistId(playlistID).
			MaxResults(listPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, classifyAPIError(err)
		}

		for _, item := range resp.Items {
			if item.Snippet == nil || item.Snippet.ResourceId == nil || item.Snippet.ResourceId.VideoId == "" {
				continue
			}
			videoID := item.Snippet.ResourceId.VideoId
			videos = append(videos, models.Video{
				YouTubeVideoID: videoID,
				Title:          item.Snippet.Title,
				Description:    item.Snippet.Description,
				URL:            fmt.Sprintf(watchURLFormat, videoID),
				ChannelID:      item.Snippet.ChannelId,
				UploadedAt:     parseUploadTime(item.Snippet.PublishedAt),
			})
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return videos, nil
		}
	}
}

// FetchChannelInfo resolves channel metadata, (nil, nil) when unknown.
func (s *DataAPISource) FetchChannelInfo(ctx context.Context, channelID string) (*models.Channel, error) {
	svc, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := svc.Channels.List([]string{"snippet"}).Id(channelID).Context(ctx).Do()
	if err != nil {
		return nil, classifyAPIError(err)
	}

	if len(resp.Items) == 0 {
		return nil, nil
	}

	item := resp.Items[0]
	channel := &models.Channel{
		YouTubeChannelID: channelID,
		ChannelURL:       fmt.Sprintf(channelURLFormat, channelID),
	}
	if item.Snippet != nil {
		channel.Title = item.Snippet.Title
		channel.Description = item.Snippet.Description
	}

	return channel, nil
}

// parseUploadTime parses the Data API's RFC3339 publish timestamp. Malformed
// or missing timestamps yield nil, which the inclusion policy treats as a
// data-quality exclusion.
func parseUploadTime(published string) *time.Time {
	if published == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, published)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
