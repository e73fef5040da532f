package services

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/shared"
)

const (
	channelFeedURLFormat  = "https://www.youtube.com/feeds/videos.xml?channel_id=%s"
	playlistFeedURLFormat = "https://www.youtube.com/feeds/videos.xml?playlist_id=%s"

	// feedEntryCap bounds results per feed; YouTube serves at most ~15
	// entries anyway.
	feedEntryCap = 15

	feedTimeout = 10 * time.Second
)

// FeedSource lists videos through YouTube's public Atom feeds. It needs no
// credential and no quota, at the price of only seeing the most recent
// entries per channel or playlist.
type FeedSource struct {
	client *http.Client
	// baseURL overrides the feed host in tests.
	baseURL string
}

// NewFeedSource creates an Atom feed backend.
func NewFeedSource(client *http.Client) *FeedSource {
	if client == nil {
		client = &http.Client{Timeout: feedTimeout}
	}
	return &FeedSource{client: client}
}

// Name identifies the backend in logs.
func (s *FeedSource) Name() string { return "youtube-feed" }

// Atom document shapes for YouTube's feed namespace.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Author  atomAuthor  `xml:"author"`
	Entries []atomEntry `xml:"entry"`
}

type atomAuthor struct {
	Name string `xml:"name"`
	URI  string `xml:"uri"`
}

type atomEntry struct {
	VideoID     string    `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	ChannelID   string    `xml:"http://www.youtube.com/xml/schemas/2015 channelId"`
	Title       string    `xml:"title"`
	Published   time.Time `xml:"published"`
	Description string    `xml:"group>description"`
}

func (s *FeedSource) feedURL(format, id string) string {
	url := fmt.Sprintf(format, id)
	if s.baseURL != "" {
		url = s.baseURL + url[strings.Index(url, "/feeds/"):]
	}
	return url
}

// fetchFeed retrieves and parses one Atom document.
func (s *FeedSource) fetchFeed(ctx context.Context, url string) (*atomFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: feed %s", shared.ErrNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: feed returned HTTP %d", shared.ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstream, err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("%w: malformed feed: %v", shared.ErrUpstream, err)
	}

	return &feed, nil
}

// entriesToVideos converts feed entries, skipping entries without a video id.
// fallbackChannelID fills in for playlist feeds whose entries omit one.
func entriesToVideos(feed *atomFeed, fallbackChannelID string) []models.Video {
	videos := make([]models.Video, 0, len(feed.Entries))
	for i, entry := range feed.Entries {
		if i >= feedEntryCap {
			break
		}
		if entry.VideoID == "" {
			continue
		}
		channelID := entry.ChannelID
		if channelID == "" {
			channelID = fallbackChannelID
		}
		if channelID == "" {
			continue
		}

		video := models.Video{
			YouTubeVideoID: entry.VideoID,
			Title:          entry.Title,
			Description:    entry.Description,
			URL:            fmt.Sprintf(watchURLFormat, entry.VideoID),
			ChannelID:      channelID,
		}
		if !entry.Published.IsZero() {
			published := entry.Published.UTC()
			video.UploadedAt = &published
		}
		videos = append(videos, video)
	}
	return videos
}

// FetchChannelVideos returns the channel's recent videos from its Atom feed.
func (s *FeedSource) FetchChannelVideos(ctx context.Context, channelID string) ([]models.Video, error) {
	feed, err := s.fetchFeed(ctx, s.feedURL(channelFeedURLFormat, channelID))
	if err != nil {
		return nil, err
	}
	return entriesToVideos(feed, channelID), nil
}

// FetchPlaylistVideos returns the playlist's recent videos from its Atom feed.
func (s *FeedSource) FetchPlaylistVideos(ctx context.Context, playlistID string) ([]models.Video, error) {
	feed, err := s.fetchFeed(ctx, s.feedURL(playlistFeedURLFormat, playlistID))
	if err != nil {
		return nil, err
	}
	return entriesToVideos(feed, ""), nil
}

// FetchChannelInfo derives channel metadata from the feed header. Feeds
// carry no description, so the author name stands in.
func (s *FeedSource) FetchChannelInfo(ctx context.Context, channelID string) (*models.Channel, error) {
	feed, err := s.fetchFeed(ctx, s.feedURL(channelFeedURLFormat, channelID))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if feed.Title == "" && feed.Author.Name == "" {
		return nil, nil
	}

	// Channel feeds title themselves with the bare channel name.
	title := strings.TrimSpace(feed.Title)
	if title == "" {
		title = strings.TrimSpace(feed.Author.Name)
	}

	return &models.Channel{
		YouTubeChannelID: channelID,
		Title:            title,
		Description:      feed.Author.Name,
		ChannelURL:       fmt.Sprintf(channelURLFormat, channelID),
	}, nil
}
