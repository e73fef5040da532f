package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/repositories"
	"github.com/rozentia/tubextend/internal/services"
	"github.com/rozentia/tubextend/internal/shared"
	testingx "github.com/rozentia/tubextend/internal/testing"
)

func newTestEngine(t *testing.T, provider VideoProvider) (*MonitorEngine, *repositories.Catalog, *sql.DB) {
	t.Helper()

	db := testingx.MustOpenDatabase(t)
	catalog := repositories.NewCatalog(db)

	cfg := shared.MonitorConfig{
		DailyQuota:       10000,
		QuotaThreshold:   0.9,
		BatchSize:        2,
		MaxBatchRetries:  3,
		RetryCooldownSec: 1,
		ChannelWorkers:   2,
		RequestsPerSec:   100,
	}

	engine := NewMonitorEngine(catalog, provider, cfg, shared.NewLogger(io.Discard))
	engine.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	return engine, catalog, db
}

func seedUser(t *testing.T, catalog *repositories.Catalog) *models.User {
	t.Helper()

	user := &models.User{ID: shared.GenerateID(), Email: "viewer@example.com", DisplayName: "Viewer"}
	if err := catalog.Users.Insert(user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	return user
}

func seedCollection(t *testing.T, catalog *repositories.Catalog, userID string, channelIDs ...string) *models.Source {
	t.Helper()

	source := &models.Source{UserID: userID, Type: models.SourceTypeChannelCollection, Name: "morning shows"}
	if err := catalog.Sources.Insert(source); err != nil {
		t.Fatalf("failed to seed source: %v", err)
	}

	for _, channelID := range channelIDs {
		channel := &models.Channel{YouTubeChannelID: channelID, Title: "channel " + channelID}
		if err := catalog.Channels.Insert(channel); err != nil {
			t.Fatalf("failed to seed channel: %v", err)
		}
		if err := catalog.Sources.LinkChannel(source.ID, channelID); err != nil {
			t.Fatalf("failed to link channel: %v", err)
		}
	}

	return source
}

func seedPlaylist(t *testing.T, catalog *repositories.Catalog, userID, playlistID string) *models.Source {
	t.Helper()

	source := &models.Source{
		UserID:            userID,
		Type:              models.SourceTypePlaylist,
		Name:              "watch later",
		YouTubePlaylistID: &playlistID,
	}
	if err := catalog.Sources.Insert(source); err != nil {
		t.Fatalf("failed to seed playlist source: %v", err)
	}

	return source
}

func video(id, channelID string, uploadedAt time.Time) models.Video {
	return models.Video{
		YouTubeVideoID: id,
		Title:          "video " + id,
		URL:            "https://www.youtube.com/watch?v=" + id,
		ChannelID:      channelID,
		UploadedAt:     &uploadedAt,
	}
}

func TestRunUnknownUser(t *testing.T) {
	mock := &testingx.MockVideoSource{}
	engine, _, _ := newTestEngine(t, mock)

	jobs, err := engine.Run(context.Background(), "no-such-user", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
	if mock.ChannelCalls+mock.PlaylistCalls != 0 {
		t.Error("upstream was called for an unknown user")
	}
}

func TestRunUserWithoutSources(t *testing.T) {
	engine, catalog, _ := newTestEngine(t, &testingx.MockVideoSource{})
	user := seedUser(t, catalog)

	jobs, err := engine.Run(context.Background(), user.ID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
}

func TestRunCollectionWithoutChannelsNoJob(t *testing.T) {
	mock := &testingx.MockVideoSource{}
	engine, catalog, _ := newTestEngine(t, mock)
	user := seedUser(t, catalog)
	source := seedCollection(t, catalog, user.ID)

	jobs, err := engine.Run(context.Background(), user.ID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no jobs for an empty collection, got %d", len(jobs))
	}
	if mock.ChannelCalls != 0 {
		t.Error("upstream was called for a collection without channels")
	}

	refreshed, err := catalog.Sources.Get(source.ID)
	if err != nil {
		t.Fatalf("failed to reload source: %v", err)
	}
	if refreshed.LastProcessedAt != nil {
		t.Errorf("checkpoint moved without a job: %v", refreshed.LastProcessedAt)
	}
}

func TestRunCollectionCreatesJob(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock := &testingx.MockVideoSource{
		ChannelVideosFn: func(ctx context.Context, channelID string) ([]models.Video, error) {
			return []models.Video{
				video("vid-"+channelID+"-1", channelID, base),
				video("vid-"+channelID+"-2", channelID, base.Add(time.Hour)),
			}, nil
		},
	}

	engine, catalog, _ := newTestEngine(t, mock)
	user := seedUser(t, catalog)
	source := seedCollection(t, catalog, user.ID, "UC-alpha", "UC-beta")

	jobs, err := engine.Run(context.Background(), user.ID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	job := jobs[0]
	if job.Status != models.JobStatusQueued {
		t.Errorf("job status = %s, want %s", job.Status, models.JobStatusQueued)
	}
	if job.UserID != user.ID || job.SourceID != source.ID {
		t.Errorf("job owner = (%s, %s), want (%s, %s)", job.UserID, job.SourceID, user.ID, source.ID)
	}
	if ids := job.Config.VideoIDs(); len(ids) != 4 {
		t.Errorf("job carries %d video ids, want 4", len(ids))
	}

	persisted, err := catalog.Jobs.Get(job.ID)
	if err != nil {
		t.Fatalf("job was not persisted: %v", err)
	}
	if persisted.SourceID != source.ID {
		t.Errorf("persisted job source = %s, want %s", persisted.SourceID, source.ID)
	}

	links, err := catalog.Videos.ListSourceVideos(source.ID)
	if err != nil {
		t.Fatalf("failed to list source videos: %v", err)
	}
	if len(links) != 4 {
		t.Errorf("source has %d linked videos, want 4", len(links))
	}

	refreshed, err := catalog.Sources.Get(source.ID)
	if err != nil {
		t.Fatalf("failed to reload source: %v", err)
	}
	if refreshed.LastProcessedAt == nil {
		t.Error("checkpoint did not advance after job creation")
	}

	if used, _ := engine.Quota().Usage(); used != 2 {
		t.Errorf("quota usage = %d, want 2 (one per channel)", used)
	}
}

func TestRunCheckpointFiltersOldVideos(t *testing.T) {
	checkpoint := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock := &testingx.MockVideoSource{
		ChannelVideosFn: func(ctx context.Context, channelID string) ([]models.Video, error) {
			return []models.Video{
				video("vid-old", channelID, checkpoint.Add(-time.Hour)),
				video("vid-boundary", channelID, checkpoint),
				video("vid-new", channelID, checkpoint.Add(time.Hour)),
			}, nil
		},
	}

	engine, catalog, _ := newTestEngine(t, mock)
	user := seedUser(t, catalog)
	source := seedCollection(t, catalog, user.ID, "UC-alpha")

	if err := catalog.Sources.UpdateLastProcessed(source.ID, checkpoint); err != nil {
		t.Fatalf("failed to set checkpoint: %v", err)
	}

	jobs, err := engine.Run(context.Background(), user.ID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	ids := jobs[0].Config.VideoIDs()
	if len(ids) != 1 || ids[0] != "vid-new" {
		t.Errorf("included ids = %v, want [vid-new]", ids)
	}
}

func TestRunNoNewVideosNoJob(t *testing.T) {
	checkpoint := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock := &testingx.MockVideoSource{
		ChannelVideosFn: func(ctx context.Context, channelID string) ([]models.Video, error) {
			return []models.Video{video("vid-old", channelID, checkpoint.Add(-time.Hour))}, nil
		},
	}

	engine, catalog, _ := newTestEngine(t, mock)
	user := seedUser(t, catalog)
	source := seedCollection(t, catalog, user.ID, "UC-alpha")

	if err := catalog.Sources.UpdateLastProcessed(source.ID, checkpoint); err != nil {
		t.Fatalf("failed to set checkpoint: %v", err)
	}

	jobs, err := engine.Run(context.Background(), user.ID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}

	refreshed, err := catalog.Sources.Get(source.ID)
	if err != nil {
		t.Fatalf("failed to reload source: %v", err)
	}
	if refreshed.LastProcessedAt == nil || !refreshed.LastProcessedAt.Equal(checkpoint) {
		t.Errorf("checkpoint moved without a job: %v", refreshed.LastProcessedAt)
	}
}

func TestRunPlaylistResolvesNewChannel(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock := &testingx.MockVideoSource{
		PlaylistVideosFn: func(ctx context.Context, playlistID string) ([]models.Video, error) {
			return []models.Video{video("vid-1", "UC-unseen", base)}, nil
		},
		ChannelInfoFn: func(ctx context.Context, channelID string) (*models.Channel, error) {
			return &models.Channel{YouTubeChannelID: channelID, Title: "Unseen"}, nil
		},
	}

	engine, catalog, _ := newTestEngine(t, mock)
	user := seedUser(t, catalog)
	seedPlaylist(t, catalog, user.ID, "PL-test")

	jobs, err := engine.Run(context.Background(), user.ID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if mock.InfoCalls != 1 {
		t.Errorf("channel info calls = %d, want 1", mock.InfoCalls)
	}

	channel, err := catalog.Channels.Get("UC-unseen")
	if err != nil {
		t.Fatalf("discovered channel was not stored: %v", err)
	}
	if channel.Title != "Unseen" {
		t.Errorf("channel title = %q, want %q", channel.Title, "Unseen")
	}
}

func TestRunUnresolvableChannelDropsVideos(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock := &testingx.MockVideoSource{
		PlaylistVideosFn: func(ctx context.Context, playlistID string) ([]models.Video, error) {
			return []models.Video{video("vid-1", "UC-ghost", base)}, nil
		},
	}

	engine, catalog, _ := newTestEngine(t, mock)
	user := seedUser(t, catalog)
	seedPlaylist(t, catalog, user.ID, "PL-test")

	jobs, err := engine.Run(context.Background(), user.ID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no jobs when no channel resolves, got %d", len(jobs))
	}
}

func TestRunDeduplicatesAcrossChannels(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Both channels surface the same collaboration video.
	mock := &testingx.MockVideoSource{
		ChannelVideosFn: func(ctx context.Context, channelID string) ([]models.Video, error) {
			return []models.Video{video("vid-collab", "UC-alpha", base)}, nil
		},
	}

	engine, catalog, _ := newTestEngine(t, mock)
	user := seedUser(t, catalog)
	source := seedCollection(t, catalog, user.ID, "UC-alpha", "UC-beta")

	jobs, err := engine.Run(context.Background(), user.ID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	if ids := jobs[0].Config.VideoIDs(); len(ids) != 1 || ids[0] != "vid-collab" {
		t.Errorf("included ids = %v, want [vid-collab]", ids)
	}

	links, err := catalog.Videos.ListSourceVideos(source.ID)
	if err != nil {
		t.Fatalf("failed to list source videos: %v", err)
	}
	if len(links) != 1 {
		t.Errorf("source has %d links, want 1", len(links))
	}
}

func TestRunFailingChannelKeepsSiblings(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// The engine treats any provider error as fatal to the source, so sibling
	// isolation rests on the provider degrading per-channel failures to empty
	// results. Run the real provider here, not a bare mock.
	primary := &testingx.MockVideoSource{
		SourceName: "api",
		ChannelVideosFn: func(ctx context.Context, channelID string) ([]models.Video, error) {
			if channelID == "UC-broken" {
				return nil, fmt.Errorf("channel listing: %w", shared.ErrUpstream)
			}
			return []models.Video{video("vid-"+channelID, channelID, base)}, nil
		},
	}
	fallback := &testingx.MockVideoSource{SourceName: "feed"}
	provider := services.NewProvider(primary, fallback, shared.NewLogger(io.Discard))

	engine, catalog, _ := newTestEngine(t, provider)
	user := seedUser(t, catalog)
	source := seedCollection(t, catalog, user.ID, "UC-alpha", "UC-broken", "UC-beta")

	jobs, err := engine.Run(context.Background(), user.ID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job despite a failing channel, got %d", len(jobs))
	}

	got := make(map[string]bool)
	for _, id := range jobs[0].Config.VideoIDs() {
		got[id] = true
	}
	if len(got) != 2 || !got["vid-UC-alpha"] || !got["vid-UC-beta"] {
		t.Errorf("job video ids = %v, want the two healthy channels'", jobs[0].Config.VideoIDs())
	}

	if fallback.ChannelCalls != 0 {
		t.Errorf("fallback consulted %d times for a non-quota failure", fallback.ChannelCalls)
	}

	refreshed, err := catalog.Sources.Get(source.ID)
	if err != nil {
		t.Fatalf("failed to reload source: %v", err)
	}
	if refreshed.LastProcessedAt == nil {
		t.Error("checkpoint did not advance after the partial job")
	}
}

func TestRunPlaylistWithoutIDSkipped(t *testing.T) {
	mock := &testingx.MockVideoSource{}
	engine, catalog, db := newTestEngine(t, mock)
	user := seedUser(t, catalog)
	source := seedPlaylist(t, catalog, user.ID, "PL-test")

	// Simulate a legacy row that lost its playlist id.
	if _, err := db.Exec("UPDATE sources SET youtube_playlist_id = NULL WHERE id = ?", source.ID); err != nil {
		t.Fatalf("failed to clear playlist id: %v", err)
	}

	jobs, err := engine.Run(context.Background(), user.ID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
	if mock.PlaylistCalls != 0 {
		t.Error("upstream was called for a source without a playlist id")
	}
}

func TestRunJobPayloadShape(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock := &testingx.MockVideoSource{
		ChannelVideosFn: func(ctx context.Context, channelID string) ([]models.Video, error) {
			return []models.Video{video("vid-1", channelID, base)}, nil
		},
	}

	engine, catalog, _ := newTestEngine(t, mock)
	user := seedUser(t, catalog)

	source := &models.Source{
		UserID:      user.ID,
		Type:        models.SourceTypeChannelCollection,
		Name:        "with prefs",
		Preferences: map[string]any{"voice": "calm", "length_minutes": float64(10)},
	}
	if err := catalog.Sources.Insert(source); err != nil {
		t.Fatalf("failed to seed source: %v", err)
	}

	channel := &models.Channel{YouTubeChannelID: "UC-alpha"}
	if err := catalog.Channels.Insert(channel); err != nil {
		t.Fatalf("failed to seed channel: %v", err)
	}
	if err := catalog.Sources.LinkChannel(source.ID, "UC-alpha"); err != nil {
		t.Fatalf("failed to link channel: %v", err)
	}

	jobs, err := engine.Run(context.Background(), user.ID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	opts := jobs[0].Config.ProcessingOptions

	if got := opts[models.ProcessingOptionSourceID]; got != source.ID {
		t.Errorf("payload source id = %v, want %s", got, source.ID)
	}

	prefs, ok := opts[models.ProcessingOptionPreferences].(map[string]any)
	if !ok {
		t.Fatalf("payload preferences have type %T", opts[models.ProcessingOptionPreferences])
	}
	if prefs["voice"] != "calm" {
		t.Errorf("preferences were not copied through: %v", prefs)
	}

	if ids := jobs[0].Config.VideoIDs(); len(ids) != 1 || ids[0] != "vid-1" {
		t.Errorf("payload video ids = %v, want [vid-1]", ids)
	}
}

func TestRunBatchesLargeVideoSets(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// 5 videos against a batch size of 2 exercises the batching loop.
	mock := &testingx.MockVideoSource{
		ChannelVideosFn: func(ctx context.Context, channelID string) ([]models.Video, error) {
			videos := make([]models.Video, 5)
			for i := range videos {
				videos[i] = video(
					"vid-"+string(rune('a'+i)),
					channelID,
					base.Add(time.Duration(i)*time.Minute),
				)
			}
			return videos, nil
		},
	}

	engine, catalog, _ := newTestEngine(t, mock)
	user := seedUser(t, catalog)
	source := seedCollection(t, catalog, user.ID, "UC-alpha")

	jobs, err := engine.Run(context.Background(), user.ID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if ids := jobs[0].Config.VideoIDs(); len(ids) != 5 {
		t.Errorf("job carries %d video ids, want 5", len(ids))
	}

	links, err := catalog.Videos.ListSourceVideos(source.ID)
	if err != nil {
		t.Fatalf("failed to list source videos: %v", err)
	}
	if len(links) != 5 {
		t.Errorf("source has %d linked videos, want 5", len(links))
	}
}

func TestRunMultipleSources(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock := &testingx.MockVideoSource{
		ChannelVideosFn: func(ctx context.Context, channelID string) ([]models.Video, error) {
			return []models.Video{video("vid-"+channelID, channelID, base)}, nil
		},
		PlaylistVideosFn: func(ctx context.Context, playlistID string) ([]models.Video, error) {
			return []models.Video{video("vid-from-playlist", "UC-alpha", base)}, nil
		},
	}

	engine, catalog, _ := newTestEngine(t, mock)
	user := seedUser(t, catalog)
	seedCollection(t, catalog, user.ID, "UC-alpha")
	seedPlaylist(t, catalog, user.ID, "PL-test")

	jobs, err := engine.Run(context.Background(), user.ID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected one job per source, got %d", len(jobs))
	}
	if jobs[0].SourceID == jobs[1].SourceID {
		t.Error("both jobs reference the same source")
	}
}

func TestRunEmitsProgress(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock := &testingx.MockVideoSource{
		ChannelVideosFn: func(ctx context.Context, channelID string) ([]models.Video, error) {
			return []models.Video{video("vid-1", channelID, base)}, nil
		},
	}

	engine, catalog, _ := newTestEngine(t, mock)
	user := seedUser(t, catalog)
	seedCollection(t, catalog, user.ID, "UC-alpha")

	progress := make(chan ProgressUpdate, 64)

	if _, err := engine.Run(context.Background(), user.ID, progress); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(progress)

	phases := make(map[Phase]bool)
	for update := range progress {
		phases[update.Phase] = true
	}

	for _, phase := range []Phase{PhaseResolveSources, PhaseFetchChannel, PhaseLinkVideos, PhaseCreateJob} {
		if !phases[phase] {
			t.Errorf("no progress update for phase %s", phase)
		}
	}
}
