package repositories

import (
	"testing"
	"time"

	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/shared"
	testingx "github.com/rozentia/tubextend/internal/testing"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	return NewCatalog(testingx.MustOpenDatabase(t))
}

func mustInsertUser(t *testing.T, catalog *Catalog) *models.User {
	t.Helper()

	user := &models.User{ID: shared.GenerateID(), Email: "viewer@example.com", DisplayName: "Viewer"}
	if err := catalog.Users.Insert(user); err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}

	return user
}

func mustInsertChannel(t *testing.T, catalog *Catalog, id string) *models.Channel {
	t.Helper()

	channel := &models.Channel{YouTubeChannelID: id, Title: "channel " + id}
	if err := catalog.Channels.Insert(channel); err != nil {
		t.Fatalf("Failed to insert channel: %v", err)
	}

	return channel
}

func mustInsertSource(t *testing.T, catalog *Catalog, userID string) *models.Source {
	t.Helper()

	source := &models.Source{UserID: userID, Type: models.SourceTypeChannelCollection, Name: "news"}
	if err := catalog.Sources.Insert(source); err != nil {
		t.Fatalf("Failed to insert source: %v", err)
	}

	return source
}

func TestUserRepository(t *testing.T) {
	catalog := newTestCatalog(t)

	t.Run("insert and get round trip", func(t *testing.T) {
		user := mustInsertUser(t, catalog)

		got, err := catalog.Users.Get(user.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Email != user.Email || got.DisplayName != user.DisplayName {
			t.Errorf("Get() = %+v, want %+v", got, user)
		}
		if got.RefreshToken != nil {
			t.Errorf("fresh user has refresh token %q", *got.RefreshToken)
		}
	})

	t.Run("get missing user wraps ErrNotFound", func(t *testing.T) {
		_, err := catalog.Users.Get("missing")
		testingx.AssertErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("token store and recall", func(t *testing.T) {
		user := mustInsertUser(t, catalog)
		expiry := time.Now().Add(time.Hour).UTC()

		if err := catalog.Users.StoreToken(user.ID, "refresh-123", expiry); err != nil {
			t.Fatalf("StoreToken() error = %v", err)
		}

		token, err := catalog.Users.RefreshToken(user.ID)
		if err != nil {
			t.Fatalf("RefreshToken() error = %v", err)
		}
		if token != "refresh-123" {
			t.Errorf("RefreshToken() = %q, want %q", token, "refresh-123")
		}
	})
}

func TestChannelRepository(t *testing.T) {
	catalog := newTestCatalog(t)

	t.Run("reinsert refreshes metadata", func(t *testing.T) {
		channel := mustInsertChannel(t, catalog, "UC-alpha")

		channel.Title = "renamed"
		channel.Description = "new description"
		if err := catalog.Channels.Insert(channel); err != nil {
			t.Fatalf("second Insert() error = %v", err)
		}

		got, err := catalog.Channels.Get("UC-alpha")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Title != "renamed" || got.Description != "new description" {
			t.Errorf("reinsert did not refresh metadata: %+v", got)
		}
	})

	t.Run("bulk insert", func(t *testing.T) {
		channels := []models.Channel{
			{YouTubeChannelID: "UC-one", Title: "one"},
			{YouTubeChannelID: "UC-two", Title: "two"},
		}
		if err := catalog.Channels.BulkInsert(channels); err != nil {
			t.Fatalf("BulkInsert() error = %v", err)
		}

		for _, id := range []string{"UC-one", "UC-two"} {
			if _, err := catalog.Channels.Get(id); err != nil {
				t.Errorf("channel %s missing after bulk insert: %v", id, err)
			}
		}
	})
}

func TestSourceRepository(t *testing.T) {
	catalog := newTestCatalog(t)
	user := mustInsertUser(t, catalog)

	t.Run("insert generates id and preserves preferences", func(t *testing.T) {
		source := &models.Source{
			UserID:      user.ID,
			Type:        models.SourceTypeChannelCollection,
			Name:        "tech news",
			Preferences: map[string]any{"voice": "calm"},
		}
		if err := catalog.Sources.Insert(source); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		if source.ID == "" {
			t.Fatal("Insert() did not assign an id")
		}

		got, err := catalog.Sources.Get(source.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Preferences["voice"] != "calm" {
			t.Errorf("preferences lost in round trip: %v", got.Preferences)
		}
		if got.LastProcessedAt != nil {
			t.Errorf("new source has checkpoint %v", got.LastProcessedAt)
		}
	})

	t.Run("playlist source requires playlist id", func(t *testing.T) {
		source := &models.Source{UserID: user.ID, Type: models.SourceTypePlaylist, Name: "broken"}
		if err := catalog.Sources.Insert(source); err == nil {
			t.Error("Insert() accepted playlist source without playlist id")
		}
	})

	t.Run("checkpoint update round trip", func(t *testing.T) {
		source := mustInsertSource(t, catalog, user.ID)
		checkpoint := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		if err := catalog.Sources.UpdateLastProcessed(source.ID, checkpoint); err != nil {
			t.Fatalf("UpdateLastProcessed() error = %v", err)
		}

		got, err := catalog.Sources.Get(source.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.LastProcessedAt == nil || !got.LastProcessedAt.Equal(checkpoint) {
			t.Errorf("checkpoint = %v, want %v", got.LastProcessedAt, checkpoint)
		}
	})

	t.Run("channel links are idempotent", func(t *testing.T) {
		source := mustInsertSource(t, catalog, user.ID)
		mustInsertChannel(t, catalog, "UC-linked")

		for range 2 {
			if err := catalog.Sources.LinkChannel(source.ID, "UC-linked"); err != nil {
				t.Fatalf("LinkChannel() error = %v", err)
			}
		}

		links, err := catalog.Sources.ListSourceChannels(source.ID)
		if err != nil {
			t.Fatalf("ListSourceChannels() error = %v", err)
		}
		if len(links) != 1 {
			t.Errorf("got %d links, want 1", len(links))
		}

		channels, err := catalog.Channels.ListBySource(source.ID)
		if err != nil {
			t.Fatalf("ListBySource() error = %v", err)
		}
		if len(channels) != 1 || channels[0].YouTubeChannelID != "UC-linked" {
			t.Errorf("ListBySource() = %v", channels)
		}

		if err := catalog.Sources.UnlinkChannel(source.ID, "UC-linked"); err != nil {
			t.Fatalf("UnlinkChannel() error = %v", err)
		}
		links, err = catalog.Sources.ListSourceChannels(source.ID)
		if err != nil {
			t.Fatalf("ListSourceChannels() error = %v", err)
		}
		if len(links) != 0 {
			t.Errorf("got %d links after unlink, want 0", len(links))
		}
	})

	t.Run("list by user", func(t *testing.T) {
		other := mustInsertUser(t, catalog)
		mustInsertSource(t, catalog, other.ID)

		sources, err := catalog.Sources.ListByUser(other.ID)
		if err != nil {
			t.Fatalf("ListByUser() error = %v", err)
		}
		if len(sources) != 1 {
			t.Errorf("got %d sources, want 1", len(sources))
		}
	})
}

func TestVideoRepository(t *testing.T) {
	catalog := newTestCatalog(t)
	mustInsertChannel(t, catalog, "UC-alpha")

	uploaded := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("reinsert keeps original record", func(t *testing.T) {
		first := &models.Video{YouTubeVideoID: "vid-1", Title: "original", ChannelID: "UC-alpha", UploadedAt: &uploaded}
		if err := catalog.Videos.Insert(first); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}

		second := &models.Video{YouTubeVideoID: "vid-1", Title: "changed", ChannelID: "UC-alpha", UploadedAt: &uploaded}
		if err := catalog.Videos.Insert(second); err != nil {
			t.Fatalf("second Insert() error = %v", err)
		}

		got, err := catalog.Videos.Get("vid-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Title != "original" {
			t.Errorf("reinsert replaced records: title = %q", got.Title)
		}
	})

	t.Run("bulk insert returns stored rows in caller order", func(t *testing.T) {
		seed := &models.Video{YouTubeVideoID: "vid-known", Title: "stored title", ChannelID: "UC-alpha", UploadedAt: &uploaded}
		if err := catalog.Videos.Insert(seed); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}

		batch := []models.Video{
			{YouTubeVideoID: "vid-new", Title: "fresh", ChannelID: "UC-alpha", UploadedAt: &uploaded},
			{YouTubeVideoID: "vid-known", Title: "observed again", ChannelID: "UC-alpha", UploadedAt: &uploaded},
		}

		stored, err := catalog.Videos.BulkInsert(batch)
		if err != nil {
			t.Fatalf("BulkInsert() error = %v", err)
		}
		if len(stored) != 2 {
			t.Fatalf("got %d rows, want 2", len(stored))
		}
		if stored[0].YouTubeVideoID != "vid-new" || stored[1].YouTubeVideoID != "vid-known" {
			t.Errorf("order not preserved: %s, %s", stored[0].YouTubeVideoID, stored[1].YouTubeVideoID)
		}
		if stored[1].Title != "stored title" {
			t.Errorf("stored row was replaced: title = %q", stored[1].Title)
		}
	})

	t.Run("source links and processing stamp", func(t *testing.T) {
		user := mustInsertUser(t, catalog)
		source := mustInsertSource(t, catalog, user.ID)

		links := []models.SourceVideo{
			{SourceID: source.ID, YouTubeVideoID: "vid-1"},
			{SourceID: source.ID, YouTubeVideoID: "vid-known"},
		}
		if err := catalog.Videos.BulkInsertSourceVideos(links); err != nil {
			t.Fatalf("BulkInsertSourceVideos() error = %v", err)
		}

		// A second pass over the same links is a no-op.
		if err := catalog.Videos.BulkInsertSourceVideos(links); err != nil {
			t.Fatalf("repeat BulkInsertSourceVideos() error = %v", err)
		}

		got, err := catalog.Videos.ListSourceVideos(source.ID)
		if err != nil {
			t.Fatalf("ListSourceVideos() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d links, want 2", len(got))
		}
		for _, link := range got {
			if link.ProcessedAt != nil {
				t.Errorf("fresh link %s already processed", link.YouTubeVideoID)
			}
		}

		stamp := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
		if err := catalog.Videos.MarkProcessed(source.ID, []string{"vid-1"}, stamp); err != nil {
			t.Fatalf("MarkProcessed() error = %v", err)
		}

		got, err = catalog.Videos.ListSourceVideos(source.ID)
		if err != nil {
			t.Fatalf("ListSourceVideos() error = %v", err)
		}
		for _, link := range got {
			processed := link.ProcessedAt != nil
			if link.YouTubeVideoID == "vid-1" && !processed {
				t.Error("vid-1 was not stamped")
			}
			if link.YouTubeVideoID == "vid-known" && processed {
				t.Error("vid-known was stamped unexpectedly")
			}
		}
	})
}

func TestJobRepository(t *testing.T) {
	catalog := newTestCatalog(t)
	user := mustInsertUser(t, catalog)
	source := mustInsertSource(t, catalog, user.ID)

	t.Run("insert returns persisted record with config intact", func(t *testing.T) {
		job := &models.GenerationJob{
			UserID:   user.ID,
			SourceID: source.ID,
			Status:   models.JobStatusQueued,
			Config:   models.IngestionJobConfig([]string{"vid-1", "vid-2"}, source.ID, map[string]any{"voice": "calm"}),
		}

		inserted, err := catalog.Jobs.Insert(job)
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		if inserted.ID == "" {
			t.Fatal("Insert() did not assign an id")
		}
		if inserted.SourceID != source.ID {
			t.Errorf("persisted source id = %q, want %q", inserted.SourceID, source.ID)
		}
		if inserted.Status != models.JobStatusQueued {
			t.Errorf("persisted status = %s, want QUEUED", inserted.Status)
		}

		// The config came back through a JSON round trip.
		ids := inserted.Config.VideoIDs()
		if len(ids) != 2 || ids[0] != "vid-1" || ids[1] != "vid-2" {
			t.Errorf("video ids after round trip = %v", ids)
		}
		if inserted.Config.ProcessingOptions[models.ProcessingOptionSourceID] != source.ID {
			t.Errorf("payload source id = %v", inserted.Config.ProcessingOptions[models.ProcessingOptionSourceID])
		}
	})

	t.Run("status transition via update", func(t *testing.T) {
		job := &models.GenerationJob{UserID: user.ID, SourceID: source.ID, Status: models.JobStatusQueued}

		inserted, err := catalog.Jobs.Insert(job)
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}

		started := time.Now().UTC()
		inserted.Status = models.JobStatusProcessing
		inserted.StartedAt = &started

		if err := catalog.Jobs.Update(inserted); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		got, err := catalog.Jobs.Get(inserted.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Status != models.JobStatusProcessing {
			t.Errorf("status = %s, want PROCESSING", got.Status)
		}
		if got.StartedAt == nil {
			t.Error("started_at was not persisted")
		}
	})

	t.Run("get missing job wraps ErrNotFound", func(t *testing.T) {
		_, err := catalog.Jobs.Get("missing")
		testingx.AssertErrorIs(t, err, shared.ErrNotFound)
	})
}
