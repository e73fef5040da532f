package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/shared"
)

// RecordStore is the persistence surface the engine consumes. Satisfied by
// *repositories.Catalog.
type RecordStore interface {
	GetUser(id string) (*models.User, error)
	ListSourcesByUser(userID string) ([]models.Source, error)
	ListSourceChannels(sourceID string) ([]models.SourceChannel, error)
	GetChannel(youtubeChannelID string) (*models.Channel, error)
	BulkInsertChannels(channels []models.Channel) error
	BulkInsertVideos(videos []models.Video) ([]models.Video, error)
	BulkInsertSourceVideos(links []models.SourceVideo) error
	InsertSourceVideo(link *models.SourceVideo) error
	InsertGenerationJob(job *models.GenerationJob) (*models.GenerationJob, error)
	UpdateSourceLastProcessed(sourceID string, processedAt time.Time) error
}

// VideoProvider is the upstream surface the engine consumes. Satisfied by
// *services.Provider, which owns backend selection and fallback; by the time
// a call returns here the only errors left are authentication failures and
// context cancellation.
type VideoProvider interface {
	FetchChannelVideos(ctx context.Context, channelID string) ([]models.Video, error)
	FetchPlaylistVideos(ctx context.Context, playlistID string) ([]models.Video, error)
	FetchChannelInfo(ctx context.Context, channelID string) (*models.Channel, error)
}

// MonitorEngine runs the ingestion pipeline for one user at a time.
type MonitorEngine struct {
	store    RecordStore
	provider VideoProvider
	quota    *QuotaTracker
	cfg      shared.MonitorConfig
	logger   *log.Logger

	// injectable for tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewMonitorEngine builds an engine over the given store and provider.
// Zero-valued tuning fields fall back to the packaged defaults.
func NewMonitorEngine(store RecordStore, provider VideoProvider, cfg shared.MonitorConfig, logger *log.Logger) *MonitorEngine {
	defaults := shared.DefaultConfig().Monitor
	if cfg.DailyQuota <= 0 {
		cfg.DailyQuota = defaults.DailyQuota
	}
	if cfg.QuotaThreshold <= 0 {
		cfg.QuotaThreshold = defaults.QuotaThreshold
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.MaxBatchRetries <= 0 {
		cfg.MaxBatchRetries = defaults.MaxBatchRetries
	}
	if cfg.RetryCooldownSec <= 0 {
		cfg.RetryCooldownSec = defaults.RetryCooldownSec
	}
	if cfg.ChannelWorkers <= 0 {
		cfg.ChannelWorkers = defaults.ChannelWorkers
	}

	return &MonitorEngine{
		store:    store,
		provider: provider,
		quota:    NewQuotaTracker(cfg.DailyQuota, cfg.QuotaThreshold),
		cfg:      cfg,
		logger:   shared.WithLogger(logger, "component", "monitor"),
		sleep:    sleepContext,
		now:      time.Now,
	}
}

// Quota exposes the engine's daily budget tracker for status display.
func (e *MonitorEngine) Quota() *QuotaTracker {
	return e.quota
}

// Run processes every source the user owns and returns the generation jobs
// created, at most one per source. Unknown users and users without sources
// yield an empty result. A failing source is logged and skipped; only context
// cancellation and initial store failures end the run early, and the jobs
// already created are returned alongside the error.
//
// progress may be nil; when set, advisory updates are delivered without
// blocking.
func (e *MonitorEngine) Run(ctx context.Context, userID string, progress chan<- ProgressUpdate) ([]models.GenerationJob, error) {
	user, err := e.store.GetUser(userID)
	if errors.Is(err, shared.ErrNotFound) {
		e.logger.Warn("monitor run requested for unknown user", "user_id", userID)
		return []models.GenerationJob{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	sources, err := e.store.ListSourcesByUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources for user %s: %w", user.ID, err)
	}

	if len(sources) == 0 {
		e.logger.Info("user has no sources configured", "user_id", user.ID)
		return []models.GenerationJob{}, nil
	}

	e.logger.Info("starting monitor run", "user_id", user.ID, "sources", len(sources))
	sendProgress(progress, ProgressUpdate{
		Phase:   PhaseResolveSources,
		Message: fmt.Sprintf("monitoring %d sources", len(sources)),
		Total:   len(sources),
	})

	run := newRunState()
	jobs := make([]models.GenerationJob, 0, len(sources))

	for i := range sources {
		source := sources[i]

		if err := ctx.Err(); err != nil {
			return jobs, err
		}

		job, err := e.processSource(ctx, user, &source, run, progress)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return jobs, err
			}

			e.logger.Error("source processing aborted", "source_id", source.ID, "error", err)

			continue
		}

		if job != nil {
			jobs = append(jobs, *job)
		}
	}

	e.logger.Info("monitor run finished", "user_id", user.ID, "jobs_created", len(jobs))

	return jobs, nil
}

func (e *MonitorEngine) processSource(ctx context.Context, user *models.User, source *models.Source, run *runState, progress chan<- ProgressUpdate) (*models.GenerationJob, error) {
	switch source.Type {
	case models.SourceTypeChannelCollection:
		return e.processCollection(ctx, user, source, run, progress)
	case models.SourceTypePlaylist:
		return e.processPlaylist(ctx, user, source, run, progress)
	default:
		e.logger.Error("skipping source with unknown type", "source_id", source.ID, "type", source.Type)
		return nil, nil
	}
}

func (e *MonitorEngine) processCollection(ctx context.Context, user *models.User, source *models.Source, run *runState, progress chan<- ProgressUpdate) (*models.GenerationJob, error) {
	links, err := e.store.ListSourceChannels(source.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels for source %s: %w", source.ID, err)
	}

	if len(links) == 0 {
		e.logger.Warn("collection source has no channels linked", "source_id", source.ID)
		return nil, nil
	}

	run.begin(source.ID, len(links))

	fetched, err := e.fetchCollection(ctx, source, links, run, progress)
	if err != nil {
		return nil, err
	}

	return e.ingest(ctx, user, source, fetched, progress)
}

// fetchCollection fans fetches out over a bounded worker pool. Per-channel
// failures degrade to that channel contributing nothing; authentication
// failures and cancellation stop the whole collection.
func (e *MonitorEngine) fetchCollection(ctx context.Context, source *models.Source, links []models.SourceChannel, run *runState, progress chan<- ProgressUpdate) ([]models.Video, error) {
	workers := min(e.cfg.ChannelWorkers, len(links))

	work := make(chan models.SourceChannel)

	var (
		mu     sync.Mutex
		videos []models.Video
		fatal  error
	)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for link := range work {
				vids, err := e.fetchChannel(ctx, link.YouTubeChannelID)
				prog := run.advance(source.ID)

				mu.Lock()
				if err != nil {
					if fatal == nil {
						fatal = err
					}
				} else {
					videos = append(videos, vids...)
				}
				mu.Unlock()

				sendProgress(progress, ProgressUpdate{
					Phase:     PhaseFetchChannel,
					SourceID:  source.ID,
					Message:   link.YouTubeChannelID,
					Processed: prog.Processed,
					Total:     prog.Total,
					Err:       err,
				})
			}
		}()
	}

feed:
	for _, link := range links {
		select {
		case work <- link:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)

	wg.Wait()

	if fatal != nil {
		return nil, fatal
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return videos, nil
}

// fetchChannel resolves one linked channel from the catalog and lists its
// recent videos. Channels missing from the catalog are skipped; the link will
// succeed on a later run once the channel record exists.
func (e *MonitorEngine) fetchChannel(ctx context.Context, channelID string) ([]models.Video, error) {
	channel, err := e.store.GetChannel(channelID)
	if errors.Is(err, shared.ErrNotFound) {
		e.logger.Warn("linked channel missing from catalog", "channel_id", channelID)
		return nil, nil
	}

	if err != nil {
		e.logger.Error("failed to load channel", "channel_id", channelID, "error", err)
		return nil, nil
	}

	if err := e.quota.Wait(ctx); err != nil {
		return nil, err
	}

	videos, err := e.provider.FetchChannelVideos(ctx, channel.YouTubeChannelID)
	e.quota.Record(1)

	return videos, err
}

func (e *MonitorEngine) processPlaylist(ctx context.Context, user *models.User, source *models.Source, run *runState, progress chan<- ProgressUpdate) (*models.GenerationJob, error) {
	if source.YouTubePlaylistID == nil || *source.YouTubePlaylistID == "" {
		e.logger.Error("playlist source has no playlist id", "source_id", source.ID)
		return nil, nil
	}

	run.begin(source.ID, 1)

	if err := e.quota.Wait(ctx); err != nil {
		return nil, err
	}

	videos, err := e.provider.FetchPlaylistVideos(ctx, *source.YouTubePlaylistID)
	e.quota.Record(1)

	prog := run.advance(source.ID)
	sendProgress(progress, ProgressUpdate{
		Phase:     PhaseFetchPlaylist,
		SourceID:  source.ID,
		Message:   *source.YouTubePlaylistID,
		Processed: prog.Processed,
		Total:     prog.Total,
		Err:       err,
	})

	if err != nil {
		return nil, err
	}

	return e.ingest(ctx, user, source, videos, progress)
}

// ingest merges fetched videos into the catalog, filters them against the
// source checkpoint, links survivors, and enqueues a job when anything
// survived. The checkpoint advances only after the job insert is verified.
func (e *MonitorEngine) ingest(ctx context.Context, user *models.User, source *models.Source, fetched []models.Video, progress chan<- ProgressUpdate) (*models.GenerationJob, error) {
	if len(fetched) == 0 {
		e.logger.Info("no videos fetched for source", "source_id", source.ID)
		return nil, nil
	}

	fetched = dedupeVideos(fetched)

	merged, err := e.mergeCatalog(ctx, fetched)
	if err != nil {
		return nil, err
	}

	sendProgress(progress, ProgressUpdate{
		Phase:    PhaseMergeCatalog,
		SourceID: source.ID,
		Message:  fmt.Sprintf("merged %d videos into catalog", len(merged)),
	})

	included := filterNewVideos(merged, source.LastProcessedAt, e.logger)
	if len(included) == 0 {
		e.logger.Info("no new videos for source", "source_id", source.ID, "fetched", len(merged))
		return nil, nil
	}

	linked, err := e.linkVideos(ctx, source.ID, included, progress)
	if err != nil {
		return nil, err
	}

	if len(linked) == 0 {
		e.logger.Warn("every new video was dropped while linking", "source_id", source.ID)
		return nil, nil
	}

	job := &models.GenerationJob{
		UserID:   user.ID,
		SourceID: source.ID,
		Status:   models.JobStatusQueued,
		Config:   models.IngestionJobConfig(videoIDs(linked), source.ID, source.Preferences),
	}

	inserted, err := e.store.InsertGenerationJob(job)
	if err != nil {
		e.logger.Error("failed to enqueue generation job", "source_id", source.ID, "error", err)
		return nil, nil
	}

	if inserted.SourceID != source.ID {
		e.logger.Error("persisted job references wrong source, discarding",
			"job_id", inserted.ID, "want", source.ID, "got", inserted.SourceID)
		return nil, nil
	}

	sendProgress(progress, ProgressUpdate{
		Phase:    PhaseCreateJob,
		SourceID: source.ID,
		Message:  fmt.Sprintf("queued job %s with %d videos", inserted.ID, len(linked)),
	})

	if err := e.store.UpdateSourceLastProcessed(source.ID, e.now().UTC()); err != nil {
		// The job is already queued; a stale checkpoint only means the next
		// run re-evaluates these videos.
		e.logger.Error("failed to advance source checkpoint", "source_id", source.ID, "error", err)
	}

	return inserted, nil
}

// mergeCatalog upserts fetched videos into the shared catalog, first
// resolving any channels seen for the first time. Videos whose channel cannot
// be resolved are dropped; without a channel record they cannot be stored.
func (e *MonitorEngine) mergeCatalog(ctx context.Context, fetched []models.Video) ([]models.Video, error) {
	known := make(map[string]bool)

	var unknown []string
	for _, v := range fetched {
		if _, seen := known[v.ChannelID]; seen {
			continue
		}

		_, err := e.store.GetChannel(v.ChannelID)
		switch {
		case err == nil:
			known[v.ChannelID] = true
		case errors.Is(err, shared.ErrNotFound):
			known[v.ChannelID] = false
			unknown = append(unknown, v.ChannelID)
		default:
			return nil, fmt.Errorf("failed to look up channel %s: %w", v.ChannelID, err)
		}
	}

	var discovered []models.Channel
	for _, channelID := range unknown {
		info, err := e.provider.FetchChannelInfo(ctx, channelID)
		if err != nil {
			return nil, err
		}

		if info == nil {
			e.logger.Warn("could not resolve channel, dropping its videos", "channel_id", channelID)
			continue
		}

		discovered = append(discovered, *info)
		known[channelID] = true
	}

	if len(discovered) > 0 {
		if err := e.store.BulkInsertChannels(discovered); err != nil {
			return nil, fmt.Errorf("failed to store discovered channels: %w", err)
		}
	}

	keep := make([]models.Video, 0, len(fetched))
	for _, v := range fetched {
		if known[v.ChannelID] {
			keep = append(keep, v)
		}
	}

	merged, err := e.store.BulkInsertVideos(keep)
	if err != nil {
		return nil, fmt.Errorf("failed to merge videos into catalog: %w", err)
	}

	return merged, nil
}

// linkVideos writes source-video links in fixed-size batches. A batch that
// keeps failing after retries falls back to per-video inserts so one poison
// row cannot sink its whole batch; videos that still fail are dropped from
// this run and picked up again next time.
func (e *MonitorEngine) linkVideos(ctx context.Context, sourceID string, videos []models.Video, progress chan<- ProgressUpdate) ([]models.Video, error) {
	linked := make([]models.Video, 0, len(videos))

	for start := 0; start < len(videos); start += e.cfg.BatchSize {
		batch := videos[start:min(start+e.cfg.BatchSize, len(videos))]

		ok, err := e.linkBatch(ctx, sourceID, batch)
		if err != nil {
			return nil, err
		}

		if ok {
			linked = append(linked, batch...)
		} else {
			linked = append(linked, e.linkSingly(sourceID, batch)...)
		}

		sendProgress(progress, ProgressUpdate{
			Phase:     PhaseLinkVideos,
			SourceID:  sourceID,
			Message:   "linking videos",
			Processed: len(linked),
			Total:     len(videos),
		})
	}

	return linked, nil
}

// linkBatch attempts one batch up to the retry limit. Quota-flavored failures
// cool down before the next attempt; anything else retries immediately.
func (e *MonitorEngine) linkBatch(ctx context.Context, sourceID string, batch []models.Video) (bool, error) {
	links := make([]models.SourceVideo, len(batch))
	for i, v := range batch {
		links[i] = models.SourceVideo{SourceID: sourceID, YouTubeVideoID: v.YouTubeVideoID}
	}

	for attempt := 1; attempt <= e.cfg.MaxBatchRetries; attempt++ {
		err := e.store.BulkInsertSourceVideos(links)
		if err == nil {
			return true, nil
		}

		e.logger.Warn("batch link attempt failed",
			"source_id", sourceID, "attempt", attempt, "batch_size", len(batch), "error", err)

		if attempt == e.cfg.MaxBatchRetries {
			break
		}

		if errors.Is(err, shared.ErrQuotaExceeded) {
			if err := e.sleep(ctx, e.cfg.RetryCooldown()); err != nil {
				return false, err
			}
		}
	}

	return false, nil
}

func (e *MonitorEngine) linkSingly(sourceID string, batch []models.Video) []models.Video {
	kept := make([]models.Video, 0, len(batch))

	for _, v := range batch {
		link := models.SourceVideo{SourceID: sourceID, YouTubeVideoID: v.YouTubeVideoID}
		if err := e.store.InsertSourceVideo(&link); err != nil {
			e.logger.Error("dropping video from run", "video_id", v.YouTubeVideoID, "error", err)
			continue
		}

		kept = append(kept, v)
	}

	return kept
}

// dedupeVideos removes repeated video ids, keeping first occurrence order.
// Collections can legitimately surface the same video through more than one
// channel fetch.
func dedupeVideos(videos []models.Video) []models.Video {
	seen := make(map[string]bool, len(videos))
	out := make([]models.Video, 0, len(videos))

	for _, v := range videos {
		if seen[v.YouTubeVideoID] {
			continue
		}

		seen[v.YouTubeVideoID] = true
		out = append(out, v)
	}

	return out
}

func videoIDs(videos []models.Video) []string {
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.YouTubeVideoID
	}

	return ids
}
