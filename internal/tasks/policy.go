package tasks

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/rozentia/tubextend/internal/models"
)

// shouldInclude decides whether a merged catalog video belongs in the current
// run for a source with the given checkpoint.
//
// A nil checkpoint means the source has never completed a run, so every
// fetched video is new by definition. Otherwise inclusion requires an upload
// time strictly after the checkpoint; a video uploaded exactly at the
// checkpoint was covered by the run that set it. Both sides are compared in
// UTC so mixed-offset timestamps order correctly.
//
// Videos without an upload time cannot be ordered against the checkpoint and
// are excluded with a warning rather than guessed at.
func shouldInclude(video models.Video, checkpoint *time.Time, logger *log.Logger) bool {
	if video.UploadedAt == nil {
		logger.Warn("skipping video without upload time", "video_id", video.YouTubeVideoID)
		return false
	}

	if checkpoint == nil {
		return true
	}

	return video.UploadedAt.UTC().After(checkpoint.UTC())
}

// filterNewVideos applies shouldInclude across a merged video list,
// preserving order.
func filterNewVideos(videos []models.Video, checkpoint *time.Time, logger *log.Logger) []models.Video {
	included := make([]models.Video, 0, len(videos))
	for _, v := range videos {
		if shouldInclude(v, checkpoint, logger) {
			included = append(included, v)
		}
	}

	return included
}
