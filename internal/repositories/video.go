package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/shared"
)

// VideoRepository persists the shared [models.Video] catalog and the
// source↔video links that mark a video as relevant to a source.
type VideoRepository struct {
	db *sql.DB
}

// NewVideoRepository creates a new [VideoRepository] with the given database connection
func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// Videos are shared catalog entries: a second observation of the same video
// id must keep the stored row, so the insert is create-if-absent.
const videoInsert = `
	INSERT INTO videos (youtube_video_id, title, description, url, channel_id, uploaded_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(youtube_video_id) DO NOTHING
`

// Insert stores a video if its id is not yet cataloged. Inserting the same
// video twice is safe and keeps the stored record.
func (r *VideoRepository) Insert(video *models.Video) error {
	if err := video.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if video.CreatedAt.IsZero() {
		video.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(videoInsert,
		video.YouTubeVideoID,
		video.Title,
		video.Description,
		video.URL,
		video.ChannelID,
		nullTime(video.UploadedAt),
		video.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}

	return nil
}

// BulkInsert upserts a batch of videos inside one transaction and returns
// the stored rows, which for previously cataloged ids are the original
// records rather than the freshly observed copies.
func (r *VideoRepository) BulkInsert(videos []models.Video) ([]models.Video, error) {
	if len(videos) == 0 {
		return nil, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(videoInsert)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare video insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	ids := make([]string, 0, len(videos))
	for i := range videos {
		video := &videos[i]
		if err := video.Validate(); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
		if video.CreatedAt.IsZero() {
			video.CreatedAt = now
		}
		if _, err := stmt.Exec(
			video.YouTubeVideoID,
			video.Title,
			video.Description,
			video.URL,
			video.ChannelID,
			nullTime(video.UploadedAt),
			video.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to upsert video %s: %w", video.YouTubeVideoID, err)
		}
		ids = append(ids, video.YouTubeVideoID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit video batch: %w", err)
	}

	return r.listByIDs(ids)
}

const videoColumns = `youtube_video_id, title, description, url, channel_id, uploaded_at, created_at`

func scanVideo(row interface{ Scan(...any) error }) (*models.Video, error) {
	var (
		video       models.Video
		title       sql.NullString
		description sql.NullString
		url         sql.NullString
		uploadedAt  sql.NullTime
	)

	err := row.Scan(
		&video.YouTubeVideoID, &title, &description, &url,
		&video.ChannelID, &uploadedAt, &video.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	video.Title = title.String
	video.Description = description.String
	video.URL = url.String
	video.UploadedAt = timePtr(uploadedAt)

	return &video, nil
}

// Get retrieves a video by its YouTube video id.
func (r *VideoRepository) Get(youtubeVideoID string) (*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE youtube_video_id = ?`

	video, err := scanVideo(r.db.QueryRow(query, youtubeVideoID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: video %s", shared.ErrNotFound, youtubeVideoID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query video: %w", err)
	}

	return video, nil
}

// listByIDs fetches the stored rows for a set of video ids.
func (r *VideoRepository) listByIDs(ids []string) ([]models.Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	query := `SELECT ` + videoColumns + ` FROM videos WHERE youtube_video_id IN (` + placeholders + `)`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]models.Video, len(ids))
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		byID[video.YouTubeVideoID] = *video
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	// Preserve the caller's id ordering.
	videos := make([]models.Video, 0, len(byID))
	for _, id := range ids {
		if video, ok := byID[id]; ok {
			videos = append(videos, video)
		}
	}

	return videos, nil
}

const sourceVideoInsert = `
	INSERT INTO source_videos (source_id, youtube_video_id, processed_at)
	VALUES (?, ?, ?)
	ON CONFLICT(source_id, youtube_video_id) DO NOTHING
`

// InsertSourceVideo links a video to a source. Linking twice is a no-op.
func (r *VideoRepository) InsertSourceVideo(link *models.SourceVideo) error {
	if link.SourceID == "" || link.YouTubeVideoID == "" {
		return fmt.Errorf("%w: source video link requires source id and video id", shared.ErrInvalidInput)
	}

	_, err := r.db.Exec(sourceVideoInsert, link.SourceID, link.YouTubeVideoID, nullTime(link.ProcessedAt))
	if err != nil {
		return fmt.Errorf("failed to insert source video: %w", err)
	}

	return nil
}

// BulkInsertSourceVideos links a batch of videos to a source inside one
// transaction, skipping links that already exist.
func (r *VideoRepository) BulkInsertSourceVideos(links []models.SourceVideo) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(sourceVideoInsert)
	if err != nil {
		return fmt.Errorf("failed to prepare source video insert: %w", err)
	}
	defer stmt.Close()

	for _, link := range links {
		if link.SourceID == "" || link.YouTubeVideoID == "" {
			return fmt.Errorf("%w: source video link requires source id and video id", shared.ErrInvalidInput)
		}
		if _, err := stmt.Exec(link.SourceID, link.YouTubeVideoID, nullTime(link.ProcessedAt)); err != nil {
			return fmt.Errorf("failed to upsert source video %s: %w", link.YouTubeVideoID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit source video batch: %w", err)
	}

	return nil
}

// ListSourceVideos returns the videos linked to a source.
func (r *VideoRepository) ListSourceVideos(sourceID string) ([]models.SourceVideo, error) {
	query := `
		SELECT source_id, youtube_video_id, processed_at
		FROM source_videos
		WHERE source_id = ?
		ORDER BY youtube_video_id
	`

	rows, err := r.db.Query(query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query source videos: %w", err)
	}
	defer rows.Close()

	var links []models.SourceVideo
	for rows.Next() {
		var (
			link        models.SourceVideo
			processedAt sql.NullTime
		)
		if err := rows.Scan(&link.SourceID, &link.YouTubeVideoID, &processedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source video: %w", err)
		}
		link.ProcessedAt = timePtr(processedAt)
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return links, nil
}

// MarkProcessed stamps a set of source↔video links as folded into a finished
// job. Used by the downstream worker, not the ingestion engine.
func (r *VideoRepository) MarkProcessed(sourceID string, videoIDs []string, processedAt time.Time) error {
	if len(videoIDs) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(videoIDs)-1) + "?"
	query := `
		UPDATE source_videos
		SET processed_at = ?
		WHERE source_id = ? AND youtube_video_id IN (` + placeholders + `)`

	args := make([]any, 0, len(videoIDs)+2)
	args = append(args, processedAt.UTC(), sourceID)
	for _, id := range videoIDs {
		args = append(args, id)
	}

	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to mark source videos processed: %w", err)
	}

	return nil
}
