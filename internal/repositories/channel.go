package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/shared"
)

// ChannelRepository persists the shared [models.Channel] catalog.
type ChannelRepository struct {
	db *sql.DB
}

// NewChannelRepository creates a new [ChannelRepository] with the given database connection
func NewChannelRepository(db *sql.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

const channelUpsert = `
	INSERT INTO channels (youtube_channel_id, title, description, channel_url, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(youtube_channel_id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		channel_url = excluded.channel_url
`

// Insert stores a channel, refreshing title/description/url if the channel
// id is already cataloged. Inserting the same channel twice is safe.
func (r *ChannelRepository) Insert(channel *models.Channel) error {
	if err := channel.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(channelUpsert,
		channel.YouTubeChannelID,
		channel.Title,
		channel.Description,
		channel.ChannelURL,
		channel.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert channel: %w", err)
	}

	return nil
}

// BulkInsert upserts a batch of channels inside one transaction.
func (r *ChannelRepository) BulkInsert(channels []models.Channel) error {
	if len(channels) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(channelUpsert)
	if err != nil {
		return fmt.Errorf("failed to prepare channel upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range channels {
		channel := &channels[i]
		if err := channel.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if channel.CreatedAt.IsZero() {
			channel.CreatedAt = now
		}
		if _, err := stmt.Exec(
			channel.YouTubeChannelID,
			channel.Title,
			channel.Description,
			channel.ChannelURL,
			channel.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert channel %s: %w", channel.YouTubeChannelID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit channel batch: %w", err)
	}

	return nil
}

// Get retrieves a channel by its YouTube channel id.
func (r *ChannelRepository) Get(youtubeChannelID string) (*models.Channel, error) {
	query := `
		SELECT youtube_channel_id, title, description, channel_url, created_at
		FROM channels
		WHERE youtube_channel_id = ?
	`

	var (
		channel     models.Channel
		title       sql.NullString
		description sql.NullString
		channelURL  sql.NullString
	)

	err := r.db.QueryRow(query, youtubeChannelID).Scan(
		&channel.YouTubeChannelID, &title, &description, &channelURL, &channel.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: channel %s", shared.ErrNotFound, youtubeChannelID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query channel: %w", err)
	}

	channel.Title = title.String
	channel.Description = description.String
	channel.ChannelURL = channelURL.String

	return &channel, nil
}

// ListBySource returns the member channels of a collection source.
func (r *ChannelRepository) ListBySource(sourceID string) ([]models.Channel, error) {
	query := `
		SELECT c.youtube_channel_id, c.title, c.description, c.channel_url, c.created_at
		FROM channels c
		JOIN source_channels sc ON sc.youtube_channel_id = c.youtube_channel_id
		WHERE sc.source_id = ?
		ORDER BY c.youtube_channel_id
	`

	rows, err := r.db.Query(query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query source channels: %w", err)
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var (
			channel     models.Channel
			title       sql.NullString
			description sql.NullString
			channelURL  sql.NullString
		)
		if err := rows.Scan(&channel.YouTubeChannelID, &title, &description, &channelURL, &channel.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channel.Title = title.String
		channel.Description = description.String
		channel.ChannelURL = channelURL.String
		channels = append(channels, channel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return channels, nil
}
