package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/shared"
)

// SourceRepository persists [models.Source] records, their channel
// membership, and the ingestion checkpoint.
type SourceRepository struct {
	db *sql.DB
}

// NewSourceRepository creates a new [SourceRepository] with the given database connection
func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// Insert stores a new source with a generated ID.
func (r *SourceRepository) Insert(source *models.Source) error {
	if source.ID == "" {
		source.ID = shared.GenerateID()
	}
	if err := source.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if source.CreatedAt.IsZero() {
		source.CreatedAt = time.Now().UTC()
	}

	prefs, err := marshalJSON(source.Preferences)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sources (id, user_id, source_type, name, youtube_playlist_id, preferences, last_processed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		source.ID,
		source.UserID,
		string(source.Type),
		source.Name,
		source.YouTubePlaylistID,
		prefs,
		nullTime(source.LastProcessedAt),
		source.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert source: %w", err)
	}

	return nil
}

const sourceColumns = `id, user_id, source_type, name, youtube_playlist_id, preferences, last_processed_at, created_at`

func scanSource(row interface{ Scan(...any) error }) (*models.Source, error) {
	var (
		source      models.Source
		sourceType  string
		playlistID  sql.NullString
		prefs       string
		processedAt sql.NullTime
	)

	err := row.Scan(
		&source.ID, &source.UserID, &sourceType, &source.Name,
		&playlistID, &prefs, &processedAt, &source.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	source.Type = models.SourceType(sourceType)
	if playlistID.Valid {
		source.YouTubePlaylistID = &playlistID.String
	}
	source.LastProcessedAt = timePtr(processedAt)
	if err := unmarshalJSON(prefs, &source.Preferences); err != nil {
		return nil, err
	}

	return &source, nil
}

// Get retrieves a source by ID.
func (r *SourceRepository) Get(id string) (*models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = ?`

	source, err := scanSource(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: source %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}

	return source, nil
}

// ListByUser returns all sources owned by a user, oldest first.
func (r *SourceRepository) ListByUser(userID string) ([]models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE user_id = ? ORDER BY created_at ASC`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return sources, nil
}

// UpdateLastProcessed advances the source's ingestion checkpoint. Only the
// checkpoint column is touched; the engine calls this exactly once per
// successful run, strictly after job creation.
func (r *SourceRepository) UpdateLastProcessed(id string, processedAt time.Time) error {
	query := `UPDATE sources SET last_processed_at = ? WHERE id = ?`

	result, err := r.db.Exec(query, processedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update source checkpoint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: source %s", shared.ErrNotFound, id)
	}

	return nil
}

// LinkChannel adds a channel to a collection source. Linking an already
// linked channel is a no-op.
func (r *SourceRepository) LinkChannel(sourceID, youtubeChannelID string) error {
	query := `
		INSERT INTO source_channels (source_id, youtube_channel_id)
		VALUES (?, ?)
		ON CONFLICT(source_id, youtube_channel_id) DO NOTHING
	`

	if _, err := r.db.Exec(query, sourceID, youtubeChannelID); err != nil {
		return fmt.Errorf("failed to link channel to source: %w", err)
	}

	return nil
}

// UnlinkChannel removes a channel from a collection source.
func (r *SourceRepository) UnlinkChannel(sourceID, youtubeChannelID string) error {
	query := `DELETE FROM source_channels WHERE source_id = ? AND youtube_channel_id = ?`

	if _, err := r.db.Exec(query, sourceID, youtubeChannelID); err != nil {
		return fmt.Errorf("failed to unlink channel from source: %w", err)
	}

	return nil
}

// ListSourceChannels returns the membership links of a collection source.
func (r *SourceRepository) ListSourceChannels(sourceID string) ([]models.SourceChannel, error) {
	query := `
		SELECT source_id, youtube_channel_id
		FROM source_channels
		WHERE source_id = ?
		ORDER BY youtube_channel_id
	`

	rows, err := r.db.Query(query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query source channels: %w", err)
	}
	defer rows.Close()

	var links []models.SourceChannel
	for rows.Next() {
		var link models.SourceChannel
		if err := rows.Scan(&link.SourceID, &link.YouTubeChannelID); err != nil {
			return nil, fmt.Errorf("failed to scan source channel: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return links, nil
}
