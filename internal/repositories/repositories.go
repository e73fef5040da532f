package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rozentia/tubextend/internal/models"
)

// Catalog bundles the entity repositories behind one store handle.
//
// It is constructed once at process start and reused across runs; the
// ingestion engine consumes it through its RecordStore interface so tests
// can substitute an in-memory double.
type Catalog struct {
	Users    *UserRepository
	Channels *ChannelRepository
	Sources  *SourceRepository
	Videos   *VideoRepository
	Jobs     *JobRepository
}

// NewCatalog creates a Catalog over the given database connection.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{
		Users:    NewUserRepository(db),
		Channels: NewChannelRepository(db),
		Sources:  NewSourceRepository(db),
		Videos:   NewVideoRepository(db),
		Jobs:     NewJobRepository(db),
	}
}

// The methods below forward to the entity repositories so a *Catalog can be
// handed to consumers as a single store value.

func (c *Catalog) GetUser(id string) (*models.User, error) {
	return c.Users.Get(id)
}

func (c *Catalog) ListSourcesByUser(userID string) ([]models.Source, error) {
	return c.Sources.ListByUser(userID)
}

func (c *Catalog) ListSourceChannels(sourceID string) ([]models.SourceChannel, error) {
	return c.Sources.ListSourceChannels(sourceID)
}

func (c *Catalog) GetChannel(youtubeChannelID string) (*models.Channel, error) {
	return c.Channels.Get(youtubeChannelID)
}

func (c *Catalog) BulkInsertChannels(channels []models.Channel) error {
	return c.Channels.BulkInsert(channels)
}

func (c *Catalog) BulkInsertVideos(videos []models.Video) ([]models.Video, error) {
	return c.Videos.BulkInsert(videos)
}

func (c *Catalog) BulkInsertSourceVideos(links []models.SourceVideo) error {
	return c.Videos.BulkInsertSourceVideos(links)
}

func (c *Catalog) InsertSourceVideo(link *models.SourceVideo) error {
	return c.Videos.InsertSourceVideo(link)
}

func (c *Catalog) InsertGenerationJob(job *models.GenerationJob) (*models.GenerationJob, error) {
	return c.Jobs.Insert(job)
}

func (c *Catalog) UpdateSourceLastProcessed(sourceID string, processedAt time.Time) error {
	return c.Sources.UpdateLastProcessed(sourceID, processedAt)
}

// marshalJSON serializes an opaque map column, defaulting to "{}" so the
// stored value always parses back.
func marshalJSON(m any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to serialize json column: %w", err)
	}
	return string(data), nil
}

// unmarshalJSON deserializes an opaque JSON column into target.
func unmarshalJSON(raw string, target any) error {
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("failed to parse json column: %w", err)
	}
	return nil
}

// nullTime converts an optional timestamp to its scan representation.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// timePtr converts a scanned nullable timestamp back to an optional value.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
