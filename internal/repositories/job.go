package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/shared"
)

// JobRepository persists [models.GenerationJob] records. The ingestion
// engine only inserts QUEUED jobs; Update exists for the downstream worker
// that owns every later status transition.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new [JobRepository] with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Insert stores a new job with a generated ID and returns the persisted
// record as read back from the store.
func (r *JobRepository) Insert(job *models.GenerationJob) (*models.GenerationJob, error) {
	if job.ID == "" {
		job.ID = shared.GenerateID()
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	config, err := marshalJSON(job.Config)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO generation_jobs (id, user_id, source_id, status, config, error_message, created_at, updated_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		job.ID,
		job.UserID,
		job.SourceID,
		string(job.Status),
		config,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert generation job: %w", err)
	}

	return r.Get(job.ID)
}

// Get retrieves a job by ID.
func (r *JobRepository) Get(id string) (*models.GenerationJob, error) {
	query := `
		SELECT id, user_id, source_id, status, config, error_message, created_at, updated_at, started_at, finished_at
		FROM generation_jobs
		WHERE id = ?
	`

	var (
		job        models.GenerationJob
		sourceID   sql.NullString
		status     string
		config     string
		errMsg     sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)

	err := r.db.QueryRow(query, id).Scan(
		&job.ID, &job.UserID, &sourceID, &status, &config, &errMsg,
		&job.CreatedAt, &job.UpdatedAt, &startedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: generation job %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query generation job: %w", err)
	}

	job.SourceID = sourceID.String
	job.Status = models.JobStatus(status)
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	job.StartedAt = timePtr(startedAt)
	job.FinishedAt = timePtr(finishedAt)
	if err := unmarshalJSON(config, &job.Config); err != nil {
		return nil, err
	}

	return &job, nil
}

// Update persists status, error message and lifecycle timestamps. Reserved
// for the downstream consumer that owns job transitions.
func (r *JobRepository) Update(job *models.GenerationJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	job.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE generation_jobs
		SET status = ?, error_message = ?, updated_at = ?, started_at = ?, finished_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		string(job.Status),
		job.ErrorMessage,
		job.UpdatedAt,
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update generation job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: generation job %s", shared.ErrNotFound, job.ID)
	}

	return nil
}
