package models

import (
	"fmt"
	"time"
)

// JobStatus tracks a generation job through its lifecycle. The ingestion
// engine only ever creates QUEUED jobs; every later transition is owned by
// the downstream consumer.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// JobConfig is the configuration payload persisted with a job. Both maps are
// opaque at this layer; the engine copies values in verbatim and never
// interprets them.
type JobConfig struct {
	ModelParameters   map[string]any `json:"model_parameters,omitempty"`
	ProcessingOptions map[string]any `json:"processing_options,omitempty"`
}

// Processing-option keys the downstream consumer depends on.
const (
	ProcessingOptionVideoIDs    = "video_ids"
	ProcessingOptionSourceID    = "source_id"
	ProcessingOptionPreferences = "preferences"
)

// IngestionJobConfig builds the job payload the downstream worker recovers:
// the included video ids, the originating source id, and the source's
// preferences map copied verbatim.
func IngestionJobConfig(videoIDs []string, sourceID string, preferences map[string]any) JobConfig {
	prefs := make(map[string]any, len(preferences))
	for k, v := range preferences {
		prefs[k] = v
	}
	return JobConfig{
		ProcessingOptions: map[string]any{
			ProcessingOptionVideoIDs:    videoIDs,
			ProcessingOptionSourceID:    sourceID,
			ProcessingOptionPreferences: prefs,
		},
	}
}

// VideoIDs recovers the included video id list from the payload. It tolerates
// both the in-memory []string form and the []any form produced by a JSON
// round trip through the store.
func (c JobConfig) VideoIDs() []string {
	raw, ok := c.ProcessingOptions[ProcessingOptionVideoIDs]
	if !ok {
		return nil
	}
	switch ids := raw.(type) {
	case []string:
		return ids
	case []any:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if s, ok := id.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// GenerationJob is the unit of work handed to the downstream podcast worker.
type GenerationJob struct {
	ID           string
	UserID       string
	SourceID     string
	Status       JobStatus
	Config       JobConfig
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Validate checks required fields and the status enum.
func (j *GenerationJob) Validate() error {
	if j.UserID == "" {
		return fmt.Errorf("job user id is required")
	}
	if !j.Status.Valid() {
		return fmt.Errorf("invalid job status: %q", j.Status)
	}
	return nil
}
