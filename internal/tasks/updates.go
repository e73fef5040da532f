package tasks

import (
	"fmt"
	"sync"
)

// Phase labels the stage of a monitoring run a progress update belongs to.
type Phase string

const (
	PhaseResolveSources Phase = "resolve_sources"
	PhaseFetchChannel   Phase = "fetch_channel"
	PhaseFetchPlaylist  Phase = "fetch_playlist"
	PhaseMergeCatalog   Phase = "merge_catalog"
	PhaseLinkVideos     Phase = "link_videos"
	PhaseCreateJob      Phase = "create_job"
)

// ProgressUpdate is emitted on the optional progress channel passed to
// [MonitorEngine.Run]. Sends are non-blocking: slow or absent consumers never
// stall a run.
type ProgressUpdate struct {
	Phase     Phase
	SourceID  string
	Message   string
	Processed int
	Total     int
	Err       error
}

func (u ProgressUpdate) String() string {
	if u.Total > 0 {
		return fmt.Sprintf("[%s] %s (%d/%d)", u.Phase, u.Message, u.Processed, u.Total)
	}

	return fmt.Sprintf("[%s] %s", u.Phase, u.Message)
}

// sendProgress delivers an update without blocking. Updates dropped by a full
// channel are fine; the progress stream is advisory.
func sendProgress(ch chan<- ProgressUpdate, update ProgressUpdate) {
	if ch == nil {
		return
	}

	select {
	case ch <- update:
	default:
	}
}

// SourceProgress is the per-source counter pair held in a run's progress map.
type SourceProgress struct {
	Processed int
	Total     int
}

// runState carries the in-memory progress map for a single run. It is created
// by Run and garbage-collected with it.
type runState struct {
	mu       sync.Mutex
	progress map[string]*SourceProgress
}

func newRunState() *runState {
	return &runState{progress: make(map[string]*SourceProgress)}
}

func (s *runState) begin(sourceID string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress[sourceID] = &SourceProgress{Total: total}
}

// advance bumps the processed counter for sourceID and returns the new pair.
func (s *runState) advance(sourceID string) SourceProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.progress[sourceID]
	if !ok {
		p = &SourceProgress{}
		s.progress[sourceID] = p
	}

	p.Processed++

	return *p
}
