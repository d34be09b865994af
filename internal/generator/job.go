package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"
)

// Job states reported in Status snapshots.
const (
	StateIdle       = "idle"
	StateInProgress = "in_progress"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// ErrRunInProgress is returned when a start request arrives for a project
// whose previous run has not finished.
var ErrRunInProgress = errors.New("generation already in progress")

// Status is a point-in-time snapshot of one project's generation job.
type Status struct {
	Slug            string    `json:"slug"`
	State           string    `json:"state"`
	CurrentChunk    int       `json:"current_chunk"`
	ProcessedChunks int       `json:"processed_chunks"`
	TotalChunks     int       `json:"total_chunks"`
	Generated       int       `json:"generated"`
	Failed          int       `json:"failed"`
	Percent         float64   `json:"percent"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at,omitzero"`
	FinishedAt      time.Time `json:"finished_at,omitzero"`
}

// Manager runs generation batches in the background, one at a time per
// project, and serves status snapshots.
type Manager struct {
	generator *Generator
	log       *logger.Logger
	onDone    func(Status)

	mu   sync.Mutex
	jobs map[string]*Status
}

// NewManager creates a manager on top of a generator.
func NewManager(gen *Generator, log *logger.Logger) *Manager {
	return &Manager{
		generator: gen,
		log:       log,
		onDone:    nil,
		mu:        sync.Mutex{},
		jobs:      make(map[string]*Status),
	}
}

// SetDoneHook registers a callback invoked with the final status snapshot
// whenever a background run reaches a terminal state. Set it before the first
// Start.
func (m *Manager) SetDoneHook(hook func(Status)) {
	m.onDone = hook
}

// Start launches a background generation run for slug. A project whose run is
// still in progress rejects the new start; completed and failed runs may be
// restarted freely.
func (m *Manager) Start(ctx context.Context, slug string, opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, found := m.jobs[slug]
	if found && existing.State == StateInProgress {
		return fmt.Errorf("%w: project %q", ErrRunInProgress, slug)
	}

	m.jobs[slug] = &Status{
		Slug:            slug,
		State:           StateInProgress,
		CurrentChunk:    0,
		ProcessedChunks: 0,
		TotalChunks:     0,
		Generated:       0,
		Failed:          0,
		Percent:         0,
		Error:           "",
		StartedAt:       time.Now(),
		FinishedAt:      time.Time{},
	}

	go m.run(ctx, slug, opts)

	return nil
}

func (m *Manager) run(ctx context.Context, slug string, opts Options) {
	opts.Progress = func(result ChunkResult, processed, total, generated, failed int) {
		m.Progress(slug, result.ChunkID, processed, total, generated, failed)
	}

	stats, err := m.generator.Generate(ctx, slug, opts)

	m.mu.Lock()

	status := m.jobs[slug]
	status.FinishedAt = time.Now()

	if err != nil {
		status.State = StateFailed
		status.Error = err.Error()
		m.log.Error("Background generation for %q failed: %v", slug, err)
	} else {
		status.State = StateCompleted
		status.TotalChunks = stats.TotalChunks
		status.ProcessedChunks = len(stats.Results)
		status.Generated = stats.Generated
		status.Failed = stats.Failed
		status.Percent = 100

		if len(stats.Results) > 0 {
			status.CurrentChunk = stats.Results[len(stats.Results)-1].ChunkID
		}
	}

	snapshot := *status
	m.mu.Unlock()

	if m.onDone != nil {
		m.onDone(snapshot)
	}
}

// Progress updates the live counters for an in-progress run. The generator
// feeds it per chunk through the progress callback run installs.
func (m *Manager) Progress(slug string, currentChunk, processed, total, generated, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, found := m.jobs[slug]
	if !found || status.State != StateInProgress {
		return
	}

	status.CurrentChunk = currentChunk
	status.ProcessedChunks = processed
	status.TotalChunks = total
	status.Generated = generated
	status.Failed = failed

	if total > 0 {
		status.Percent = float64(processed) / float64(total) * 100
	}
}

// Status returns the snapshot for slug. Projects that never started report
// idle.
func (m *Manager) Status(slug string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, found := m.jobs[slug]
	if !found {
		return Status{
			Slug:            slug,
			State:           StateIdle,
			CurrentChunk:    0,
			ProcessedChunks: 0,
			TotalChunks:     0,
			Generated:       0,
			Failed:          0,
			Percent:         0,
			Error:           "",
			StartedAt:       time.Time{},
			FinishedAt:      time.Time{},
		}
	}

	return *status
}
