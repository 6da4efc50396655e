package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gamesync/internal/domain"
)

// JobProcessImportBatch is the queue job name for one batch continuation.
const JobProcessImportBatch = "process_import_batch"

// batchJobPriority is the lowest queue priority, so import batches always
// yield to other pending work.
const batchJobPriority uint8 = 0

// ErrMissingAPIKey is returned by Start when no catalog API credential is
// configured.
var ErrMissingAPIKey = errors.New("catalog API key is not configured")

// BatchJob is the continuation payload. The run's only re-entry state is the
// persisted cursor and counters, so the payload stays this small.
type BatchJob struct {
	StateID        int64 `json:"state_id"`
	UpdateExisting bool  `json:"update_existing"`
}

// Defaults are applied to zero fields of an ImportConfig at Start.
type Defaults struct {
	BatchSize          int
	MinScore           int
	ScreenshotsPerGame int
}

// ImportManager starts import runs and chains their batches through the job
// queue. A run advances as discrete low-priority jobs, each re-reading the
// persisted state rather than holding it in memory.
type ImportManager struct {
	states   ImportStateStore
	catalog  CatalogClient
	queue    JobQueue
	apiKey   string
	defaults Defaults
	logger   *slog.Logger
}

func NewImportManager(
	states ImportStateStore,
	catalog CatalogClient,
	queue JobQueue,
	apiKey string,
	defaults Defaults,
	logger *slog.Logger,
) *ImportManager {
	if defaults.BatchSize <= 0 {
		defaults.BatchSize = 100
	}
	if defaults.MinScore <= 0 {
		defaults.MinScore = 70
	}
	if defaults.ScreenshotsPerGame <= 0 {
		defaults.ScreenshotsPerGame = 3
	}
	return &ImportManager{
		states:   states,
		catalog:  catalog,
		queue:    queue,
		apiKey:   apiKey,
		defaults: defaults,
		logger:   logger.With("component", "importer"),
	}
}

// Start creates a new run, probes the catalog for the qualifying total,
// promotes the run to in_progress and enqueues its first batch. It fails
// without creating state when the API credential is missing or a run of the
// same type is already active.
func (m *ImportManager) Start(ctx context.Context, cfg domain.ImportConfig) (*domain.ImportState, bool, error) {
	if m.apiKey == "" {
		return nil, false, ErrMissingAPIKey
	}

	active, err := m.states.FindActiveByType(ctx, domain.ImportTypeGameCatalog)
	if err != nil {
		return nil, false, fmt.Errorf("check active import: %w", err)
	}
	if active != nil {
		return nil, false, fmt.Errorf("import %d is %s: %w", active.ID, active.Status, domain.ErrActiveImportExists)
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = m.defaults.BatchSize
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = m.defaults.MinScore
	}
	if cfg.ScreenshotsPerGame <= 0 {
		cfg.ScreenshotsPerGame = m.defaults.ScreenshotsPerGame
	}

	state := &domain.ImportState{
		ImportType:         domain.ImportTypeGameCatalog,
		Status:             domain.ImportStatusPending,
		BatchSize:          cfg.BatchSize,
		MinScore:           cfg.MinScore,
		ScreenshotsPerGame: cfg.ScreenshotsPerGame,
		UpdateExisting:     cfg.UpdateExisting,
		CurrentPage:        1,
	}
	if _, err := m.states.Create(ctx, state); err != nil {
		return nil, false, fmt.Errorf("create import state: %w", err)
	}

	total, err := m.catalog.TotalCount(ctx, cfg.MinScore)
	if err != nil {
		if _, stErr := m.states.SetStatus(ctx, state.ID, domain.ImportStatusFailed); stErr != nil {
			m.logger.Error("failed to mark import failed", "import_id", state.ID, "error", stErr)
		}
		return nil, false, fmt.Errorf("probe catalog total: %w", err)
	}

	state.TotalAvailable = &total
	state.TotalBatches = (total + cfg.BatchSize - 1) / cfg.BatchSize
	if err := m.states.Update(ctx, state); err != nil {
		return nil, false, fmt.Errorf("store catalog total: %w", err)
	}

	updated, err := m.states.SetStatus(ctx, state.ID, domain.ImportStatusInProgress)
	if err != nil {
		return nil, false, fmt.Errorf("promote import: %w", err)
	}

	m.logger.Info("import started",
		"import_id", updated.ID,
		"total_available", total,
		"total_batches", updated.TotalBatches,
		"batch_size", cfg.BatchSize,
		"min_score", cfg.MinScore,
	)

	enqueued, err := m.enqueueBatch(ctx, updated)
	if err != nil {
		return updated, false, err
	}
	return updated, enqueued, nil
}

// ScheduleNext enqueues another batch continuation for an in-progress run.
// Any other status is a no-op: paused runs wait for Resume, terminal runs are
// done. Returns whether a job was enqueued.
func (m *ImportManager) ScheduleNext(ctx context.Context, stateID int64) (bool, error) {
	state, err := m.states.FindByID(ctx, stateID)
	if err != nil {
		return false, err
	}
	if state.Status != domain.ImportStatusInProgress {
		return false, nil
	}
	return m.enqueueBatch(ctx, state)
}

// Pause requests a cooperative pause. A running batch observes the new status
// at its next per-item poll, so a few more items may complete first.
func (m *ImportManager) Pause(ctx context.Context, stateID int64) (*domain.ImportState, error) {
	return m.transition(ctx, stateID, domain.ImportStatusPaused)
}

// Resume returns a paused run to in_progress and enqueues a continuation from
// the persisted cursor.
func (m *ImportManager) Resume(ctx context.Context, stateID int64) (*domain.ImportState, error) {
	state, err := m.transition(ctx, stateID, domain.ImportStatusInProgress)
	if err != nil {
		return nil, err
	}
	if _, err := m.enqueueBatch(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}

// Cancel marks a non-terminal run failed. Cancelled and genuinely failed runs
// share the status; the log line is what tells them apart.
func (m *ImportManager) Cancel(ctx context.Context, stateID int64) (*domain.ImportState, error) {
	state, err := m.transition(ctx, stateID, domain.ImportStatusFailed)
	if err != nil {
		return nil, err
	}
	m.logger.Info("import cancelled", "import_id", stateID, "processed", state.Processed)
	return state, nil
}

// GetActive returns the active run of the catalog import type, or nil.
func (m *ImportManager) GetActive(ctx context.Context) (*domain.ImportState, error) {
	return m.states.FindActiveByType(ctx, domain.ImportTypeGameCatalog)
}

// GetState returns the run with the given id.
func (m *ImportManager) GetState(ctx context.Context, stateID int64) (*domain.ImportState, error) {
	return m.states.FindByID(ctx, stateID)
}

func (m *ImportManager) transition(ctx context.Context, stateID int64, next domain.ImportStatus) (*domain.ImportState, error) {
	state, err := m.states.FindByID(ctx, stateID)
	if err != nil {
		return nil, err
	}
	if !state.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%s -> %s: %w", state.Status, next, domain.ErrInvalidTransition)
	}
	return m.states.SetStatus(ctx, stateID, next)
}

func (m *ImportManager) enqueueBatch(ctx context.Context, state *domain.ImportState) (bool, error) {
	job := BatchJob{StateID: state.ID, UpdateExisting: state.UpdateExisting}
	if err := m.queue.Enqueue(ctx, JobProcessImportBatch, job, batchJobPriority); err != nil {
		return false, fmt.Errorf("enqueue batch: %w", err)
	}
	m.logger.Debug("batch enqueued", "import_id", state.ID, "batch", state.CurrentBatch+1)
	return true, nil
}
