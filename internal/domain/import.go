package domain

import "time"

// ImportTypeGameCatalog is the only import kind this engine runs.
const ImportTypeGameCatalog = "game_catalog"

// ImportStatus is the lifecycle state of one import run.
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusInProgress ImportStatus = "in_progress"
	ImportStatusPaused     ImportStatus = "paused"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s ImportStatus) Terminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed
}

// CanTransitionTo reports whether the transition s -> next is legal.
func (s ImportStatus) CanTransitionTo(next ImportStatus) bool {
	switch s {
	case ImportStatusPending:
		return next == ImportStatusInProgress || next == ImportStatusFailed
	case ImportStatusInProgress:
		return next == ImportStatusPaused || next == ImportStatusCompleted || next == ImportStatusFailed
	case ImportStatusPaused:
		return next == ImportStatusInProgress || next == ImportStatusFailed
	default:
		return false
	}
}

// ImportState is one durable sync run: its immutable configuration plus the
// progress cursor and counters that every batch checkpoints back into storage.
type ImportState struct {
	ID         int64        `db:"id"`
	ImportType string       `db:"import_type"`
	Status     ImportStatus `db:"status"`

	BatchSize          int  `db:"batch_size"`
	MinScore           int  `db:"min_score"`
	ScreenshotsPerGame int  `db:"screenshots_per_game"`
	UpdateExisting     bool `db:"update_existing"`

	TotalAvailable        *int `db:"total_available"`
	CurrentPage           int  `db:"current_page"`
	Processed             int  `db:"processed"`
	Imported              int  `db:"imported"`
	Updated               int  `db:"updated"`
	Skipped               int  `db:"skipped"`
	ScreenshotsDownloaded int  `db:"screenshots_downloaded"`
	FailedCount           int  `db:"failed_count"`
	CurrentBatch          int  `db:"current_batch"`
	TotalBatches          int  `db:"total_batches"`

	StartedAt   time.Time  `db:"started_at"`
	PausedAt    *time.Time `db:"paused_at"`
	ResumedAt   *time.Time `db:"resumed_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

// ImportConfig is the caller-facing configuration for starting a run.
// Zero fields fall back to the configured defaults.
type ImportConfig struct {
	BatchSize          int
	MinScore           int
	ScreenshotsPerGame int
	UpdateExisting     bool
}

// ProgressDelta is one checkpoint: CurrentPage and Batches are applied as
// written, the counters are added to the persisted values.
type ProgressDelta struct {
	CurrentPage           int
	Processed             int
	Imported              int
	Updated               int
	Skipped               int
	ScreenshotsDownloaded int
	Failed                int
	Batches               int
}

// BatchResult summarizes one ProcessBatch call.
type BatchResult struct {
	StateID               int64
	Processed             int
	Imported              int
	Updated               int
	Skipped               int
	ScreenshotsDownloaded int
	Failed                int
	Paused                bool
	Complete              bool
}
