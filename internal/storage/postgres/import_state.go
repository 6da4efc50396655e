package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"gamesync/internal/domain"
)

type ImportStateStore struct {
	db *sqlx.DB
}

func NewImportStateStore(db *sqlx.DB) *ImportStateStore {
	return &ImportStateStore{db: db}
}

const importStateColumns = `
	id, import_type, status, batch_size, min_score, screenshots_per_game,
	update_existing, total_available, current_page, processed, imported,
	updated, skipped, screenshots_downloaded, failed_count, current_batch,
	total_batches, started_at, paused_at, resumed_at, completed_at`

// Create inserts a new run in pending status. A partial unique index on
// active statuses turns a concurrent duplicate into ErrActiveImportExists.
func (s *ImportStateStore) Create(ctx context.Context, state *domain.ImportState) (int64, error) {
	query := `
		INSERT INTO import_states (
			import_type, status, batch_size, min_score, screenshots_per_game,
			update_existing, current_page, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id, started_at`

	err := s.db.QueryRowContext(ctx, query,
		state.ImportType,
		state.Status,
		state.BatchSize,
		state.MinScore,
		state.ScreenshotsPerGame,
		state.UpdateExisting,
		state.CurrentPage,
	).Scan(&state.ID, &state.StartedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return 0, domain.ErrActiveImportExists
	}
	if err != nil {
		return 0, err
	}
	return state.ID, nil
}

func (s *ImportStateStore) FindByID(ctx context.Context, id int64) (*domain.ImportState, error) {
	var state domain.ImportState
	query := `SELECT` + importStateColumns + ` FROM import_states WHERE id = $1`

	err := s.db.GetContext(ctx, &state, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrImportNotFound
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// FindActiveByType returns the pending, in-progress or paused run for an
// import type, or (nil, nil) when none exists.
func (s *ImportStateStore) FindActiveByType(ctx context.Context, importType string) (*domain.ImportState, error) {
	var state domain.ImportState
	query := `
		SELECT` + importStateColumns + `
		FROM import_states
		WHERE import_type = $1 AND status IN ('pending', 'in_progress', 'paused')
		ORDER BY id DESC
		LIMIT 1`

	err := s.db.GetContext(ctx, &state, query, importType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Update persists the probe results; counters go through UpdateProgress and
// status through SetStatus.
func (s *ImportStateStore) Update(ctx context.Context, state *domain.ImportState) error {
	query := `
		UPDATE import_states
		SET total_available = $2, total_batches = $3
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, state.ID, state.TotalAvailable, state.TotalBatches)
	if err != nil {
		return err
	}
	return checkFound(res)
}

// UpdateProgress applies one checkpoint: the page cursor is set absolutely,
// the counters are added to the persisted values.
func (s *ImportStateStore) UpdateProgress(ctx context.Context, id int64, delta domain.ProgressDelta) error {
	query := `
		UPDATE import_states SET
			current_page = $2,
			processed = processed + $3,
			imported = imported + $4,
			updated = updated + $5,
			skipped = skipped + $6,
			screenshots_downloaded = screenshots_downloaded + $7,
			failed_count = failed_count + $8,
			current_batch = current_batch + $9
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		id,
		delta.CurrentPage,
		delta.Processed,
		delta.Imported,
		delta.Updated,
		delta.Skipped,
		delta.ScreenshotsDownloaded,
		delta.Failed,
		delta.Batches,
	)
	if err != nil {
		return err
	}
	return checkFound(res)
}

// SetStatus changes the run's status and stamps the matching timestamp:
// paused_at on pause, resumed_at when leaving paused, completed_at on either
// terminal status. Legality of the transition is the caller's concern.
func (s *ImportStateStore) SetStatus(ctx context.Context, id int64, status domain.ImportStatus) (*domain.ImportState, error) {
	query := `
		UPDATE import_states SET
			paused_at = CASE WHEN $2 = 'paused' THEN now() ELSE paused_at END,
			resumed_at = CASE WHEN $2 = 'in_progress' AND status = 'paused' THEN now() ELSE resumed_at END,
			completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN now() ELSE completed_at END,
			status = $2
		WHERE id = $1
		RETURNING` + importStateColumns

	var state domain.ImportState
	err := s.db.QueryRowxContext(ctx, query, id, status).StructScan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrImportNotFound
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrImportNotFound
	}
	return nil
}
