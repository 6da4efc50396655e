package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"time"

	"gamesync/internal/domain"
)

const (
	// checkpointEvery is how many processed items may accumulate before the
	// cursor and counters are persisted. A hard crash can therefore replay up
	// to checkpointEvery-1 items; game creation stays idempotent through the
	// slug lookup.
	checkpointEvery = 10

	defaultListPageSize = 40
)

// ProgressFunc reports cumulative progress: (itemsProcessed, totalAvailable).
type ProgressFunc func(processed, total int)

// BatchProcessor runs one bounded slice of an import: it pages through the
// catalog, classifies each game as new, updated or skipped, downloads
// screenshots for new games, and checkpoints progress into the import state.
type BatchProcessor struct {
	states      ImportStateStore
	games       GameStore
	screenshots ScreenshotStore
	catalog     CatalogClient
	fetcher     ImageFetcher
	storageRoot string
	pageSize    int
	logger      *slog.Logger
}

func NewBatchProcessor(
	states ImportStateStore,
	games GameStore,
	screenshots ScreenshotStore,
	catalog CatalogClient,
	fetcher ImageFetcher,
	storageRoot string,
	pageSize int,
	logger *slog.Logger,
) *BatchProcessor {
	if pageSize <= 0 {
		pageSize = defaultListPageSize
	}
	return &BatchProcessor{
		states:      states,
		games:       games,
		screenshots: screenshots,
		catalog:     catalog,
		fetcher:     fetcher,
		storageRoot: storageRoot,
		pageSize:    pageSize,
		logger:      logger.With("component", "batch"),
	}
}

// ProcessBatch processes up to the state's batch size worth of catalog items
// and returns a summary. It returns early with Paused=true when the persisted
// status reads paused, either up front or at any per-item poll. A page fetch
// failure propagates; a single item's failure only increments the failed
// counter.
func (p *BatchProcessor) ProcessBatch(ctx context.Context, stateID int64, updateExisting bool, onProgress ProgressFunc) (*domain.BatchResult, error) {
	state, err := p.states.FindByID(ctx, stateID)
	if err != nil {
		return nil, err
	}

	res := &domain.BatchResult{StateID: stateID}
	if state.Status == domain.ImportStatusPaused {
		res.Paused = true
		return res, nil
	}

	logger := p.logger.With("import_id", stateID, "batch", state.CurrentBatch+1)
	logger.Info("starting batch",
		"page", state.CurrentPage,
		"batch_size", state.BatchSize,
		"min_score", state.MinScore,
	)

	page := state.CurrentPage
	var flushed domain.BatchResult
	hasNext := true

	for res.Processed < state.BatchSize && hasNext {
		pageData, err := p.catalog.ListGames(ctx, page, p.pageSize, state.MinScore)
		if err != nil {
			if cpErr := p.checkpoint(ctx, stateID, page, res, &flushed, 0); cpErr != nil {
				logger.Warn("checkpoint before abort failed", "error", cpErr)
			}
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		if len(pageData.Games) == 0 {
			hasNext = false
			break
		}

		consumed := 0
		for _, item := range pageData.Games {
			if res.Processed >= state.BatchSize {
				break
			}

			paused, err := p.pollPaused(ctx, stateID)
			if err != nil {
				return nil, err
			}
			if paused {
				if cpErr := p.checkpoint(ctx, stateID, page, res, &flushed, 0); cpErr != nil {
					logger.Warn("checkpoint on pause failed", "error", cpErr)
				}
				res.Paused = true
				logger.Info("batch paused", "processed", res.Processed)
				return res, nil
			}

			if err := p.processItem(ctx, state, item, updateExisting, res); err != nil {
				res.Failed++
				logger.Error("item processing failed",
					"slug", item.Slug,
					"external_id", item.ID,
					"error", err,
				)
			}
			res.Processed++
			consumed++

			if onProgress != nil {
				total := 0
				if state.TotalAvailable != nil {
					total = *state.TotalAvailable
				}
				onProgress(state.Processed+res.Processed, total)
			}

			if res.Processed-flushed.Processed >= checkpointEvery {
				if err := p.checkpoint(ctx, stateID, page, res, &flushed, 0); err != nil {
					logger.Warn("checkpoint failed", "error", err)
				}
			}
		}

		if consumed < len(pageData.Games) {
			// batch budget exhausted mid-page; the cursor stays on this page
			// so the next batch picks up its remaining items
			break
		}
		hasNext = pageData.HasNext
		if hasNext {
			page++
		}
	}

	complete := !hasNext
	if state.TotalAvailable != nil && state.Processed+res.Processed >= *state.TotalAvailable {
		complete = true
	}

	if err := p.checkpoint(ctx, stateID, page, res, &flushed, 1); err != nil {
		return nil, fmt.Errorf("persist batch progress: %w", err)
	}

	if complete {
		if _, err := p.states.SetStatus(ctx, stateID, domain.ImportStatusCompleted); err != nil {
			return nil, fmt.Errorf("complete import: %w", err)
		}
	}
	res.Complete = complete

	logger.Info("batch finished",
		"processed", res.Processed,
		"imported", res.Imported,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"screenshots", res.ScreenshotsDownloaded,
		"failed", res.Failed,
		"complete", res.Complete,
	)
	return res, nil
}

// pollPaused re-reads the persisted status. Pause is cooperative: a writer
// flipping the status races with this read, so an in-flight item may still
// finish before the batch observes the change.
func (p *BatchProcessor) pollPaused(ctx context.Context, stateID int64) (bool, error) {
	state, err := p.states.FindByID(ctx, stateID)
	if err != nil {
		return false, err
	}
	return state.Status == domain.ImportStatusPaused, nil
}

// checkpoint persists everything accumulated since the previous checkpoint.
func (p *BatchProcessor) checkpoint(ctx context.Context, stateID int64, page int, res, flushed *domain.BatchResult, batches int) error {
	delta := domain.ProgressDelta{
		CurrentPage:           page,
		Processed:             res.Processed - flushed.Processed,
		Imported:              res.Imported - flushed.Imported,
		Updated:               res.Updated - flushed.Updated,
		Skipped:               res.Skipped - flushed.Skipped,
		ScreenshotsDownloaded: res.ScreenshotsDownloaded - flushed.ScreenshotsDownloaded,
		Failed:                res.Failed - flushed.Failed,
		Batches:               batches,
	}
	if err := p.states.UpdateProgress(ctx, stateID, delta); err != nil {
		return err
	}
	*flushed = *res
	return nil
}

// processItem classifies one catalog item and persists the outcome. Existing
// games are updated or skipped depending on the flag; new games are imported
// only when the catalog has screenshots for them, since a game that cannot be
// guessed from images is useless here.
func (p *BatchProcessor) processItem(ctx context.Context, state *domain.ImportState, item domain.CatalogGame, updateExisting bool, res *domain.BatchResult) error {
	existing, err := p.games.FindBySlug(ctx, item.Slug)
	if err != nil {
		return fmt.Errorf("lookup game: %w", err)
	}

	if existing != nil {
		if !updateExisting {
			res.Skipped++
			return nil
		}
		detail, err := p.catalog.GameDetails(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("fetch details: %w", err)
		}
		if err := p.games.UpdateMetadata(ctx, existing.ID, gameFromCatalog(detail)); err != nil {
			return fmt.Errorf("update game: %w", err)
		}
		res.Updated++
		return nil
	}

	shots, err := p.catalog.GameScreenshots(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("fetch screenshots: %w", err)
	}
	if len(shots) == 0 {
		res.Skipped++
		return nil
	}

	detail, err := p.catalog.GameDetails(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("fetch details: %w", err)
	}

	gameID, err := p.games.Create(ctx, gameFromCatalog(detail))
	if err != nil {
		return fmt.Errorf("create game: %w", err)
	}

	limit := state.ScreenshotsPerGame
	if len(shots) < limit {
		limit = len(shots)
	}
	for i := 0; i < limit; i++ {
		filename := screenshotFilename(i+1, shots[i].URL)
		dest := filepath.Join(p.storageRoot, "screenshots", detail.Slug, filename)

		if !p.fetcher.Download(ctx, shots[i].URL, dest) {
			res.Failed++
			continue
		}

		shot := &domain.Screenshot{
			GameID:     gameID,
			ImageURL:   path.Join("/uploads/screenshots", detail.Slug, filename),
			Difficulty: i%3 + 1,
		}
		if _, err := p.screenshots.Create(ctx, shot); err != nil {
			res.Failed++
			p.logger.Error("persist screenshot failed", "slug", detail.Slug, "error", err)
			continue
		}
		res.ScreenshotsDownloaded++
	}

	res.Imported++
	return nil
}

func gameFromCatalog(c *domain.CatalogGame) *domain.Game {
	return &domain.Game{
		Slug:          c.Slug,
		Name:          c.Name,
		ReleaseYear:   c.ReleaseYear,
		Developer:     c.Developer,
		Publisher:     c.Publisher,
		Genres:        c.Genres,
		Platforms:     c.Platforms,
		CoverImageURL: c.CoverImageURL,
		Score:         c.Score,
		ExternalID:    c.ID,
		LastSyncedAt:  time.Now().UTC(),
	}
}

func screenshotFilename(n int, remoteURL string) string {
	ext := ".jpg"
	if u, err := url.Parse(remoteURL); err == nil {
		if e := path.Ext(u.Path); e != "" && len(e) <= 5 {
			ext = e
		}
	}
	return fmt.Sprintf("screenshot_%d%s", n, ext)
}
