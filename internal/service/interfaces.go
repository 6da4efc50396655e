package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"gamesync/internal/domain"
)

type GameStore interface {
	// FindBySlug returns (nil, nil) when no game has the slug.
	FindBySlug(ctx context.Context, slug string) (*domain.Game, error)
	Create(ctx context.Context, game *domain.Game) (int64, error)
	UpdateMetadata(ctx context.Context, id int64, game *domain.Game) error
}

type ScreenshotStore interface {
	Create(ctx context.Context, shot *domain.Screenshot) (int64, error)
}

type ImportStateStore interface {
	Create(ctx context.Context, state *domain.ImportState) (int64, error)
	FindByID(ctx context.Context, id int64) (*domain.ImportState, error)
	FindActiveByType(ctx context.Context, importType string) (*domain.ImportState, error)
	Update(ctx context.Context, state *domain.ImportState) error
	UpdateProgress(ctx context.Context, id int64, delta domain.ProgressDelta) error
	SetStatus(ctx context.Context, id int64, status domain.ImportStatus) (*domain.ImportState, error)
}

type CatalogClient interface {
	ListGames(ctx context.Context, page, pageSize, minScore int) (*domain.CatalogPage, error)
	GameDetails(ctx context.Context, id int64) (*domain.CatalogGame, error)
	GameScreenshots(ctx context.Context, id int64) ([]domain.CatalogScreenshot, error)
	TotalCount(ctx context.Context, minScore int) (int, error)
}

type ImageFetcher interface {
	Download(ctx context.Context, url, dest string) bool
}

// JobQueue enqueues work on the shared queue. Lower priority values yield to
// higher ones, so batch continuations ride at priority zero.
type JobQueue interface {
	Enqueue(ctx context.Context, jobName string, payload any, priority uint8) error
}
