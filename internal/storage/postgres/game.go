package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"gamesync/internal/domain"
)

type GameStore struct {
	db *sqlx.DB
}

func NewGameStore(db *sqlx.DB) *GameStore {
	return &GameStore{db: db}
}

const gameColumns = `
	id, slug, name, release_year, developer, publisher, genres, platforms,
	cover_image_url, score, external_id, last_synced_at, created_at, updated_at`

// FindBySlug returns the game with the given slug, or (nil, nil) when absent.
func (s *GameStore) FindBySlug(ctx context.Context, slug string) (*domain.Game, error) {
	query := `SELECT` + gameColumns + ` FROM games WHERE slug = $1`

	game, err := scanGame(s.db.QueryRowxContext(ctx, query, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return game, nil
}

func (s *GameStore) Create(ctx context.Context, game *domain.Game) (int64, error) {
	query := `
		INSERT INTO games (
			slug, name, release_year, developer, publisher, genres, platforms,
			cover_image_url, score, external_id, last_synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		game.Slug,
		game.Name,
		game.ReleaseYear,
		game.Developer,
		game.Publisher,
		pq.Array(game.Genres),
		pq.Array(game.Platforms),
		game.CoverImageURL,
		game.Score,
		game.ExternalID,
		game.LastSyncedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateMetadata refreshes the catalog-sourced fields of an existing game and
// stamps last_synced_at. The slug and external id are never rewritten.
func (s *GameStore) UpdateMetadata(ctx context.Context, id int64, game *domain.Game) error {
	query := `
		UPDATE games SET
			name = $2,
			release_year = $3,
			developer = $4,
			publisher = $5,
			genres = $6,
			platforms = $7,
			cover_image_url = $8,
			score = $9,
			last_synced_at = $10,
			updated_at = now()
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query,
		id,
		game.Name,
		game.ReleaseYear,
		game.Developer,
		game.Publisher,
		pq.Array(game.Genres),
		pq.Array(game.Platforms),
		game.CoverImageURL,
		game.Score,
		game.LastSyncedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.Game, error) {
	var (
		game      domain.Game
		genres    pq.StringArray
		platforms pq.StringArray
	)
	err := row.Scan(
		&game.ID,
		&game.Slug,
		&game.Name,
		&game.ReleaseYear,
		&game.Developer,
		&game.Publisher,
		&genres,
		&platforms,
		&game.CoverImageURL,
		&game.Score,
		&game.ExternalID,
		&game.LastSyncedAt,
		&game.CreatedAt,
		&game.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	game.Genres = []string(genres)
	game.Platforms = []string(platforms)
	return &game, nil
}
