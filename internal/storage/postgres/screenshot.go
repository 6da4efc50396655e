package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"gamesync/internal/domain"
)

type ScreenshotStore struct {
	db *sqlx.DB
}

func NewScreenshotStore(db *sqlx.DB) *ScreenshotStore {
	return &ScreenshotStore{db: db}
}

func (s *ScreenshotStore) Create(ctx context.Context, shot *domain.Screenshot) (int64, error) {
	query := `
		INSERT INTO screenshots (game_id, image_url, difficulty)
		VALUES ($1, $2, $3)
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		shot.GameID,
		shot.ImageURL,
		shot.Difficulty,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetByGameID returns a game's screenshots in insertion order.
func (s *ScreenshotStore) GetByGameID(ctx context.Context, gameID int64) ([]domain.Screenshot, error) {
	query := `
		SELECT id, game_id, image_url, difficulty, created_at
		FROM screenshots
		WHERE game_id = $1
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shots []domain.Screenshot
	for rows.Next() {
		var shot domain.Screenshot
		if err := rows.Scan(&shot.ID, &shot.GameID, &shot.ImageURL, &shot.Difficulty, &shot.CreatedAt); err != nil {
			return nil, err
		}
		shots = append(shots, shot)
	}
	return shots, rows.Err()
}
