package domain

import "time"

// Game is the locally persisted projection of one catalog entry.
type Game struct {
	ID            int64
	Slug          string
	Name          string
	ReleaseYear   *int
	Developer     *string
	Publisher     *string
	Genres        []string
	Platforms     []string
	CoverImageURL *string
	Score         int
	ExternalID    int64
	LastSyncedAt  time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Screenshot is one stored image for a game. ImageURL is the public path the
// file is served from, not the remote origin URL.
type Screenshot struct {
	ID         int64
	GameID     int64
	ImageURL   string
	Difficulty int // 1..3, assigned cyclically in download order
	CreatedAt  time.Time
}

// CatalogGame is one remote catalog record, already transformed from the API
// response shape. Developer/Publisher are only populated by the detail endpoint.
type CatalogGame struct {
	ID              int64
	Slug            string
	Name            string
	ReleaseYear     *int
	Developer       *string
	Publisher       *string
	Genres          []string
	Platforms       []string
	CoverImageURL   *string
	Score           int
	ScreenshotCount int
}

// CatalogScreenshot is one remote screenshot descriptor.
type CatalogScreenshot struct {
	ID  int64
	URL string
}

// CatalogPage is one page of catalog listing results.
type CatalogPage struct {
	Total   int
	HasNext bool
	Games   []CatalogGame
}
