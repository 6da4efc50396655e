//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"gamesync/internal/domain"
	"gamesync/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB

	games       *GameStore
	screenshots *ScreenshotStore
	states      *ImportStateStore
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_games.up.sql"),
			filepath.Join(migrationsPath, "002_create_import_states.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	s.games = NewGameStore(db)
	s.screenshots = NewScreenshotStore(db)
	s.states = NewImportStateStore(db)
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM screenshots")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM games")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM import_states")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) testGame() *domain.Game {
	return &domain.Game{
		Slug:          "half-life-2",
		Name:          "Half-Life 2",
		ReleaseYear:   utils.Ptr(2004),
		Developer:     utils.Ptr("Valve"),
		Publisher:     utils.Ptr("Valve"),
		Genres:        []string{"Shooter"},
		Platforms:     []string{"PC", "Xbox"},
		CoverImageURL: utils.Ptr("https://img.example.com/cover.jpg"),
		Score:         96,
		ExternalID:    10,
		LastSyncedAt:  time.Now().UTC(),
	}
}

func (s *PostgresIntegrationSuite) TestGameCreateAndFindBySlug() {
	id, err := s.games.Create(s.ctx, s.testGame())
	s.Require().NoError(err)
	s.NotZero(id)

	found, err := s.games.FindBySlug(s.ctx, "half-life-2")
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(id, found.ID)
	s.Equal("Half-Life 2", found.Name)
	s.Equal([]string{"PC", "Xbox"}, found.Platforms)
	s.Equal(96, found.Score)
	s.Require().NotNil(found.ReleaseYear)
	s.Equal(2004, *found.ReleaseYear)
}

func (s *PostgresIntegrationSuite) TestFindBySlugMissing() {
	found, err := s.games.FindBySlug(s.ctx, "does-not-exist")
	s.NoError(err)
	s.Nil(found)
}

func (s *PostgresIntegrationSuite) TestUpdateMetadata() {
	id, err := s.games.Create(s.ctx, s.testGame())
	s.Require().NoError(err)

	updated := s.testGame()
	updated.Name = "Half-Life 2: Remastered"
	updated.Score = 97
	updated.LastSyncedAt = time.Now().UTC().Add(time.Hour)

	s.Require().NoError(s.games.UpdateMetadata(s.ctx, id, updated))

	found, err := s.games.FindBySlug(s.ctx, "half-life-2")
	s.Require().NoError(err)
	s.Equal("Half-Life 2: Remastered", found.Name)
	s.Equal(97, found.Score)
	s.Equal(int64(10), found.ExternalID, "external id must survive updates")
}

func (s *PostgresIntegrationSuite) TestScreenshotCreateAndList() {
	gameID, err := s.games.Create(s.ctx, s.testGame())
	s.Require().NoError(err)

	for i, difficulty := range []int{1, 2, 3} {
		_, err := s.screenshots.Create(s.ctx, &domain.Screenshot{
			GameID:     gameID,
			ImageURL:   "/uploads/screenshots/half-life-2/screenshot_" + string(rune('1'+i)) + ".jpg",
			Difficulty: difficulty,
		})
		s.Require().NoError(err)
	}

	shots, err := s.screenshots.GetByGameID(s.ctx, gameID)
	s.Require().NoError(err)
	s.Require().Len(shots, 3)
	s.Equal(1, shots[0].Difficulty)
	s.Equal(3, shots[2].Difficulty)
}

func (s *PostgresIntegrationSuite) createState() *domain.ImportState {
	state := &domain.ImportState{
		ImportType:         domain.ImportTypeGameCatalog,
		Status:             domain.ImportStatusPending,
		BatchSize:          100,
		MinScore:           70,
		ScreenshotsPerGame: 3,
		UpdateExisting:     true,
		CurrentPage:        1,
	}
	_, err := s.states.Create(s.ctx, state)
	s.Require().NoError(err)
	return state
}

func (s *PostgresIntegrationSuite) TestImportStateCreateAndFind() {
	state := s.createState()
	s.NotZero(state.ID)
	s.False(state.StartedAt.IsZero())

	found, err := s.states.FindByID(s.ctx, state.ID)
	s.Require().NoError(err)
	s.Equal(domain.ImportStatusPending, found.Status)
	s.Equal(100, found.BatchSize)
	s.Equal(1, found.CurrentPage)
	s.Nil(found.TotalAvailable)
}

func (s *PostgresIntegrationSuite) TestFindByIDMissing() {
	_, err := s.states.FindByID(s.ctx, 424242)
	s.ErrorIs(err, domain.ErrImportNotFound)
}

func (s *PostgresIntegrationSuite) TestOneActiveRunPerType() {
	s.createState()

	dup := &domain.ImportState{
		ImportType:  domain.ImportTypeGameCatalog,
		Status:      domain.ImportStatusPending,
		CurrentPage: 1,
	}
	_, err := s.states.Create(s.ctx, dup)
	s.ErrorIs(err, domain.ErrActiveImportExists)
}

func (s *PostgresIntegrationSuite) TestActiveRunAllowedAfterTerminal() {
	state := s.createState()
	_, err := s.states.SetStatus(s.ctx, state.ID, domain.ImportStatusFailed)
	s.Require().NoError(err)

	second := s.createState()
	s.NotEqual(state.ID, second.ID)
}

func (s *PostgresIntegrationSuite) TestFindActiveByType() {
	active, err := s.states.FindActiveByType(s.ctx, domain.ImportTypeGameCatalog)
	s.Require().NoError(err)
	s.Nil(active)

	state := s.createState()

	active, err = s.states.FindActiveByType(s.ctx, domain.ImportTypeGameCatalog)
	s.Require().NoError(err)
	s.Require().NotNil(active)
	s.Equal(state.ID, active.ID)
}

func (s *PostgresIntegrationSuite) TestUpdateProgressAppliesDeltas() {
	state := s.createState()

	delta := domain.ProgressDelta{
		CurrentPage: 2,
		Processed:   10, Imported: 6, Updated: 1, Skipped: 2,
		ScreenshotsDownloaded: 18, Failed: 1, Batches: 1,
	}
	s.Require().NoError(s.states.UpdateProgress(s.ctx, state.ID, delta))
	s.Require().NoError(s.states.UpdateProgress(s.ctx, state.ID, delta))

	found, err := s.states.FindByID(s.ctx, state.ID)
	s.Require().NoError(err)
	s.Equal(2, found.CurrentPage, "page cursor is absolute")
	s.Equal(20, found.Processed, "counters accumulate")
	s.Equal(12, found.Imported)
	s.Equal(36, found.ScreenshotsDownloaded)
	s.Equal(2, found.CurrentBatch)
}

func (s *PostgresIntegrationSuite) TestSetStatusStampsTimestamps() {
	state := s.createState()

	inProgress, err := s.states.SetStatus(s.ctx, state.ID, domain.ImportStatusInProgress)
	s.Require().NoError(err)
	s.Equal(domain.ImportStatusInProgress, inProgress.Status)
	s.Nil(inProgress.PausedAt)
	s.Nil(inProgress.ResumedAt)

	paused, err := s.states.SetStatus(s.ctx, state.ID, domain.ImportStatusPaused)
	s.Require().NoError(err)
	s.NotNil(paused.PausedAt)

	resumed, err := s.states.SetStatus(s.ctx, state.ID, domain.ImportStatusInProgress)
	s.Require().NoError(err)
	s.NotNil(resumed.PausedAt)
	s.NotNil(resumed.ResumedAt)

	completed, err := s.states.SetStatus(s.ctx, state.ID, domain.ImportStatusCompleted)
	s.Require().NoError(err)
	s.NotNil(completed.CompletedAt)
}

func (s *PostgresIntegrationSuite) TestUpdateStoresProbeResults() {
	state := s.createState()
	state.TotalAvailable = utils.Ptr(2500)
	state.TotalBatches = 25

	s.Require().NoError(s.states.Update(s.ctx, state))

	found, err := s.states.FindByID(s.ctx, state.ID)
	s.Require().NoError(err)
	s.Require().NotNil(found.TotalAvailable)
	s.Equal(2500, *found.TotalAvailable)
	s.Equal(25, found.TotalBatches)
}
