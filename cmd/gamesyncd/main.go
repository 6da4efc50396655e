package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"gamesync/internal/catalog"
	"gamesync/internal/config"
	"gamesync/internal/domain"
	"gamesync/internal/images"
	"gamesync/internal/queue"
	"gamesync/internal/ratelimit"
	"gamesync/internal/service"
	"gamesync/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	startImport := flag.Bool("start", false, "start a new catalog import before consuming jobs")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	jobQueue, err := queue.NewRabbitMQ(queue.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer jobQueue.Close()

	gameStore := postgres.NewGameStore(db)
	screenshotStore := postgres.NewScreenshotStore(db)
	stateStore := postgres.NewImportStateStore(db)

	limiter := ratelimit.New(ratelimit.Config{
		Window:      cfg.Catalog.RateLimit.Window,
		MaxRequests: cfg.Catalog.RateLimit.MaxRequests,
		MinDelay:    cfg.Catalog.RateLimit.MinDelay,
	})

	catalogClient := catalog.New(catalog.Config{
		BaseURL:             cfg.Catalog.BaseURL,
		APIKey:              cfg.Catalog.APIKey,
		Timeout:             cfg.Catalog.Timeout,
		ThrottleMaxRetries:  cfg.Catalog.Throttle.MaxRetries,
		ThrottleCooldown:    cfg.Catalog.Throttle.Cooldown,
		ThrottleMaxCooldown: cfg.Catalog.Throttle.MaxCooldown,
	}, limiter, logger)

	fetcher := images.New(images.Config{
		Timeout:        cfg.Catalog.Timeout,
		MaxRetries:     cfg.Storage.DownloadRetries,
		InitialBackoff: cfg.Storage.DownloadBackoff,
	}, logger)

	processor := service.NewBatchProcessor(
		stateStore,
		gameStore,
		screenshotStore,
		catalogClient,
		fetcher,
		cfg.Storage.Root,
		cfg.Catalog.PageSize,
		logger,
	)

	manager := service.NewImportManager(
		stateStore,
		catalogClient,
		jobQueue,
		cfg.Catalog.APIKey,
		service.Defaults{
			BatchSize:          cfg.Import.BatchSize,
			MinScore:           cfg.Import.MinScore,
			ScreenshotsPerGame: cfg.Import.ScreenshotsPerGame,
		},
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if *startImport {
		state, _, err := manager.Start(ctx, domain.ImportConfig{
			BatchSize:          cfg.Import.BatchSize,
			MinScore:           cfg.Import.MinScore,
			ScreenshotsPerGame: cfg.Import.ScreenshotsPerGame,
			UpdateExisting:     cfg.Import.UpdateExistingMetadata(),
		})
		switch {
		case errors.Is(err, domain.ErrActiveImportExists):
			logger.Warn("import already active, consuming its batches instead", "error", err)
		case err != nil:
			logger.Error("failed to start import", "error", err)
			os.Exit(1)
		default:
			logger.Info("import run created", "import_id", state.ID)
		}
	}

	logger.Info("worker started", "queue", cfg.RabbitMQ.QueueName)

	err = jobQueue.Consume(ctx, func(ctx context.Context, job queue.Job) error {
		return handleJob(ctx, job, processor, manager, logger)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

// handleJob runs one batch continuation and, unless the run paused or
// finished, chains the next one. A batch error is logged and dropped: the run
// stays in_progress and a later start/resume picks it up from the persisted
// cursor.
func handleJob(ctx context.Context, job queue.Job, processor *service.BatchProcessor, manager *service.ImportManager, logger *slog.Logger) error {
	if job.Name != service.JobProcessImportBatch {
		logger.Warn("unknown job ignored", "job", job.Name)
		return nil
	}

	var payload service.BatchJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return err
	}

	result, err := processor.ProcessBatch(ctx, payload.StateID, payload.UpdateExisting, nil)
	if err != nil {
		return err
	}
	if result.Paused || result.Complete {
		return nil
	}

	_, err = manager.ScheduleNext(ctx, payload.StateID)
	return err
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
