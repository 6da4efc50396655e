package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Config holds downloader configuration.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
}

// Fetcher downloads screenshot binaries to local disk with bounded retry.
type Fetcher struct {
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	logger         *slog.Logger
}

// New creates a fetcher. Zero fields fall back to 30s timeout, 3 retries and
// a 1s initial backoff.
func New(cfg Config, logger *slog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	return &Fetcher{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		logger:         logger.With("component", "images"),
	}
}

// Download fetches url into dest, creating parent directories as needed.
// Failed attempts are retried with doubling backoff. Exhausting the retry
// budget returns false rather than an error: the caller counts the failure
// and moves on.
func (f *Fetcher) Download(ctx context.Context, url, dest string) bool {
	backoff := f.initialBackoff

	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		err := f.fetch(ctx, url, dest)
		if err == nil {
			return true
		}

		f.logger.Warn("screenshot download failed",
			"url", url,
			"attempt", attempt,
			"error", err,
		)

		if attempt == f.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return false
}

func (f *Fetcher) fetch(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("write file: %w", err)
	}

	return out.Close()
}
