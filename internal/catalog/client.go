package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gamesync/internal/domain"
)

// ErrRateLimited is returned once the throttling retry budget is exhausted.
var ErrRateLimited = errors.New("catalog: rate limit exceeded")

// APIError is a non-success response from the catalog API.
type APIError struct {
	StatusCode int
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog: unexpected status %d for %s", e.StatusCode, e.URL)
}

// RateLimiter gates outbound requests.
type RateLimiter interface {
	Acquire(ctx context.Context) error
}

// Config holds catalog API client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Throttling (429) retry policy.
	ThrottleMaxRetries  int
	ThrottleCooldown    time.Duration
	ThrottleMaxCooldown time.Duration
}

// Client is a typed wrapper over the catalog API's list, detail, screenshot
// and count endpoints. Every call awaits the rate limiter before issuing the
// HTTP request.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    RateLimiter
	logger     *slog.Logger

	throttleMaxRetries  int
	throttleCooldown    time.Duration
	throttleMaxCooldown time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a catalog API client.
func New(cfg Config, limiter RateLimiter, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ThrottleMaxRetries <= 0 {
		cfg.ThrottleMaxRetries = 3
	}
	if cfg.ThrottleCooldown <= 0 {
		cfg.ThrottleCooldown = time.Minute
	}
	if cfg.ThrottleMaxCooldown <= 0 {
		cfg.ThrottleMaxCooldown = 5 * time.Minute
	}
	return &Client{
		httpClient:          &http.Client{Timeout: cfg.Timeout},
		baseURL:             cfg.BaseURL,
		apiKey:              cfg.APIKey,
		limiter:             limiter,
		logger:              logger.With("component", "catalog"),
		throttleMaxRetries:  cfg.ThrottleMaxRetries,
		throttleCooldown:    cfg.ThrottleCooldown,
		throttleMaxCooldown: cfg.ThrottleMaxCooldown,
		sleep:               sleepCtx,
	}
}

// ListGames fetches one page of games ordered by descending rating, filtered
// server-side by score >= minScore.
func (c *Client) ListGames(ctx context.Context, page, pageSize, minScore int) (*domain.CatalogPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))
	params.Set("metacritic", fmt.Sprintf("%d,100", minScore))
	params.Set("ordering", "-metacritic")

	var resp listResponse
	if err := c.get(ctx, "/games", params, &resp); err != nil {
		return nil, fmt.Errorf("list games page %d: %w", page, err)
	}

	pageData := &domain.CatalogPage{
		Total:   resp.Count,
		HasNext: resp.Next != nil,
		Games:   make([]domain.CatalogGame, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		pageData.Games = append(pageData.Games, transformGame(r))
	}
	return pageData, nil
}

// GameDetails fetches full metadata for one game, including developer and
// publisher, which the list endpoint omits.
func (c *Client) GameDetails(ctx context.Context, id int64) (*domain.CatalogGame, error) {
	var resp detailResponse
	if err := c.get(ctx, fmt.Sprintf("/games/%d", id), url.Values{}, &resp); err != nil {
		return nil, fmt.Errorf("game details %d: %w", id, err)
	}

	game := transformGame(resp.gameResult)
	if name := firstName(resp.Developers); name != "" {
		game.Developer = &name
	}
	if name := firstName(resp.Publishers); name != "" {
		game.Publisher = &name
	}
	return &game, nil
}

// GameScreenshots fetches the available screenshot descriptors for one game.
func (c *Client) GameScreenshots(ctx context.Context, id int64) ([]domain.CatalogScreenshot, error) {
	var resp screenshotsResponse
	if err := c.get(ctx, fmt.Sprintf("/games/%d/screenshots", id), url.Values{}, &resp); err != nil {
		return nil, fmt.Errorf("game screenshots %d: %w", id, err)
	}

	shots := make([]domain.CatalogScreenshot, 0, len(resp.Results))
	for _, r := range resp.Results {
		shots = append(shots, domain.CatalogScreenshot{ID: r.ID, URL: r.Image})
	}
	return shots, nil
}

// TotalCount probes the reported total of qualifying games using a one-item page.
func (c *Client) TotalCount(ctx context.Context, minScore int) (int, error) {
	params := url.Values{}
	params.Set("page", "1")
	params.Set("page_size", "1")
	params.Set("metacritic", fmt.Sprintf("%d,100", minScore))

	var resp listResponse
	if err := c.get(ctx, "/games", params, &resp); err != nil {
		return 0, fmt.Errorf("total count: %w", err)
	}
	return resp.Count, nil
}

// get issues one rate-limited GET. A 429 response is retried with a capped
// doubling cooldown up to the configured budget; any other non-success status
// becomes an APIError.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	cooldown := c.throttleCooldown
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}

		status, err := c.doRequest(ctx, reqURL, out)
		if err != nil {
			return err
		}
		if status != http.StatusTooManyRequests {
			return nil
		}

		if attempt >= c.throttleMaxRetries {
			return fmt.Errorf("throttled after %d retries: %w", c.throttleMaxRetries, ErrRateLimited)
		}

		c.logger.Warn("throttled by catalog API, cooling down",
			"cooldown", cooldown,
			"attempt", attempt+1,
		)
		if err := c.sleep(ctx, cooldown); err != nil {
			return err
		}
		cooldown *= 2
		if cooldown > c.throttleMaxCooldown {
			cooldown = c.throttleMaxCooldown
		}
	}
}

// doRequest returns the HTTP status for 2xx/429 outcomes, decoding the body
// into out on success; other statuses become an APIError.
func (c *Client) doRequest(ctx context.Context, reqURL string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return 0, &APIError{StatusCode: resp.StatusCode, URL: reqURL}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func transformGame(r gameResult) domain.CatalogGame {
	game := domain.CatalogGame{
		ID:              r.ID,
		Slug:            r.Slug,
		Name:            r.Name,
		CoverImageURL:   r.BackgroundImage,
		Score:           r.Metacritic,
		ScreenshotCount: r.ScreenshotsCount,
	}

	if len(r.Released) >= 4 {
		if year, err := strconv.Atoi(r.Released[:4]); err == nil {
			game.ReleaseYear = &year
		}
	}
	for _, g := range r.Genres {
		game.Genres = append(game.Genres, g.Name)
	}
	for _, p := range r.Platforms {
		game.Platforms = append(game.Platforms, p.Platform.Name)
	}
	return game
}

func firstName(refs []namedRef) string {
	if len(refs) == 0 {
		return ""
	}
	return refs[0].Name
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
