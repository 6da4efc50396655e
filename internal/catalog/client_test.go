package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLimiter struct{ calls int }

func (l *noopLimiter) Acquire(context.Context) error {
	l.calls++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *noopLimiter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := &noopLimiter{}
	client := New(Config{
		BaseURL:            srv.URL,
		APIKey:             "test-key",
		ThrottleMaxRetries: 2,
		ThrottleCooldown:   time.Millisecond,
	}, limiter, testLogger())
	return client, limiter
}

func TestListGames(t *testing.T) {
	client, limiter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/games", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "40", q.Get("page_size"))
		assert.Equal(t, "70,100", q.Get("metacritic"))
		assert.Equal(t, "-metacritic", q.Get("ordering"))

		next := "https://example.com/games?page=3"
		json.NewEncoder(w).Encode(listResponse{
			Count: 1234,
			Next:  &next,
			Results: []gameResult{
				{
					ID:               10,
					Slug:             "half-life-2",
					Name:             "Half-Life 2",
					Released:         "2004-11-16",
					Metacritic:       96,
					ScreenshotsCount: 8,
					Genres:           []namedRef{{Name: "Shooter"}},
					Platforms:        []platformRef{{Platform: namedRef{Name: "PC"}}},
				},
			},
		})
	})

	page, err := client.ListGames(context.Background(), 2, 40, 70)
	require.NoError(t, err)

	assert.Equal(t, 1, limiter.calls)
	assert.Equal(t, 1234, page.Total)
	assert.True(t, page.HasNext)
	require.Len(t, page.Games, 1)

	game := page.Games[0]
	assert.Equal(t, "half-life-2", game.Slug)
	assert.Equal(t, 96, game.Score)
	require.NotNil(t, game.ReleaseYear)
	assert.Equal(t, 2004, *game.ReleaseYear)
	assert.Equal(t, []string{"Shooter"}, game.Genres)
	assert.Equal(t, []string{"PC"}, game.Platforms)
}

func TestGameDetails(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/games/10", r.URL.Path)
		fmt.Fprint(w, `{
			"id": 10, "slug": "half-life-2", "name": "Half-Life 2",
			"released": "2004-11-16", "metacritic": 96,
			"developers": [{"name": "Valve"}],
			"publishers": [{"name": "Valve"}]
		}`)
	})

	game, err := client.GameDetails(context.Background(), 10)
	require.NoError(t, err)
	require.NotNil(t, game.Developer)
	assert.Equal(t, "Valve", *game.Developer)
	require.NotNil(t, game.Publisher)
	assert.Equal(t, "Valve", *game.Publisher)
}

func TestGameScreenshots(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/games/10/screenshots", r.URL.Path)
		fmt.Fprint(w, `{"results": [{"id": 1, "image": "https://img.example.com/1.jpg"}]}`)
	})

	shots, err := client.GameScreenshots(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, shots, 1)
	assert.Equal(t, "https://img.example.com/1.jpg", shots[0].URL)
}

func TestTotalCount(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("page_size"))
		assert.Equal(t, "90,100", q.Get("metacritic"))
		fmt.Fprint(w, `{"count": 321, "results": []}`)
	})

	total, err := client.TotalCount(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 321, total)
}

func TestThrottledRequestRetries(t *testing.T) {
	var requests int
	client, limiter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"count": 5, "results": []}`)
	})

	total, err := client.TotalCount(context.Background(), 70)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 2, requests)
	assert.Equal(t, 2, limiter.calls, "every retry must re-acquire the limiter")
}

func TestThrottledRetryBudgetExhausted(t *testing.T) {
	var requests int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.TotalCount(context.Background(), 70)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 3, requests) // initial attempt + 2 retries
}

func TestServerErrorIsTyped(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ListGames(context.Background(), 1, 40, 70)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}
