package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter bounds outbound request rate with a rolling window of request
// timestamps plus a minimum inter-request delay. One batch issues requests
// sequentially, so a single mutex is enough.
type Limiter struct {
	window      time.Duration
	maxRequests int
	minDelay    time.Duration
	margin      time.Duration

	mu     sync.Mutex
	stamps []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Config holds rate limiter settings.
type Config struct {
	Window      time.Duration
	MaxRequests int
	MinDelay    time.Duration
}

// New creates a limiter. Zero fields fall back to 60s / 20 requests / 1s.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 20
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = time.Second
	}
	return &Limiter{
		window:      cfg.Window,
		maxRequests: cfg.MaxRequests,
		minDelay:    cfg.MinDelay,
		margin:      100 * time.Millisecond,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Acquire blocks until one more request may be issued, then records it.
// Returns early with the context error if ctx is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.stamps) >= l.maxRequests {
		wait := l.stamps[0].Add(l.window).Sub(now) + l.margin
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
		now = l.now()
		l.prune(now)
	}

	if n := len(l.stamps); n > 0 {
		if since := now.Sub(l.stamps[n-1]); since < l.minDelay {
			if err := l.sleep(ctx, l.minDelay-since); err != nil {
				return err
			}
			now = l.now()
		}
	}

	l.stamps = append(l.stamps, now)
	return nil
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
