// Package ratelimit implements a token bucket limiter for per-source rate control.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pharmintel/pricewatch/internal/pharma"
	"github.com/pharmintel/pricewatch/internal/telemetry"
)

// Limiter manages per-source rate limits. Each pharmacy site gets its
// own bucket so a slow source cannot starve the others.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[pharma.Source]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[pharma.Source]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the given source,
// respecting the context.
func (l *Limiter) Wait(ctx context.Context, source pharma.Source) error {
	l.mu.Lock()
	limiter, exists := l.limiters[source]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[source] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		telemetry.ObserveRateLimitDelay(string(source), delay)
	}
	return nil
}
