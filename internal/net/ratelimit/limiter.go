// Package ratelimit provides per-source token-bucket rate limiting for
// upstream market data providers.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter maintains one token bucket per named source so that ticker and
// market-cap traffic never share a budget.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a limiter handing out rps tokens per second with the
// given burst capacity per source.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) get(source string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[source]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[source]; ok {
		return lim
	}
	lim = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[source] = lim
	return lim
}

// Allow reports whether a request for the source may proceed immediately.
func (l *Limiter) Allow(source string) bool {
	return l.get(source).Allow()
}

// Wait blocks until a request for the source is allowed or the context
// is cancelled.
func (l *Limiter) Wait(ctx context.Context, source string) error {
	return l.get(source).Wait(ctx)
}

// SetRPS updates the refill rate for all existing buckets.
func (l *Limiter) SetRPS(rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps = rps
	for _, lim := range l.limiters {
		lim.SetLimit(rate.Limit(rps))
	}
}
