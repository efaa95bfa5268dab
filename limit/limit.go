// Package limit provides a token-bucket governor for assignment
// throughput. The scheduler consults it before committing each
// assignment; a denied token ends the current cycle early and leaves
// the remaining pairs for the next tick.
package limit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines throughput limits for a worker pool.
type Config struct {
	// Pool is the worker pool identifier (matches the worker.Pool
	// field). The empty string configures the default pool.
	Pool string

	// Rate is the maximum sustained assignments per second for this
	// pool. Zero disables rate limiting.
	Rate float64

	// Burst is the burst size for the token-bucket limiter.
	// Defaults to 1 if Rate is set but Burst is zero.
	Burst int
}

// Governor applies per-pool assignment rate limits. It is safe for
// concurrent use.
type Governor struct {
	mu    sync.Mutex
	pools map[string]*rate.Limiter
}

// NewGovernor creates a Governor with the given pool configurations.
// Pools not listed here have no limits.
func NewGovernor(configs ...Config) *Governor {
	g := &Governor{
		pools: make(map[string]*rate.Limiter, len(configs)),
	}
	for _, cfg := range configs {
		if cfg.Rate <= 0 {
			continue
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.pools[cfg.Pool] = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return g
}

// Allow reports whether one more assignment may be committed to a
// worker in the given pool right now. Pools without a configured limit
// are always allowed.
func (g *Governor) Allow(pool string) bool {
	g.mu.Lock()
	limiter := g.pools[pool]
	g.mu.Unlock()

	if limiter == nil {
		return true
	}
	return limiter.Allow()
}
