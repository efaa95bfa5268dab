// Package backoff provides retry pacing for the coordinator's store
// connectivity checks. A Strategy maps a retry attempt to a wait
// duration; the coordinator sleeps that long between pings before
// giving up.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt. Implementations
// must be safe for concurrent use.
type Strategy interface {
	// Delay returns the wait before attempt n. Attempts are
	// 1-indexed: attempt 1 is the first retry after the initial
	// failure.
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to a Strategy.
type Func func(attempt int) time.Duration

// Delay calls f.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// NewConstant waits the same interval between every attempt.
func NewConstant(interval time.Duration) Strategy {
	return Func(func(int) time.Duration { return interval })
}

// NewLinear grows the wait by initial each attempt, capped at maxDelay.
func NewLinear(initial, maxDelay time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		return capDelay(initial*time.Duration(attempt), maxDelay)
	})
}

// NewExponential doubles the wait each attempt starting from initial,
// capped at maxDelay.
func NewExponential(initial, maxDelay time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		return capDelay(doubling(initial, attempt), maxDelay)
	})
}

// NewExponentialWithJitter draws the wait uniformly from [0, d] where d
// is the capped exponential delay for the attempt. Full jitter spreads
// out reconnect storms when many coordinators lose the same store at
// once.
func NewExponentialWithJitter(initial, maxDelay time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		d := capDelay(doubling(initial, attempt), maxDelay)
		return time.Duration(rand.Float64() * float64(d)) //nolint:gosec // pacing, not security
	})
}

// DefaultStrategy is the coordinator default: exponential with full
// jitter, 1s initial, 1m cap.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(1*time.Second, 1*time.Minute)
}

// doubling returns initial * 2^(attempt-1), saturating instead of
// overflowing for large attempt counts.
func doubling(initial time.Duration, attempt int) time.Duration {
	d := initial
	for i := 1; i < attempt; i++ {
		if d > time.Duration(1)<<62/2 {
			return time.Duration(1) << 62
		}
		d *= 2
	}
	return d
}

func capDelay(d, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
