package resilient

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// minEscalatedInterval is the interval adopted when a provider with no
// configured spacing reports a quota error.
const minEscalatedInterval = 100 * time.Millisecond

// Gate enforces a minimum interval between calls to one provider. The
// interval doubles on quota pressure up to a ceiling and never decreases
// on its own.
type Gate struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	interval time.Duration
	max      time.Duration
}

// NewGate creates a gate allowing one call per interval. A zero interval
// disables spacing.
func NewGate(interval, max time.Duration) *Gate {
	if max < interval {
		max = interval
	}
	return &Gate{
		limiter:  rate.NewLimiter(limitFor(interval), 1),
		interval: interval,
		max:      max,
	}
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// Wait blocks until the next call may be issued or ctx ends.
func (g *Gate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Interval returns the current minimum interval.
func (g *Gate) Interval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interval
}

// Escalate doubles the interval, capped at the ceiling, and returns the
// new value.
func (g *Gate) Escalate() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := g.interval * 2
	if next <= 0 {
		next = minEscalatedInterval
	}
	if g.max > 0 && next > g.max {
		next = g.max
	}
	g.interval = next
	g.limiter.SetLimit(limitFor(next))
	return next
}
