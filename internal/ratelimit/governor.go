// Package ratelimit provides the adaptive token bucket that gates every
// outbound request to the filing archive.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Governor is an adaptive token bucket. All archive calls acquire a token
// before issuing a request. Observed 429s drive the rate down (halved,
// floored at the minimum); sustained successes recover it geometrically
// back toward the configured steady-state rate.
type Governor struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	steadyRate   rate.Limit
	minRate      rate.Limit
	currentRate  rate.Limit
	blockedUntil time.Time
}

// NewGovernor creates a governor with steady-state rate r (requests/second),
// burst capacity b, and floor minRate. Zero values take the defaults from
// the ingestion spec: r=8, b=2r, minRate=1.
func NewGovernor(r float64, b int, minRate float64) *Governor {
	if r <= 0 {
		r = 8
	}
	if b <= 0 {
		b = int(2 * r)
	}
	if minRate <= 0 {
		minRate = 1
	}
	lim := rate.Limit(r)
	return &Governor{
		limiter:     rate.NewLimiter(lim, b),
		steadyRate:  lim,
		minRate:     rate.Limit(minRate),
		currentRate: lim,
	}
}

// Wait blocks until a token is available or ctx is done.
func (g *Governor) Wait(ctx context.Context) error {
	if err := g.waitBlocked(ctx); err != nil {
		return err
	}
	return g.limiter.Wait(ctx)
}

// Acquire tries to obtain a token within timeout. Returns false without
// consuming a token when none became available in time.
func (g *Governor) Acquire(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return g.Wait(ctx) == nil
}

// ReportRateLimit is called by callers that observed a 429 from the archive.
// With a retry-after deadline, all acquirers block until it passes.
// Without one, the current rate is halved, floored at the minimum.
func (g *Governor) ReportRateLimit(retryAfter *time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if retryAfter != nil {
		if retryAfter.After(g.blockedUntil) {
			g.blockedUntil = *retryAfter
		}
		zap.L().Warn("archive rate limited, blocking until deadline",
			zap.Time("retry_after", *retryAfter))
		return
	}

	newRate := g.currentRate / 2
	if newRate < g.minRate {
		newRate = g.minRate
	}
	g.currentRate = newRate
	g.limiter.SetLimit(newRate)
	zap.L().Warn("archive rate limited, halving request rate",
		zap.Float64("rate", float64(newRate)))
}

// ReportSuccess recovers the rate by 10%, capped at the steady-state rate.
func (g *Governor) ReportSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.currentRate >= g.steadyRate {
		return
	}
	newRate := g.currentRate * 1.1
	if newRate > g.steadyRate {
		newRate = g.steadyRate
	}
	g.currentRate = newRate
	g.limiter.SetLimit(newRate)
}

// Rate returns the current request rate.
func (g *Governor) Rate() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return float64(g.currentRate)
}

// waitBlocked sleeps out any retry-after deadline set by ReportRateLimit.
func (g *Governor) waitBlocked(ctx context.Context) error {
	for {
		g.mu.Lock()
		until := g.blockedUntil
		g.mu.Unlock()

		d := time.Until(until)
		if d <= 0 {
			return nil
		}

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
