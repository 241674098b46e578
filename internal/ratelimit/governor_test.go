package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGovernor_Defaults(t *testing.T) {
	g := NewGovernor(0, 0, 0)
	assert.InDelta(t, 8.0, g.Rate(), 0.001)
}

func TestGovernor_RateOneBurstOne(t *testing.T) {
	// rate=1, burst=1 admits at most two requests within the first ~1s:
	// one from the initial bucket, one from refill.
	g := NewGovernor(1, 1, 1)
	ctx := context.Background()

	start := time.Now()
	require.True(t, g.Acquire(ctx, 50*time.Millisecond))

	admitted := 1
	for time.Since(start) < 1001*time.Millisecond {
		if g.Acquire(ctx, 10*time.Millisecond) {
			admitted++
		}
	}
	assert.LessOrEqual(t, admitted, 2)
}

func TestGovernor_ReportRateLimitHalves(t *testing.T) {
	g := NewGovernor(8, 16, 1)

	g.ReportRateLimit(nil)
	assert.InDelta(t, 4.0, g.Rate(), 0.001)

	g.ReportRateLimit(nil)
	g.ReportRateLimit(nil)
	g.ReportRateLimit(nil)
	g.ReportRateLimit(nil)
	// Floored at min rate.
	assert.InDelta(t, 1.0, g.Rate(), 0.001)
}

func TestGovernor_ReportSuccessRecovers(t *testing.T) {
	g := NewGovernor(8, 16, 1)
	g.ReportRateLimit(nil) // 4.0

	g.ReportSuccess()
	assert.InDelta(t, 4.4, g.Rate(), 0.001)

	for i := 0; i < 100; i++ {
		g.ReportSuccess()
	}
	// Capped at steady-state rate.
	assert.InDelta(t, 8.0, g.Rate(), 0.001)
}

func TestGovernor_RetryAfterBlocksAcquirers(t *testing.T) {
	g := NewGovernor(100, 100, 1)
	deadline := time.Now().Add(150 * time.Millisecond)
	g.ReportRateLimit(&deadline)

	assert.False(t, g.Acquire(context.Background(), 20*time.Millisecond))

	start := time.Now()
	require.NoError(t, g.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestGovernor_WaitHonorsContext(t *testing.T) {
	g := NewGovernor(1, 1, 1)
	require.NoError(t, g.Wait(context.Background())) // drain the bucket

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, g.Wait(ctx))
}
