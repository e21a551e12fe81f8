package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLimiter(t *testing.T, tiers map[string]Tier) (*Limiter, *time.Time) {
	t.Helper()

	limiter, err := NewLimiter(tiers, zap.NewNop())
	require.NoError(t, err)

	current := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter.clock = func() time.Time { return current }
	return limiter, &current
}

func TestNewLimiterValidation(t *testing.T) {
	_, err := NewLimiter(map[string]Tier{"bad": {Window: time.Minute, MaxRequests: 0}}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max requests must be positive")

	_, err = NewLimiter(map[string]Tier{"bad": {Window: 0, MaxRequests: 5}}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window must be positive")

	limiter, err := NewLimiter(nil, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, limiter)
}

func TestCheckUnknownTier(t *testing.T) {
	limiter, _ := newTestLimiter(t, DefaultTiers)

	_, err := limiter.Check("ip:1.2.3.4", "nope")
	require.Error(t, err)
}

func TestWindowInvariant(t *testing.T) {
	limiter, _ := newTestLimiter(t, map[string]Tier{
		"strict": {Window: time.Minute, MaxRequests: 3},
	})

	// Scenario: 3 calls allowed with remaining 2, 1, 0; the 4th is denied.
	for i, wantRemaining := range []int{2, 1, 0} {
		decision, err := limiter.Check("ip:1.2.3.4", "strict")
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "call %d should be allowed", i+1)
		assert.Equal(t, wantRemaining, decision.Remaining)
		assert.Equal(t, 3, decision.Limit)
	}

	decision, err := limiter.Check("ip:1.2.3.4", "strict")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.LessOrEqual(t, decision.RetryAfterSeconds, 60)
	assert.Greater(t, decision.RetryAfterSeconds, 0)
}

func TestWindowReset(t *testing.T) {
	limiter, now := newTestLimiter(t, map[string]Tier{
		"strict": {Window: time.Minute, MaxRequests: 2},
	})

	for i := 0; i < 5; i++ {
		_, err := limiter.Check("user:42", "strict")
		require.NoError(t, err)
	}

	// A call after resetAt starts a fresh window with count=1, regardless of
	// how exhausted the previous window was.
	*now = now.Add(61 * time.Second)
	decision, err := limiter.Check("user:42", "strict")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.Remaining)
}

func TestTierNamespacesAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, map[string]Tier{
		"strict":  {Window: time.Minute, MaxRequests: 1},
		"general": {Window: time.Minute, MaxRequests: 10},
	})

	decision, err := limiter.Check("ip:9.9.9.9", "strict")
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = limiter.Check("ip:9.9.9.9", "strict")
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	// Exhausting "strict" must not consume "general" budget.
	decision, err = limiter.Check("ip:9.9.9.9", "general")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 9, decision.Remaining)
}

func TestConcurrentChecksNeverExceedLimit(t *testing.T) {
	const limit = 50
	const callers = 200

	limiter, err := NewLimiter(map[string]Tier{
		"general": {Window: time.Minute, MaxRequests: limit},
	}, zap.NewNop())
	require.NoError(t, err)

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := limiter.Check("user:contended", "general")
			if err == nil && decision.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), allowed)
}

func TestSweepRemovesOnlyExpiredWindows(t *testing.T) {
	limiter, now := newTestLimiter(t, map[string]Tier{
		"short": {Window: time.Second, MaxRequests: 5},
		"long":  {Window: time.Hour, MaxRequests: 5},
	})

	_, err := limiter.Check("ip:1.1.1.1", "short")
	require.NoError(t, err)
	_, err = limiter.Check("ip:1.1.1.1", "long")
	require.NoError(t, err)
	require.Equal(t, 2, limiter.WindowCount())

	*now = now.Add(2 * time.Second)
	removed := limiter.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, limiter.WindowCount())
}
