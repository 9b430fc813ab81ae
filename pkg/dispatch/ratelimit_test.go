package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
)

func newTestLimiter(start time.Time) (*RateLimiter, *time.Time) {
	current := start
	rl := NewRateLimiter()
	rl.now = func() time.Time { return current }
	return rl, &current
}

func TestRateLimiterNoLimit(t *testing.T) {
	rl := NewRateLimiter()

	// 未配置限流的提供商始终放行
	for i := 0; i < 100; i++ {
		adm := rl.Acquire("unlimited", 1000)
		assert.True(t, adm.Allowed)
		assert.Zero(t, adm.RetryAfter)
	}
}

func TestRateLimiterRequestLimit(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl, _ := newTestLimiter(start)
	rl.SetLimit("p", providers.Throttle{RequestLimit: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		adm := rl.Acquire("p", 0)
		require.True(t, adm.Allowed, "request %d should be admitted", i)
	}

	adm := rl.Acquire("p", 0)
	assert.False(t, adm.Allowed)
	assert.Equal(t, time.Minute, adm.RetryAfter)
}

func TestRateLimiterTokenLimit(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl, _ := newTestLimiter(start)
	rl.SetLimit("p", providers.Throttle{TokenLimit: 100, Window: time.Minute})

	adm := rl.Acquire("p", 60)
	require.True(t, adm.Allowed)

	adm = rl.Acquire("p", 60)
	assert.False(t, adm.Allowed, "second request would exceed token budget")

	// 小请求仍在预算内，可以放行
	adm = rl.Acquire("p", 40)
	assert.True(t, adm.Allowed)
}

func TestRateLimiterWindowReset(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl, current := newTestLimiter(start)
	rl.SetLimit("p", providers.Throttle{RequestLimit: 1, Window: time.Minute})

	require.True(t, rl.Acquire("p", 0).Allowed)
	require.False(t, rl.Acquire("p", 0).Allowed)

	// 窗口过期后计数重置
	*current = start.Add(time.Minute)
	assert.True(t, rl.Acquire("p", 0).Allowed)
}

func TestRateLimiterRetryAfterCountdown(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl, current := newTestLimiter(start)
	rl.SetLimit("p", providers.Throttle{RequestLimit: 1, Window: time.Minute})

	require.True(t, rl.Acquire("p", 0).Allowed)

	*current = start.Add(45 * time.Second)
	adm := rl.Acquire("p", 0)
	require.False(t, adm.Allowed)
	assert.Equal(t, 15*time.Second, adm.RetryAfter)
}

func TestRateLimiterIsolatedPerProvider(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl, _ := newTestLimiter(start)
	rl.SetLimit("a", providers.Throttle{RequestLimit: 1, Window: time.Minute})
	rl.SetLimit("b", providers.Throttle{RequestLimit: 1, Window: time.Minute})

	require.True(t, rl.Acquire("a", 0).Allowed)
	require.False(t, rl.Acquire("a", 0).Allowed)

	// a 触顶不影响 b
	assert.True(t, rl.Acquire("b", 0).Allowed)
}

func TestRateLimiterSetLimitResetsState(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl, _ := newTestLimiter(start)
	rl.SetLimit("p", providers.Throttle{RequestLimit: 1, Window: time.Minute})

	require.True(t, rl.Acquire("p", 0).Allowed)
	require.False(t, rl.Acquire("p", 0).Allowed)

	rl.SetLimit("p", providers.Throttle{RequestLimit: 2, Window: time.Minute})
	assert.True(t, rl.Acquire("p", 0).Allowed)
	assert.True(t, rl.Acquire("p", 0).Allowed)
	assert.False(t, rl.Acquire("p", 0).Allowed)
}

func TestRateLimiterConcurrentBurst(t *testing.T) {
	rl := NewRateLimiter()
	rl.SetLimit("p", providers.Throttle{RequestLimit: 50, Window: time.Minute})

	// 并发冲击下放行数不得超过配额
	var wg sync.WaitGroup
	var admitted int64
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Acquire("p", 1).Allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), admitted)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(nil))
	assert.Equal(t, 1, EstimateTokens([]string{"ab"}))
	assert.Equal(t, 2, EstimateTokens([]string{"abcdefgh"}))
	assert.Equal(t, 3, EstimateTokens([]string{"abcd", "efgh", "ij"}))
}
