package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageStatsRecord(t *testing.T) {
	s := NewUsageStats()

	s.Record("openai", AttemptResult{
		Success:   true,
		Latency:   100 * time.Millisecond,
		TokensIn:  10,
		TokensOut: 20,
	})
	s.Record("openai", AttemptResult{
		Success:   false,
		Latency:   300 * time.Millisecond,
		ErrorKind: KindQuota,
		IsRetry:   true,
	})

	snap := s.Snapshot()
	u, ok := snap["openai"]
	require.True(t, ok)

	assert.Equal(t, int64(2), u.TotalRequests)
	assert.Equal(t, int64(1), u.SuccessfulRequests)
	assert.Equal(t, int64(1), u.FailedRequests)
	assert.Equal(t, int64(1), u.RetryAttempts)
	assert.Equal(t, int64(10), u.TotalTokensIn)
	assert.Equal(t, int64(20), u.TotalTokensOut)
	assert.Equal(t, 100*time.Millisecond, u.MinLatency)
	assert.Equal(t, 300*time.Millisecond, u.MaxLatency)
	assert.Equal(t, 200*time.Millisecond, u.AverageLatency)
	assert.Equal(t, int64(1), u.ErrorKinds[KindQuota])
}

func TestUsageStatsRequests(t *testing.T) {
	s := NewUsageStats()
	assert.Equal(t, int64(0), s.Requests("unknown"))

	s.Record("a", AttemptResult{Success: true})
	s.Record("a", AttemptResult{Success: true})
	s.Record("b", AttemptResult{Success: false, ErrorKind: KindNetwork})

	assert.Equal(t, int64(2), s.Requests("a"))
	assert.Equal(t, int64(1), s.Requests("b"))
	assert.Equal(t, map[string]int64{"a": 2, "b": 1}, s.RequestCounts())
}

func TestUsageSnapshotIsCopy(t *testing.T) {
	s := NewUsageStats()
	s.Record("a", AttemptResult{Success: false, ErrorKind: KindNetwork})

	snap := s.Snapshot()
	snap["a"].ErrorKinds[KindNetwork] = 99

	again := s.Snapshot()
	assert.Equal(t, int64(1), again["a"].ErrorKinds[KindNetwork])
}
