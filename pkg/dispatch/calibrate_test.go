package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
)

// thresholdProbe 在 limit 以内成功的单调探测函数
func thresholdProbe(limit int, probed *[]int) ProbeFunc {
	return func(ctx context.Context, n int) (bool, error) {
		if probed != nil {
			*probed = append(*probed, n)
		}
		return n <= limit, nil
	}
}

func TestProbeInvalidBounds(t *testing.T) {
	ctx := context.Background()
	fn := thresholdProbe(100, nil)

	_, err := Probe(ctx, fn, Bounds{Start: 0, Max: 100})
	assert.Error(t, err)

	_, err = Probe(ctx, fn, Bounds{Start: -1, Max: 100})
	assert.Error(t, err)

	_, err = Probe(ctx, fn, Bounds{Start: 100, Max: 50})
	assert.Error(t, err)
}

func TestProbeFailAtStart(t *testing.T) {
	got, err := Probe(context.Background(), thresholdProbe(10, nil), Bounds{Start: 64, Max: 1024})
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestProbeFindsExactThreshold(t *testing.T) {
	for _, limit := range []int{64, 100, 127, 128, 129, 500, 1000} {
		got, err := Probe(context.Background(), thresholdProbe(limit, nil), Bounds{Start: 64, Max: 1024})
		require.NoError(t, err)
		assert.Equal(t, limit, got, "limit=%d", limit)
	}
}

func TestProbeCeilingAboveMax(t *testing.T) {
	// 上界内从未失败时返回 Max，且需确认过 Max 本身
	var probed []int
	got, err := Probe(context.Background(), thresholdProbe(1<<20, &probed), Bounds{Start: 64, Max: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1000, got)
	assert.Contains(t, probed, 1000)
}

func TestProbeMaxIsPowerOfTwoClimb(t *testing.T) {
	// 倍增恰好落在 Max 上时不重复确认
	var probed []int
	got, err := Probe(context.Background(), thresholdProbe(1<<20, &probed), Bounds{Start: 64, Max: 1024})
	require.NoError(t, err)
	assert.Equal(t, 1024, got)

	count := 0
	for _, n := range probed {
		if n == 1024 {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestProbePropagatesError(t *testing.T) {
	boom := errors.New("probe aborted")
	calls := 0
	fn := func(ctx context.Context, n int) (bool, error) {
		calls++
		if calls >= 3 {
			return false, boom
		}
		return true, nil
	}

	_, err := Probe(context.Background(), fn, Bounds{Start: 1, Max: 1 << 16})
	assert.ErrorIs(t, err, boom)
}

func TestProbeTokenCeiling(t *testing.T) {
	// 4096字符以内成功的适配器
	a := &mockAdapter{name: "a"}
	a.fn = func(ctx context.Context, call int, req *providers.Request) (*providers.Response, error) {
		if len(req.Texts[0]) > 4096 {
			return nil, providers.ClassifyStatus("a", 400, "payload too large")
		}
		return &providers.Response{Texts: []string{"ok"}}, nil
	}

	got, err := ProbeTokenCeiling(context.Background(), a, "en", "zh", Bounds{Start: 64, Max: 65536})
	require.NoError(t, err)
	assert.Equal(t, 4096, got)
}

func TestProbeRequestCeiling(t *testing.T) {
	total := 0
	a := &mockAdapter{name: "a"}
	a.fn = func(ctx context.Context, call int, req *providers.Request) (*providers.Response, error) {
		total++
		if total > 10 {
			return nil, providers.ClassifyStatus("a", 429, "quota exhausted")
		}
		return &providers.Response{Texts: []string{"ok"}}, nil
	}

	// 累计预算10次：Start=4成功（剩6），n=8失败在中途
	got, err := ProbeRequestCeiling(context.Background(), a, "en", "zh", 1000, Bounds{Start: 4, Max: 64})
	require.NoError(t, err)
	assert.Greater(t, got, 0)
	assert.LessOrEqual(t, got, 8)
}

func TestProbeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &mockAdapter{name: "a"}
	_, err := ProbeTokenCeiling(ctx, a, "en", "zh", Bounds{Start: 64, Max: 1024})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyntheticPayload(t *testing.T) {
	for _, n := range []int{1, 11, 12, 13, 100, 4096} {
		assert.Len(t, syntheticPayload(n), n)
	}
}
