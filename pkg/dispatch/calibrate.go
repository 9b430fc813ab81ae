package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
	"golang.org/x/time/rate"
)

// ProbeFunc 校准探测函数：n 为探测规模，返回该规模下调用是否成功。
// 返回错误表示探测本身无法继续（如上下文取消），而不是探测失败。
type ProbeFunc func(ctx context.Context, n int) (bool, error)

// Bounds 探测区间
type Bounds struct {
	Start int
	Max   int
}

// Probe 单调搜索 fn 成功的最大 n，限定在 [Start, Max] 内。
// 先从 Start 倍增爬升，再在最后一次成功与首次失败之间二分收窄。
// fn 在下界就失败时返回 0，不报错（表示没有探出可用上限）。
// 纯搜索算法，只在配置期运行，不依赖调度引擎内部。
func Probe(ctx context.Context, fn ProbeFunc, bounds Bounds) (int, error) {
	if bounds.Start <= 0 || bounds.Max < bounds.Start {
		return 0, errors.New("invalid probe bounds")
	}

	ok, err := fn(ctx, bounds.Start)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	// 倍增爬升
	lastOK := bounds.Start
	n := bounds.Start * 2
	firstFail := 0
	for n <= bounds.Max {
		ok, err := fn(ctx, n)
		if err != nil {
			return 0, err
		}
		if !ok {
			firstFail = n
			break
		}
		lastOK = n
		n *= 2
	}
	if firstFail == 0 {
		// 到达上界都没失败，还需确认上界本身
		if lastOK == bounds.Max {
			return lastOK, nil
		}
		ok, err := fn(ctx, bounds.Max)
		if err != nil {
			return 0, err
		}
		if ok {
			return bounds.Max, nil
		}
		firstFail = bounds.Max
	}

	// 在 (lastOK, firstFail) 间二分
	lo, hi := lastOK, firstFail
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		ok, err := fn(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ok {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// ProbeTokenCeiling 探测提供商单次请求能承受的最大字符规模：
// 发送 n 字符的合成文本，看调用是否成功。
func ProbeTokenCeiling(ctx context.Context, adapter providers.Adapter, source, target string, bounds Bounds) (int, error) {
	return Probe(ctx, func(ctx context.Context, n int) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		_, err := adapter.Translate(ctx, &providers.Request{
			Texts:          []string{syntheticPayload(n)},
			SourceLanguage: source,
			TargetLanguage: target,
		})
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil
		}
		return true, nil
	}, bounds)
}

// ProbeRequestCeiling 探测提供商的请求数上限：连续发 n 个最小请求，
// 全部成功才算通过。探测节奏由令牌桶限速，避免探测本身打爆对端。
func ProbeRequestCeiling(ctx context.Context, adapter providers.Adapter, source, target string, perSecond float64, bounds Bounds) (int, error) {
	if perSecond <= 0 {
		perSecond = 2
	}
	pacer := rate.NewLimiter(rate.Limit(perSecond), 1)

	return Probe(ctx, func(ctx context.Context, n int) (bool, error) {
		for i := 0; i < n; i++ {
			if err := pacer.Wait(ctx); err != nil {
				return false, err
			}

			_, err := adapter.Translate(ctx, &providers.Request{
				Texts:          []string{"ping"},
				SourceLanguage: source,
				TargetLanguage: target,
			})
			if err != nil {
				if ctx.Err() != nil {
					return false, ctx.Err()
				}
				return false, nil
			}
		}
		return true, nil
	}, bounds)
}

// syntheticPayload 生成 n 字符的合成探测文本
func syntheticPayload(n int) string {
	const word = "lorem ipsum "
	var b strings.Builder
	b.Grow(n)
	for b.Len() < n {
		remaining := n - b.Len()
		if remaining < len(word) {
			b.WriteString(word[:remaining])
			break
		}
		b.WriteString(word)
	}
	return b.String()
}
