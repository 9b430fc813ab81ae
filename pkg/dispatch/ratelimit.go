package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
)

// Admission 限流准入结果
type Admission struct {
	// Allowed 是否放行
	Allowed bool

	// RetryAfter 被拒绝时距当前窗口结束的剩余时间
	RetryAfter time.Duration
}

// windowState 单个提供商的窗口计数。
// 不变量：窗口内 requestCount <= RequestLimit 且 tokenCount <= TokenLimit。
type windowState struct {
	windowStart  time.Time
	requestCount int
	tokenCount   int
}

// RateLimiter 按提供商做固定窗口准入控制。
// 只做判定，不在内部阻塞等待；等待、失败或换提供商由调用方决定。
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]providers.Throttle
	states map[string]*windowState

	// now 可注入时钟，测试用
	now func() time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limits: make(map[string]providers.Throttle),
		states: make(map[string]*windowState),
		now:    time.Now,
	}
}

// SetLimit 设置提供商的限流配置（配置装载/刷新时调用）
func (rl *RateLimiter) SetLimit(providerID string, throttle providers.Throttle) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.limits[providerID] = throttle
	delete(rl.states, providerID)
}

// Acquire 申请一次请求准入。检查与计数递增在同一临界区内完成，
// 中间没有任何挂起点。
func (rl *RateLimiter) Acquire(providerID string, estimatedTokens int) Admission {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	throttle, hasLimit := rl.limits[providerID]
	if !hasLimit || throttle.Window <= 0 {
		return Admission{Allowed: true}
	}

	now := rl.now()
	state, exists := rl.states[providerID]
	if !exists {
		state = &windowState{windowStart: now}
		rl.states[providerID] = state
	}

	// 窗口到期则原子地重置计数
	if now.Sub(state.windowStart) >= throttle.Window {
		state.windowStart = now
		state.requestCount = 0
		state.tokenCount = 0
	}

	if state.requestCount < 0 || state.tokenCount < 0 {
		// 计数为负是编程错误，直接崩溃而不是带病恢复
		panic(fmt.Sprintf("rate limiter state corrupted for %s: requests=%d tokens=%d",
			providerID, state.requestCount, state.tokenCount))
	}

	requestOK := throttle.RequestLimit <= 0 || state.requestCount+1 <= throttle.RequestLimit
	tokenOK := throttle.TokenLimit <= 0 || state.tokenCount+estimatedTokens <= throttle.TokenLimit

	if !requestOK || !tokenOK {
		return Admission{
			Allowed:    false,
			RetryAfter: state.windowStart.Add(throttle.Window).Sub(now),
		}
	}

	state.requestCount++
	state.tokenCount += estimatedTokens
	return Admission{Allowed: true}
}

// EstimateTokens 粗略估算token数（约每4字符1token）。
// 没有提供商原生分词器时的廉价启发式，不可用于计费。
func EstimateTokens(texts []string) int {
	total := 0
	for _, text := range texts {
		total += (len(text) + 3) / 4
	}
	return total
}
