package dispatch

import (
	"sync"
	"time"
)

// ProviderUsage 单个提供商的用量统计
type ProviderUsage struct {
	Provider           string           `json:"provider"`
	TotalRequests      int64            `json:"total_requests"`
	SuccessfulRequests int64            `json:"successful_requests"`
	FailedRequests     int64            `json:"failed_requests"`
	RetryAttempts      int64            `json:"retry_attempts"`
	TotalTokensIn      int64            `json:"total_tokens_in"`
	TotalTokensOut     int64            `json:"total_tokens_out"`

	// 延迟统计
	TotalLatency   time.Duration `json:"total_latency"`
	AverageLatency time.Duration `json:"average_latency"`
	MinLatency     time.Duration `json:"min_latency"`
	MaxLatency     time.Duration `json:"max_latency"`

	// 按错误种类统计
	ErrorKinds map[string]int64 `json:"error_kinds"`

	LastRequestTime time.Time `json:"last_request_time"`
}

// AttemptResult 单次尝试的记录入参
type AttemptResult struct {
	Success   bool
	Latency   time.Duration
	TokensIn  int
	TokensOut int
	ErrorKind string
	IsRetry   bool
}

// UsageStats 用量统计管理器。路由的负载惩罚和stats命令都从这里取数。
type UsageStats struct {
	mu    sync.RWMutex
	usage map[string]*ProviderUsage
}

// NewUsageStats 创建用量统计
func NewUsageStats() *UsageStats {
	return &UsageStats{
		usage: make(map[string]*ProviderUsage),
	}
}

// Record 记录一次提供商尝试
func (s *UsageStats) Record(provider string, result AttemptResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.usage[provider]
	if !exists {
		u = &ProviderUsage{
			Provider:   provider,
			ErrorKinds: make(map[string]int64),
			MinLatency: time.Hour, // 初始设为很大的值
		}
		s.usage[provider] = u
	}

	u.TotalRequests++
	u.LastRequestTime = time.Now()
	if result.IsRetry {
		u.RetryAttempts++
	}

	if result.Success {
		u.SuccessfulRequests++
	} else {
		u.FailedRequests++
		if result.ErrorKind != "" {
			u.ErrorKinds[result.ErrorKind]++
		}
	}

	u.TotalTokensIn += int64(result.TokensIn)
	u.TotalTokensOut += int64(result.TokensOut)

	u.TotalLatency += result.Latency
	if result.Latency < u.MinLatency {
		u.MinLatency = result.Latency
	}
	if result.Latency > u.MaxLatency {
		u.MaxLatency = result.Latency
	}
	u.AverageLatency = u.TotalLatency / time.Duration(u.TotalRequests)
}

// Requests 提供商累计请求数（路由负载惩罚用）
func (s *UsageStats) Requests(provider string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, exists := s.usage[provider]; exists {
		return u.TotalRequests
	}
	return 0
}

// RequestCounts 所有提供商的请求数快照
func (s *UsageStats) RequestCounts() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(s.usage))
	for id, u := range s.usage {
		out[id] = u.TotalRequests
	}
	return out
}

// Snapshot 所有提供商用量的深拷贝快照
func (s *UsageStats) Snapshot() map[string]ProviderUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]ProviderUsage, len(s.usage))
	for id, u := range s.usage {
		copied := *u
		copied.ErrorKinds = make(map[string]int64, len(u.ErrorKinds))
		for k, v := range u.ErrorKinds {
			copied.ErrorKinds[k] = v
		}
		out[id] = copied
	}
	return out
}
