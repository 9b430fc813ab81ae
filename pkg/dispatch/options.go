package dispatch

import "go.uber.org/zap"

// Option 引擎配置选项函数
type Option func(*engineOptions)

// engineOptions 引擎内部选项
type engineOptions struct {
	cache        *ResultCache
	disableCache bool
	limiter      *RateLimiter
	usage        *UsageStats
	logger       *zap.Logger
}

// WithCache 设置结果缓存
func WithCache(cache *ResultCache) Option {
	return func(o *engineOptions) {
		o.cache = cache
	}
}

// WithoutCache 完全禁用结果缓存
func WithoutCache() Option {
	return func(o *engineOptions) {
		o.disableCache = true
		o.cache = nil
	}
}

// WithRateLimiter 设置限流器
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(o *engineOptions) {
		o.limiter = limiter
	}
}

// WithUsageStats 设置用量统计
func WithUsageStats(usage *UsageStats) Option {
	return func(o *engineOptions) {
		o.usage = usage
	}
}

// WithLogger 设置logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}
