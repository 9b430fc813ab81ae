package dispatch

import (
	"time"
)

// Strategy 路由策略
type Strategy string

const (
	// StrategyFast 偏好低延迟（本地提供商优先）
	StrategyFast Strategy = "fast"

	// StrategyBalanced 兼顾本地与高质量
	StrategyBalanced Strategy = "balanced"

	// StrategyQuality 偏好高质量档位
	StrategyQuality Strategy = "quality"

	// StrategyCost 偏好零成本提供商
	StrategyCost Strategy = "cost"
)

// Request 一次逻辑翻译请求
type Request struct {
	// Texts 待翻译文本。单文本请求放一个元素；批量请求逐元素保序。
	Texts []string `json:"texts"`

	// SourceLang 源语言
	SourceLang string `json:"source_lang"`

	// TargetLang 目标语言
	TargetLang string `json:"target_lang"`

	// Strategy 路由策略（为空时使用引擎默认）
	Strategy Strategy `json:"strategy,omitempty"`

	// Streaming 是否流式输出
	Streaming bool `json:"streaming,omitempty"`

	// OnChunk 流式增量回调
	OnChunk func(Chunk) `json:"-"`

	// Timeout 整个多提供商解析过程的总超时（0表示用引擎默认）
	Timeout time.Duration `json:"timeout,omitempty"`

	// ProviderHint 提示优先尝试的提供商，未注册或不符合条件时忽略
	ProviderHint string `json:"provider_hint,omitempty"`
}

// Chunk 流式输出的一个增量
type Chunk struct {
	Phase string `json:"phase"` // 目前只有 "chunk"
	Text  string `json:"text"`
}

// Result 调度结果
type Result struct {
	// Texts 翻译结果，与请求文本按序对齐
	Texts []string `json:"texts"`

	// Provider 实际完成翻译的提供商（缓存命中时为写入缓存的提供商）
	Provider string `json:"provider"`

	// Model 实际使用的模型
	Model string `json:"model,omitempty"`

	// CacheHit 是否全部命中缓存
	CacheHit bool `json:"cache_hit"`

	// Attempts 本次请求的全部提供商尝试记录
	Attempts []Attempt `json:"attempts,omitempty"`

	// Duration 总耗时
	Duration time.Duration `json:"duration"`
}

// AttemptStatus 单次提供商尝试的终态
type AttemptStatus string

const (
	AttemptSuccess       AttemptStatus = "success"
	AttemptRetryableFail AttemptStatus = "retryable-fail"
	AttemptFatalFail     AttemptStatus = "fatal-fail"
)

// Attempt 一次提供商尝试的记录。仅存在于单次请求的生命周期内，
// 全部失败时随聚合错误一起返回用于诊断。
type Attempt struct {
	Provider   string        `json:"provider"`
	Model      string        `json:"model,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Status     AttemptStatus `json:"status"`
	Err        error         `json:"-"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}
