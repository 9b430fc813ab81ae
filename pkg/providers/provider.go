package providers

import (
	"context"
	"time"
)

// Capability 适配器能力标记
type Capability string

const (
	// CapabilityStreaming 支持流式输出
	CapabilityStreaming Capability = "streaming"

	// CapabilityBatch 支持批量翻译
	CapabilityBatch Capability = "batch"

	// CapabilityLanguageDetection 支持语言检测
	CapabilityLanguageDetection Capability = "language_detection"

	// CapabilityModelListing 支持模型列表查询
	CapabilityModelListing Capability = "model_listing"
)

// Type 提供商类型（本地模型或远程API）
type Type string

const (
	TypeLocal  Type = "local"
	TypeRemote Type = "remote"
)

// QualityTier 翻译质量档位
type QualityTier string

const (
	TierStandard QualityTier = "standard"
	TierPremium  QualityTier = "premium"
)

// BaseConfig 适配器基础配置
type BaseConfig struct {
	// API配置
	APIKey      string `json:"api_key,omitempty"`
	APIEndpoint string `json:"api_endpoint,omitempty"`

	// 超时
	Timeout time.Duration `json:"timeout"`

	// 代理设置（支持 http/https/socks5）
	ProxyURL string `json:"proxy_url,omitempty"`

	// 自定义头部
	Headers map[string]string `json:"headers,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() BaseConfig {
	return BaseConfig{
		Timeout: 2 * time.Minute,
		Headers: make(map[string]string),
	}
}

// Request 适配器翻译请求
type Request struct {
	// Texts 待翻译文本，批量请求时每个元素独立翻译，结果按序对齐
	Texts []string `json:"texts"`

	// SourceLanguage 源语言
	SourceLanguage string `json:"source_language"`

	// TargetLanguage 目标语言
	TargetLanguage string `json:"target_language"`

	// Model 模型覆盖（为空时使用适配器配置的默认模型）
	Model string `json:"model,omitempty"`

	// Stream 是否启用流式输出
	Stream bool `json:"stream,omitempty"`

	// OnChunk 流式增量回调，仅在 Stream 为 true 时调用
	OnChunk func(text string) `json:"-"`
}

// Response 适配器翻译响应
type Response struct {
	// Texts 翻译结果，与请求的 Texts 按序对齐
	Texts []string `json:"texts"`

	// Model 实际使用的模型
	Model string `json:"model,omitempty"`

	// Token用量
	TokensIn  int `json:"tokens_in,omitempty"`
	TokensOut int `json:"tokens_out,omitempty"`
}

// Adapter 统一适配器接口，每个后端实现一份
type Adapter interface {
	// Translate 执行翻译，失败时返回携带重试信号的 *Error
	Translate(ctx context.Context, req *Request) (*Response, error)

	// Name 适配器名称
	Name() string

	// HealthCheck 可用性检查（凭证是否存在、本地模型是否加载）
	HealthCheck(ctx context.Context) error
}

// LanguageDetector 可选能力：语言检测
type LanguageDetector interface {
	DetectLanguage(ctx context.Context, text string) (string, error)
}

// ModelLister 可选能力：模型列表查询
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}
