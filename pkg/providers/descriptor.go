package providers

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Throttle 提供商限流窗口配置
type Throttle struct {
	// RequestLimit 窗口内允许的请求数（0表示不限）
	RequestLimit int `json:"request_limit"`

	// TokenLimit 窗口内允许的token数（0表示不限）
	TokenLimit int `json:"token_limit"`

	// Window 窗口长度
	Window time.Duration `json:"window"`
}

// LanguagePair 语言对
type LanguagePair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Descriptor 提供商静态描述，由配置装载时创建。
// 调度路径只读，仅通过显式的配置更新修改。
type Descriptor struct {
	// ID 提供商标识
	ID string `json:"id"`

	// Type 本地或远程
	Type Type `json:"type"`

	// Capabilities 能力集合
	Capabilities []Capability `json:"capabilities"`

	// Pairs 支持的语言对，为空表示支持任意语言对
	Pairs []LanguagePair `json:"pairs,omitempty"`

	// Throttle 限流配置
	Throttle Throttle `json:"throttle"`

	// QualityTier 质量档位
	QualityTier QualityTier `json:"quality_tier"`

	// CostPerToken 每token成本（美元）
	CostPerToken float64 `json:"cost_per_token"`

	// Weight 路由权重，取值[0,1]，用于同分打破平局
	Weight float64 `json:"weight"`

	// Enabled 是否启用
	Enabled bool `json:"enabled"`

	// Model 默认模型
	Model string `json:"model,omitempty"`

	// SecondaryModel 备用模型，配额类失败时在同一提供商上重试一次
	SecondaryModel string `json:"secondary_model,omitempty"`

	// CacheTTL 该提供商翻译结果的缓存TTL（0表示使用全局默认）
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`
}

// IsLocal 是否为本地提供商
func (d *Descriptor) IsLocal() bool {
	return d.Type == TypeLocal
}

// HasCapability 是否具备指定能力
func (d *Descriptor) HasCapability(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// SupportsPair 是否支持给定语言对。语言代码先做规范化再比较。
func (d *Descriptor) SupportsPair(source, target string) bool {
	if len(d.Pairs) == 0 {
		return true
	}

	src := NormalizeLang(source)
	tgt := NormalizeLang(target)
	for _, p := range d.Pairs {
		if NormalizeLang(p.Source) == src && NormalizeLang(p.Target) == tgt {
			return true
		}
	}
	return false
}

// NormalizeLang 规范化语言代码。能被BCP47解析的取其规范形式，
// 否则退化为小写去空白。
func NormalizeLang(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return ""
	}

	tag, err := language.Parse(trimmed)
	if err != nil {
		return strings.ToLower(trimmed)
	}
	return strings.ToLower(tag.String())
}
