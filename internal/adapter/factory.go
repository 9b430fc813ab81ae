package adapter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-dispatch-agent/internal/config"
	"github.com/nerdneilsfield/go-dispatch-agent/pkg/dispatch"
	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers/anthropic"
	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers/deeplx"
	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers/ollama"
	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers/openai"
	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers/openaicompat"
	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers/raw"
)

// Factory 负责从配置构建注册表与调度引擎
type Factory struct {
	config *config.Config
	logger *zap.Logger
}

// NewFactory 创建工厂
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		config: cfg,
		logger: logger,
	}
}

// BuildRegistry 根据配置创建所有启用的提供商并注册
func (f *Factory) BuildRegistry() (*providers.Registry, error) {
	f.logger.Info("开始创建翻译提供商",
		zap.Int("configured", len(f.config.Providers)))

	registry := providers.NewRegistry()

	// map迭代无序，按名称排序保证注册顺序稳定
	names := make([]string, 0, len(f.config.Providers))
	for name := range f.config.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	created := make([]string, 0, len(names))
	for _, name := range names {
		pc := f.config.Providers[name]
		if !pc.Enabled {
			f.logger.Debug("跳过未启用的提供商", zap.String("provider", name))
			continue
		}

		adapter, desc, err := f.createProvider(name, pc)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %s: %w", name, err)
		}

		if err := registry.Register(desc, adapter); err != nil {
			return nil, err
		}
		created = append(created, name)

		f.logger.Info("创建提供商成功",
			zap.String("provider", name),
			zap.String("type", pc.Type),
			zap.String("model", pc.Model),
			zap.String("quality_tier", string(desc.QualityTier)),
			zap.Float64("weight", desc.Weight))
	}

	if len(created) == 0 {
		return nil, fmt.Errorf("no enabled providers configured")
	}

	f.logger.Info("创建翻译提供商完成", zap.Strings("providers", created))
	return registry, nil
}

// BuildEngine 构建完整的调度引擎
func (f *Factory) BuildEngine() (*dispatch.Engine, error) {
	registry, err := f.BuildRegistry()
	if err != nil {
		return nil, err
	}

	opts := []dispatch.Option{
		dispatch.WithLogger(f.logger),
		dispatch.WithUsageStats(dispatch.NewUsageStats()),
	}
	if f.config.UseCache {
		sweep := time.Duration(f.config.CacheSweepInterval) * time.Second
		opts = append(opts, dispatch.WithCache(
			dispatch.NewResultCache(f.config.CacheMaxEntries, sweep)))
	} else {
		opts = append(opts, dispatch.WithoutCache())
	}

	return dispatch.New(registry, f.config.DispatchConfig(), opts...)
}

// createProvider 根据类型创建适配器与描述符
func (f *Factory) createProvider(name string, pc config.ProviderConfig) (providers.Adapter, providers.Descriptor, error) {
	var (
		adapter      providers.Adapter
		providerType providers.Type
		capabilities []providers.Capability
		err          error
	)

	switch pc.Type {
	case "openai":
		adapter = openai.New(openaiConfig(pc))
		providerType = providers.TypeRemote
		capabilities = []providers.Capability{
			providers.CapabilityStreaming,
			providers.CapabilityBatch,
			providers.CapabilityLanguageDetection,
		}
	case "openai-compatible":
		adapter, err = openaicompat.New(compatConfig(name, pc))
		providerType = providers.TypeRemote
		if isLocalEndpoint(pc.BaseURL) {
			providerType = providers.TypeLocal
		}
		capabilities = []providers.Capability{
			providers.CapabilityStreaming,
			providers.CapabilityBatch,
			providers.CapabilityModelListing,
		}
	case "anthropic":
		adapter = anthropic.New(anthropicConfig(pc))
		providerType = providers.TypeRemote
		capabilities = []providers.Capability{
			providers.CapabilityStreaming,
			providers.CapabilityBatch,
		}
	case "deeplx":
		adapter, err = deeplx.New(deeplxConfig(pc))
		providerType = providers.TypeLocal
		capabilities = []providers.Capability{
			providers.CapabilityBatch,
		}
	case "ollama":
		adapter, err = ollama.New(ollamaConfig(pc))
		providerType = providers.TypeLocal
		capabilities = []providers.Capability{
			providers.CapabilityStreaming,
			providers.CapabilityBatch,
			providers.CapabilityModelListing,
		}
	case "raw", "none":
		adapter = raw.New()
		providerType = providers.TypeLocal
		capabilities = []providers.Capability{
			providers.CapabilityStreaming,
			providers.CapabilityBatch,
		}
	default:
		return nil, providers.Descriptor{}, fmt.Errorf("unsupported provider type: %s", pc.Type)
	}
	if err != nil {
		return nil, providers.Descriptor{}, err
	}

	desc := providers.Descriptor{
		ID:             name,
		Type:           providerType,
		Capabilities:   capabilities,
		Pairs:          parseLanguagePairs(pc.LanguagePairs),
		Throttle:       throttleConfig(pc),
		QualityTier:    qualityTier(pc.QualityTier),
		CostPerToken:   pc.CostPerToken,
		Weight:         pc.Weight,
		Enabled:        pc.Enabled,
		Model:          pc.Model,
		SecondaryModel: pc.SecondaryModel,
		CacheTTL:       time.Duration(pc.CacheTTL) * time.Second,
	}

	return adapter, desc, nil
}

func openaiConfig(pc config.ProviderConfig) openai.Config {
	cfg := openai.DefaultConfig()
	cfg.APIKey = pc.APIKey
	cfg.APIEndpoint = pc.BaseURL
	applyBase(&cfg.BaseConfig, pc)
	if pc.Model != "" {
		cfg.Model = pc.Model
	}
	if pc.Temperature > 0 {
		cfg.Temperature = float32(pc.Temperature)
	}
	if pc.MaxTokens > 0 {
		cfg.MaxTokens = pc.MaxTokens
	}
	return cfg
}

func compatConfig(name string, pc config.ProviderConfig) openaicompat.Config {
	cfg := openaicompat.DefaultConfig()
	cfg.Name = name
	cfg.APIKey = pc.APIKey
	cfg.APIEndpoint = pc.BaseURL
	applyBase(&cfg.BaseConfig, pc)
	if pc.Model != "" {
		cfg.Model = pc.Model
	}
	if pc.Temperature > 0 {
		cfg.Temperature = float32(pc.Temperature)
	}
	if pc.MaxTokens > 0 {
		cfg.MaxTokens = pc.MaxTokens
	}
	return cfg
}

func anthropicConfig(pc config.ProviderConfig) anthropic.Config {
	cfg := anthropic.DefaultConfig()
	cfg.APIKey = pc.APIKey
	cfg.APIEndpoint = pc.BaseURL
	applyBase(&cfg.BaseConfig, pc)
	if pc.Model != "" {
		cfg.Model = pc.Model
	}
	if pc.Temperature > 0 {
		cfg.Temperature = float32(pc.Temperature)
	}
	if pc.MaxTokens > 0 {
		cfg.MaxTokens = pc.MaxTokens
	}
	return cfg
}

func deeplxConfig(pc config.ProviderConfig) deeplx.Config {
	cfg := deeplx.DefaultConfig()
	cfg.AccessToken = pc.APIKey
	if pc.BaseURL != "" {
		cfg.APIEndpoint = pc.BaseURL
	}
	applyBase(&cfg.BaseConfig, pc)
	return cfg
}

func ollamaConfig(pc config.ProviderConfig) ollama.Config {
	cfg := ollama.DefaultConfig()
	if pc.BaseURL != "" {
		cfg.APIEndpoint = pc.BaseURL
	}
	applyBase(&cfg.BaseConfig, pc)
	if pc.Model != "" {
		cfg.Model = pc.Model
	}
	if pc.Temperature > 0 {
		cfg.Temperature = pc.Temperature
	}
	return cfg
}

// applyBase 应用基础配置项
func applyBase(base *providers.BaseConfig, pc config.ProviderConfig) {
	if pc.Timeout > 0 {
		base.Timeout = time.Duration(pc.Timeout) * time.Second
	}
	base.ProxyURL = pc.ProxyURL
	for k, v := range pc.Headers {
		if base.Headers == nil {
			base.Headers = make(map[string]string)
		}
		base.Headers[k] = v
	}
}

// throttleConfig 构造限流配置，窗口默认60秒
func throttleConfig(pc config.ProviderConfig) providers.Throttle {
	window := time.Duration(pc.ThrottleWindow) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	return providers.Throttle{
		RequestLimit: pc.RequestLimit,
		TokenLimit:   pc.TokenLimit,
		Window:       window,
	}
}

// qualityTier 解析质量档位，未知值按standard处理
func qualityTier(s string) providers.QualityTier {
	if providers.QualityTier(s) == providers.TierPremium {
		return providers.TierPremium
	}
	return providers.TierStandard
}

// parseLanguagePairs 解析 "en:zh" 形式的语言对列表
func parseLanguagePairs(raw []string) []providers.LanguagePair {
	pairs := make([]providers.LanguagePair, 0, len(raw))
	for _, item := range raw {
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 {
			continue
		}
		pairs = append(pairs, providers.LanguagePair{
			Source: providers.NormalizeLang(strings.TrimSpace(parts[0])),
			Target: providers.NormalizeLang(strings.TrimSpace(parts[1])),
		})
	}
	return pairs
}

// isLocalEndpoint 判断端点是否指向本机
func isLocalEndpoint(endpoint string) bool {
	return strings.Contains(endpoint, "localhost") ||
		strings.Contains(endpoint, "127.0.0.1") ||
		strings.Contains(endpoint, "0.0.0.0")
}
