package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/dispatch"
	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
)

// ProviderConfig 保存单个提供商的配置
type ProviderConfig struct {
	Type           string            `mapstructure:"type"` // openai / openai-compatible / anthropic / deeplx / ollama / raw
	APIKey         string            `mapstructure:"api_key"`
	BaseURL        string            `mapstructure:"base_url"`
	Model          string            `mapstructure:"model"`
	SecondaryModel string            `mapstructure:"secondary_model"` // 配额受限时的降级模型
	Temperature    float64           `mapstructure:"temperature"`
	MaxTokens      int               `mapstructure:"max_tokens"`
	Timeout        int               `mapstructure:"timeout"` // 秒
	ProxyURL       string            `mapstructure:"proxy_url"`
	Headers        map[string]string `mapstructure:"headers"`
	QualityTier    string            `mapstructure:"quality_tier"` // standard / premium
	CostPerToken   float64           `mapstructure:"cost_per_token"`
	Weight         float64           `mapstructure:"weight"` // 路由平局权重，[0,1]
	Enabled        bool              `mapstructure:"enabled"`
	CacheTTL       int               `mapstructure:"cache_ttl"` // 秒，0表示使用全局默认
	RequestLimit   int               `mapstructure:"request_limit"`
	TokenLimit     int               `mapstructure:"token_limit"`
	ThrottleWindow int               `mapstructure:"throttle_window"` // 秒
	LanguagePairs  []string          `mapstructure:"language_pairs"`  // "en:zh" 形式，空表示不限
}

// Config 保存调度器的所有配置
type Config struct {
	ConfigVersion int `mapstructure:"config_version"`

	// 调度策略
	Strategy    string `mapstructure:"strategy"` // fast / balanced / quality / cost
	PreferLocal bool   `mapstructure:"prefer_local"`
	Failover    bool   `mapstructure:"failover"`

	// 重试与超时
	MaxAttempts    int `mapstructure:"max_attempts"`
	BackoffInitial int `mapstructure:"backoff_initial"` // 秒
	BackoffMax     int `mapstructure:"backoff_max"`     // 秒
	RequestTimeout int `mapstructure:"request_timeout"` // 秒

	// 缓存
	UseCache           bool `mapstructure:"use_cache"`
	CacheMaxEntries    int  `mapstructure:"cache_max_entries"`
	CacheTTL           int  `mapstructure:"cache_ttl"`            // 秒
	CacheSweepInterval int  `mapstructure:"cache_sweep_interval"` // 秒

	// 日志
	LogLevel        string `mapstructure:"log_level"`
	ConsoleLogLevel string `mapstructure:"console_log_level"`
	LogFile         string `mapstructure:"log_file"`
	Debug           bool   `mapstructure:"debug"`

	// 提供商
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName(".dispatcher")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("DISPATCHER")

	if err := v.ReadInConfig(); err != nil {
		// 找不到配置文件时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// 旧版配置先迁移再解码
	migrated, err := Migrate(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to migrate config: %w", err)
	}
	if err := v.MergeConfigMap(migrated); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// 提供商名称可能带点号，逐个子键解码
	providersRaw := v.GetStringMap("providers")
	if len(providersRaw) > 0 {
		config.Providers = make(map[string]ProviderConfig)
		for name := range providersRaw {
			var pc ProviderConfig
			subKey := fmt.Sprintf("providers.%s", name)
			if err := v.UnmarshalKey(subKey, &pc); err == nil {
				config.Providers[name] = pc
			}
		}
	}

	return &config, nil
}

// SaveConfig 将配置保存到文件
func SaveConfig(config *Config, configPath string) error {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		configPath = filepath.Join(home, ".dispatcher.yaml")
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.MergeConfigMap(structToMap(config)); err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return v.WriteConfig()
}

// setDefaults 设置viper默认值
func setDefaults(v *viper.Viper) {
	// config_version不设默认值，否则旧版无版本号的配置会被误判为当前版本
	v.SetDefault("strategy", string(dispatch.StrategyBalanced))
	v.SetDefault("prefer_local", false)
	v.SetDefault("failover", true)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("backoff_initial", 1)
	v.SetDefault("backoff_max", 30)
	v.SetDefault("request_timeout", 300)
	v.SetDefault("use_cache", true)
	v.SetDefault("cache_max_entries", 10000)
	v.SetDefault("cache_ttl", 86400)
	v.SetDefault("cache_sweep_interval", 300)
	v.SetDefault("log_level", "info")
	v.SetDefault("console_log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("debug", false)
}

// NewDefaultConfig 创建一个新的默认配置
func NewDefaultConfig() *Config {
	return &Config{
		ConfigVersion:      CurrentVersion,
		Strategy:           string(dispatch.StrategyBalanced),
		PreferLocal:        false,
		Failover:           true,
		MaxAttempts:        3,
		BackoffInitial:     1,
		BackoffMax:         30,
		RequestTimeout:     300,
		UseCache:           true,
		CacheMaxEntries:    10000,
		CacheTTL:           86400,
		CacheSweepInterval: 300,
		LogLevel:           "info",
		ConsoleLogLevel:    "info",
		Providers:          DefaultProviderConfigs(),
	}
}

// DefaultProviderConfigs 返回默认提供商配置
func DefaultProviderConfigs() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openai": {
			Type:           "openai",
			Model:          "gpt-4o-mini",
			SecondaryModel: "gpt-3.5-turbo",
			Temperature:    0.3,
			MaxTokens:      4096,
			Timeout:        120,
			QualityTier:    string(providers.TierPremium),
			CostPerToken:   0.00000015,
			Weight:         0.8,
			Enabled:        true,
			RequestLimit:   60,
			ThrottleWindow: 60,
		},
		"ollama": {
			Type:           "ollama",
			BaseURL:        "http://localhost:11434",
			Model:          "llama3.2",
			Temperature:    0.3,
			Timeout:        120,
			QualityTier:    string(providers.TierStandard),
			CostPerToken:   0,
			Weight:         0.5,
			Enabled:        true,
			RequestLimit:   0,
			ThrottleWindow: 60,
		},
		"deeplx": {
			Type:           "deeplx",
			BaseURL:        "http://localhost:1188/translate",
			Timeout:        30,
			QualityTier:    string(providers.TierStandard),
			CostPerToken:   0,
			Weight:         0.5,
			Enabled:        false,
			RequestLimit:   10,
			ThrottleWindow: 60,
		},
	}
}

// DispatchConfig 转换为引擎配置
func (c *Config) DispatchConfig() dispatch.Config {
	cfg := dispatch.DefaultConfig()
	if c.Strategy != "" {
		cfg.Strategy = dispatch.Strategy(c.Strategy)
	}
	cfg.PreferLocal = c.PreferLocal
	cfg.Failover = c.Failover
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.BackoffInitial > 0 {
		cfg.BackoffInitial = time.Duration(c.BackoffInitial) * time.Second
	}
	if c.BackoffMax > 0 {
		cfg.BackoffMax = time.Duration(c.BackoffMax) * time.Second
	}
	if c.RequestTimeout > 0 {
		cfg.DefaultTimeout = time.Duration(c.RequestTimeout) * time.Second
	}
	if c.CacheTTL > 0 {
		cfg.DefaultCacheTTL = time.Duration(c.CacheTTL) * time.Second
	}
	return cfg
}

// structToMap 通过已知键将配置转换为map
func structToMap(config *Config) map[string]interface{} {
	result := map[string]interface{}{
		"config_version":       config.ConfigVersion,
		"strategy":             config.Strategy,
		"prefer_local":         config.PreferLocal,
		"failover":             config.Failover,
		"max_attempts":         config.MaxAttempts,
		"backoff_initial":      config.BackoffInitial,
		"backoff_max":          config.BackoffMax,
		"request_timeout":      config.RequestTimeout,
		"use_cache":            config.UseCache,
		"cache_max_entries":    config.CacheMaxEntries,
		"cache_ttl":            config.CacheTTL,
		"cache_sweep_interval": config.CacheSweepInterval,
		"log_level":            config.LogLevel,
		"console_log_level":    config.ConsoleLogLevel,
		"log_file":             config.LogFile,
		"debug":                config.Debug,
	}

	providersMap := make(map[string]interface{}, len(config.Providers))
	for name, pc := range config.Providers {
		providersMap[name] = map[string]interface{}{
			"type":            pc.Type,
			"api_key":         pc.APIKey,
			"base_url":        pc.BaseURL,
			"model":           pc.Model,
			"secondary_model": pc.SecondaryModel,
			"temperature":     pc.Temperature,
			"max_tokens":      pc.MaxTokens,
			"timeout":         pc.Timeout,
			"proxy_url":       pc.ProxyURL,
			"headers":         pc.Headers,
			"quality_tier":    pc.QualityTier,
			"cost_per_token":  pc.CostPerToken,
			"weight":          pc.Weight,
			"enabled":         pc.Enabled,
			"cache_ttl":       pc.CacheTTL,
			"request_limit":   pc.RequestLimit,
			"token_limit":     pc.TokenLimit,
			"throttle_window": pc.ThrottleWindow,
			"language_pairs":  pc.LanguagePairs,
		}
	}
	result["providers"] = providersMap

	return result
}
