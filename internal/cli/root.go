package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-dispatch-agent/internal/adapter"
	"github.com/nerdneilsfield/go-dispatch-agent/internal/config"
	"github.com/nerdneilsfield/go-dispatch-agent/internal/logger"
	"github.com/nerdneilsfield/go-dispatch-agent/internal/stats"
	"github.com/nerdneilsfield/go-dispatch-agent/pkg/dispatch"
)

var (
	// 命令行标志变量
	cfgFile      string
	sourceLang   string
	targetLang   string
	strategy     string
	providerHint string
	streamOutput bool
	noCache      bool
	debugMode    bool
	timeoutSecs  int
)

// NewRootCommand 创建根命令
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dispatcher",
		Short: "dispatcher 是一个多提供商翻译调度引擎",
		Long: `dispatcher 是一个多提供商翻译调度引擎。
它在多个翻译提供商之间做策略路由、限流准入、结果缓存与失败转移。

支持的提供商类型:
  - openai: OpenAI GPT 模型（官方SDK）
  - openai-compatible: 任意OpenAI兼容端点（vLLM、LM Studio等）
  - anthropic: Anthropic Claude 模型
  - deeplx: DeepLX (免费 DeepL 替代)
  - ollama: Ollama 本地大语言模型
  - raw: 原样透传（调试用）`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径（默认 ~/.dispatcher.yaml）")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "启用调试日志")

	rootCmd.AddCommand(newTranslateCommand())
	rootCmd.AddCommand(newProvidersCommand())
	rootCmd.AddCommand(newStatsCommand())
	rootCmd.AddCommand(newCalibrateCommand())
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

// loadEngine 加载配置并构建调度引擎
func loadEngine() (*dispatch.Engine, *config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if noCache {
		cfg.UseCache = false
	}

	log := logger.NewLoggerWithOptions(cfg.LogLevel, cfg.LogFile, debugMode || cfg.Debug)

	engine, err := adapter.NewFactory(cfg, log).BuildEngine()
	if err != nil {
		return nil, nil, nil, err
	}
	return engine, cfg, log, nil
}

// newTranslateCommand 翻译子命令
func newTranslateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate [flags] text...",
		Short: "翻译一个或多个文本",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, log, err := loadEngine()
			if err != nil {
				return err
			}
			defer func() {
				_ = log.Sync()
			}()

			req := &dispatch.Request{
				Texts:        args,
				SourceLang:   sourceLang,
				TargetLang:   targetLang,
				Strategy:     dispatch.Strategy(strategy),
				Streaming:    streamOutput,
				ProviderHint: providerHint,
			}
			if timeoutSecs > 0 {
				req.Timeout = time.Duration(timeoutSecs) * time.Second
			}
			if streamOutput {
				req.OnChunk = func(chunk dispatch.Chunk) {
					fmt.Print(chunk.Text)
				}
			}

			result, err := engine.Translate(cmd.Context(), req)
			if err != nil {
				return err
			}

			if streamOutput {
				fmt.Println()
			} else {
				for _, text := range result.Texts {
					fmt.Println(text)
				}
			}

			log.Info("翻译完成",
				zap.String("provider", result.Provider),
				zap.String("model", result.Model),
				zap.Bool("cache_hit", result.CacheHit),
				zap.Int("attempts", len(result.Attempts)),
				zap.Duration("duration", result.Duration))
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceLang, "source", "s", "en", "源语言")
	cmd.Flags().StringVarP(&targetLang, "target", "t", "zh", "目标语言")
	cmd.Flags().StringVar(&strategy, "strategy", "", "路由策略 (fast/balanced/quality/cost)")
	cmd.Flags().StringVar(&providerHint, "provider", "", "优先使用的提供商")
	cmd.Flags().BoolVar(&streamOutput, "stream", false, "流式输出翻译增量")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "跳过结果缓存")
	cmd.Flags().IntVar(&timeoutSecs, "timeout", 0, "单次请求超时（秒）")

	return cmd
}

// newProvidersCommand 列出配置的提供商
func newProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "列出配置的翻译提供商",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}

			fmt.Println("配置的翻译提供商:")
			for name, pc := range cfg.Providers {
				status := "disabled"
				if pc.Enabled {
					status = "enabled"
				}
				fmt.Printf("  - %s (type=%s, model=%s, tier=%s, weight=%.1f, %s)\n",
					name, pc.Type, pc.Model, pc.QualityTier, pc.Weight, status)
			}
			return nil
		},
	}
}

// newStatsCommand 展示用量与缓存统计
func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "展示用量与缓存统计",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, log, err := loadEngine()
			if err != nil {
				return err
			}
			defer func() {
				_ = log.Sync()
			}()

			visualizer := stats.NewVisualizer(os.Stdout)
			visualizer.RenderUsage(engine.Usage().Snapshot())
			if cache := engine.Cache(); cache != nil {
				visualizer.RenderCache(cache.Stats())
			}
			return nil
		},
	}
}

// newCalibrateCommand 探测提供商的实际限额
func newCalibrateCommand() *cobra.Command {
	var (
		probeProvider string
		probeMax      int
		probeStart    int
		perSecond     float64
		probeRequests bool
	)

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "探测提供商的实际Token或请求上限",
		RunE: func(cmd *cobra.Command, args []string) error {
			if probeProvider == "" {
				return fmt.Errorf("必须通过 --provider 指定要探测的提供商")
			}

			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			log := logger.NewLoggerWithOptions(cfg.LogLevel, cfg.LogFile, debugMode || cfg.Debug)
			defer func() {
				_ = log.Sync()
			}()

			factory := adapter.NewFactory(cfg, log)
			registry, err := factory.BuildRegistry()
			if err != nil {
				return err
			}
			probeAdapter, err := registry.Adapter(probeProvider)
			if err != nil {
				return err
			}

			bounds := dispatch.Bounds{Start: probeStart, Max: probeMax}
			ctx := cmd.Context()

			if probeRequests {
				ceiling, err := dispatch.ProbeRequestCeiling(ctx, probeAdapter, sourceLang, targetLang, perSecond, bounds)
				if err != nil {
					return err
				}
				fmt.Printf("提供商 %s 的请求上限: %d\n", probeProvider, ceiling)
				return nil
			}

			ceiling, err := dispatch.ProbeTokenCeiling(ctx, probeAdapter, sourceLang, targetLang, bounds)
			if err != nil {
				return err
			}
			fmt.Printf("提供商 %s 的载荷上限（字符）: %d\n", probeProvider, ceiling)
			return nil
		},
	}

	cmd.Flags().StringVar(&probeProvider, "provider", "", "要探测的提供商")
	cmd.Flags().IntVar(&probeStart, "start", 64, "探测起点")
	cmd.Flags().IntVar(&probeMax, "max", 65536, "探测上界")
	cmd.Flags().Float64Var(&perSecond, "rate", 1, "请求探测的每秒速率")
	cmd.Flags().BoolVar(&probeRequests, "requests", false, "探测请求上限而非载荷上限")
	cmd.Flags().StringVarP(&sourceLang, "source", "s", "en", "源语言")
	cmd.Flags().StringVarP(&targetLang, "target", "t", "zh", "目标语言")

	return cmd
}

// newConfigCommand 配置管理子命令
func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "配置管理",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "生成默认配置文件",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			if err := config.SaveConfig(config.NewDefaultConfig(), path); err != nil {
				return err
			}
			if path == "" {
				path = "~/.dispatcher.yaml"
			}
			fmt.Printf("默认配置已写入 %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "显示当前生效的配置",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}

			fmt.Printf("strategy: %s\n", cfg.Strategy)
			fmt.Printf("prefer_local: %v\n", cfg.PreferLocal)
			fmt.Printf("failover: %v\n", cfg.Failover)
			fmt.Printf("max_attempts: %d\n", cfg.MaxAttempts)
			fmt.Printf("use_cache: %v (max_entries=%d, ttl=%ds)\n",
				cfg.UseCache, cfg.CacheMaxEntries, cfg.CacheTTL)
			fmt.Printf("providers: %s\n", strings.Join(providerNames(cfg), ", "))
			return nil
		},
	})

	return cmd
}

func providerNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	return names
}
