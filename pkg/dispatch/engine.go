package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
	"go.uber.org/zap"
)

// Config 引擎配置
type Config struct {
	// Strategy 默认路由策略
	Strategy Strategy `json:"strategy"`

	// PreferLocal 偏好本地提供商
	PreferLocal bool `json:"prefer_local"`

	// Failover 限流等待超出预算时是否切换到下一个候选
	Failover bool `json:"failover"`

	// MaxAttempts 单个提供商上的最大调用次数（含可重试失败的重试）
	MaxAttempts int `json:"max_attempts"`

	// 退避配置
	BackoffInitial time.Duration `json:"backoff_initial"`
	BackoffMax     time.Duration `json:"backoff_max"`

	// DefaultTimeout 请求未指定时的全局超时
	DefaultTimeout time.Duration `json:"default_timeout"`

	// DefaultCacheTTL 提供商未配置TTL时的缓存TTL
	DefaultCacheTTL time.Duration `json:"default_cache_ttl"`
}

// DefaultConfig 返回默认引擎配置
func DefaultConfig() Config {
	return Config{
		Strategy:        StrategyBalanced,
		Failover:        true,
		MaxAttempts:     3,
		BackoffInitial:  time.Second,
		BackoffMax:      30 * time.Second,
		DefaultTimeout:  5 * time.Minute,
		DefaultCacheTTL: 24 * time.Hour,
	}
}

// Engine 调度引擎。每个请求走
// 缓存查找 → 路由排序 → 限流准入 → 适配器调用 → 失败分类 →
// 重试/切换 → 缓存写入 的状态机。
type Engine struct {
	registry *providers.Registry
	cache    *ResultCache
	limiter  *RateLimiter
	usage    *UsageStats
	logger   *zap.Logger
	cfg      Config
}

// New 创建调度引擎。限流配置从注册表的描述中装载。
func New(registry *providers.Registry, cfg Config, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("registry is nil")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = DefaultConfig().BackoffInitial
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultConfig().BackoffMax
	}

	options := engineOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.cache == nil && !options.disableCache {
		options.cache = NewResultCache(10000, 5*time.Minute)
	}
	if options.limiter == nil {
		options.limiter = NewRateLimiter()
	}
	if options.usage == nil {
		options.usage = NewUsageStats()
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}

	e := &Engine{
		registry: registry,
		cache:    options.cache,
		limiter:  options.limiter,
		usage:    options.usage,
		logger:   options.logger,
		cfg:      cfg,
	}
	e.RefreshLimits()
	return e, nil
}

// RefreshLimits 从注册表重新装载限流配置（配置刷新后调用）
func (e *Engine) RefreshLimits() {
	for _, id := range e.registry.List() {
		if desc, err := e.registry.Get(id); err == nil {
			e.limiter.SetLimit(id, desc.Throttle)
		}
	}
}

// Cache 暴露结果缓存（stats命令用）
func (e *Engine) Cache() *ResultCache {
	return e.cache
}

// Usage 暴露用量统计
func (e *Engine) Usage() *UsageStats {
	return e.usage
}

// Translate 解析一次翻译请求。所有单提供商错误在内部分类消化，
// 只有聚合错误、全局超时或取消会返回给调用方。
func (e *Engine) Translate(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log := e.logger.With(
		zap.String("dispatch_id", uuid.New().String()),
		zap.String("source", req.SourceLang),
		zap.String("target", req.TargetLang),
	)

	// 缓存查找。全部命中时直接返回，不接触任何提供商，也不动限流计数。
	keys := make([]string, len(req.Texts))
	cached := make([]string, len(req.Texts))
	allHit := e.cache != nil
	hitProvider := ""
	for i, text := range req.Texts {
		keys[i] = CacheKey(text, req.SourceLang, req.TargetLang)
		if e.cache == nil {
			continue
		}
		entry, ok := e.cache.Get(keys[i])
		if !ok {
			allHit = false
			continue
		}
		cached[i] = entry.TranslatedText
		hitProvider = entry.Provider
	}
	if allHit {
		log.Debug("缓存命中", zap.Int("texts", len(req.Texts)))
		if req.Streaming && req.OnChunk != nil {
			for _, text := range cached {
				req.OnChunk(Chunk{Phase: "chunk", Text: text})
			}
		}
		return &Result{
			Texts:    cached,
			Provider: hitProvider,
			CacheHit: true,
			Duration: time.Since(start),
		}, nil
	}

	order, err := e.selectCandidates(req)
	if err != nil {
		return nil, err
	}
	log.Debug("候选提供商排序完成", zap.Strings("order", order))

	estimated := EstimateTokens(req.Texts)
	var attempts []Attempt

	for _, pid := range order {
		if ctx.Err() != nil {
			return nil, terminalError(ctx.Err())
		}
		if !e.registry.IsAvailable(ctx, pid) {
			log.Debug("提供商不可用，跳过", zap.String("provider", pid))
			continue
		}

		desc, err := e.registry.Get(pid)
		if err != nil {
			continue
		}
		adapter, err := e.registry.Adapter(pid)
		if err != nil {
			continue
		}

		resp, terminal, tryErr := e.tryProvider(ctx, &desc, adapter, req, estimated, &attempts, log)
		if tryErr == nil && resp != nil {
			if e.cache != nil {
				ttl := desc.CacheTTL
				if ttl <= 0 {
					ttl = e.cfg.DefaultCacheTTL
				}
				for i, key := range keys {
					e.cache.Set(key, resp.Texts[i], pid, ttl)
				}
			}
			return &Result{
				Texts:    resp.Texts,
				Provider: pid,
				Model:    resp.Model,
				Attempts: attempts,
				Duration: time.Since(start),
			}, nil
		}
		if terminal {
			// 取消或全局超时：放弃剩余候选
			return nil, terminalError(tryErr)
		}

		log.Warn("提供商失败，切换下一个候选",
			zap.String("provider", pid),
			zap.Error(tryErr))
	}

	return nil, &ExhaustedError{Attempts: attempts}
}

// selectCandidates 过滤并排序候选提供商，提示的提供商提到队首。
func (e *Engine) selectCandidates(req *Request) ([]string, error) {
	var required []providers.Capability
	if req.Streaming {
		required = append(required, providers.CapabilityStreaming)
	}
	if len(req.Texts) > 1 {
		required = append(required, providers.CapabilityBatch)
	}

	ids := e.registry.Candidates(req.SourceLang, req.TargetLang, required...)
	if len(ids) == 0 {
		return nil, ErrNoCandidates
	}

	descs := make([]providers.Descriptor, 0, len(ids))
	for _, id := range ids {
		if desc, err := e.registry.Get(id); err == nil {
			descs = append(descs, desc)
		}
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = e.cfg.Strategy
	}

	order := Route(descs, RouteOptions{
		Strategy:    strategy,
		PreferLocal: e.cfg.PreferLocal,
	}, e.usage.RequestCounts())

	if req.ProviderHint != "" {
		order = promoteHint(order, req.ProviderHint)
	}
	return order, nil
}

// promoteHint 把提示的提供商移到队首，其余保持原有顺序
func promoteHint(order []string, hint string) []string {
	for i, id := range order {
		if id == hint {
			out := make([]string, 0, len(order))
			out = append(out, hint)
			out = append(out, order[:i]...)
			out = append(out, order[i+1:]...)
			return out
		}
	}
	return order
}

// tryProvider 在单个提供商上完成准入、调用、分类与重试。
// 返回的 terminal 为 true 表示请求级终态（取消/全局超时），
// 调用方必须放弃剩余候选。
func (e *Engine) tryProvider(
	ctx context.Context,
	desc *providers.Descriptor,
	adapter providers.Adapter,
	req *Request,
	estimatedTokens int,
	attempts *[]Attempt,
	log *zap.Logger,
) (*providers.Response, bool, error) {
	model := desc.Model
	triedSecondary := false

	for attempt := 0; attempt < e.cfg.MaxAttempts; {
		adm := e.limiter.Acquire(desc.ID, estimatedTokens)
		if !adm.Allowed {
			remaining := remainingBudget(ctx)
			if e.cfg.Failover && adm.RetryAfter > remaining {
				// 等不起，换下一个候选
				*attempts = append(*attempts, Attempt{
					Provider:   desc.ID,
					StartedAt:  time.Now(),
					Status:     AttemptRetryableFail,
					Err:        ErrRateLimited(desc.ID, adm.RetryAfter),
					RetryAfter: adm.RetryAfter,
				})
				return nil, false, ErrRateLimited(desc.ID, adm.RetryAfter)
			}
			log.Debug("限流等待",
				zap.String("provider", desc.ID),
				zap.Duration("retry_after", adm.RetryAfter))
			if !sleepContext(ctx, adm.RetryAfter) {
				return nil, true, ctx.Err()
			}
			continue
		}

		started := time.Now()
		resp, err := e.callAdapter(ctx, adapter, req, model)
		latency := time.Since(started)

		if err == nil {
			if len(resp.Texts) != len(req.Texts) {
				err = providers.NewInvalidResponseError(desc.ID, "response text count mismatch")
			}
		}

		if err == nil {
			e.usage.Record(desc.ID, AttemptResult{
				Success:   true,
				Latency:   latency,
				TokensIn:  resp.TokensIn,
				TokensOut: resp.TokensOut,
				IsRetry:   attempt > 0,
			})
			*attempts = append(*attempts, Attempt{
				Provider:  desc.ID,
				Model:     model,
				StartedAt: started,
				Duration:  latency,
				Status:    AttemptSuccess,
			})
			return resp, false, nil
		}

		fc := classifyFailure(err)

		// 取消不是提供商故障，不记入用量
		if fc.kind != KindCancelled {
			e.usage.Record(desc.ID, AttemptResult{
				Latency:   latency,
				ErrorKind: fc.kind,
				IsRetry:   attempt > 0,
			})
		}

		status := AttemptFatalFail
		if fc.retryable {
			status = AttemptRetryableFail
		}
		*attempts = append(*attempts, Attempt{
			Provider:   desc.ID,
			Model:      model,
			StartedAt:  started,
			Duration:   latency,
			Status:     status,
			Err:        err,
			RetryAfter: fc.retryAfter,
		})

		if fc.fatal {
			return nil, true, err
		}
		if !fc.retryable {
			return nil, false, err
		}

		attempt++

		// 配额类失败优先在同一提供商上切换一次备用模型，
		// 之后才轮到下一个候选
		if fc.kind == KindQuota && desc.SecondaryModel != "" && !triedSecondary {
			triedSecondary = true
			model = desc.SecondaryModel
			log.Info("切换备用模型重试",
				zap.String("provider", desc.ID),
				zap.String("model", model))
			continue
		}

		if attempt >= e.cfg.MaxAttempts {
			return nil, false, err
		}

		wait := fc.retryAfter
		if wait <= 0 {
			wait = e.backoff(attempt)
		}
		log.Debug("退避后重试",
			zap.String("provider", desc.ID),
			zap.Duration("wait", wait),
			zap.Int("attempt", attempt))
		if !sleepContext(ctx, wait) {
			return nil, true, ctx.Err()
		}
	}

	return nil, false, errors.New("attempts exhausted")
}

// callAdapter 调用适配器，流式请求把增量原样转发给调用方
func (e *Engine) callAdapter(ctx context.Context, adapter providers.Adapter, req *Request, model string) (*providers.Response, error) {
	preq := &providers.Request{
		Texts:          req.Texts,
		SourceLanguage: req.SourceLang,
		TargetLanguage: req.TargetLang,
		Model:          model,
		Stream:         req.Streaming,
	}
	if req.Streaming && req.OnChunk != nil {
		onChunk := req.OnChunk
		preq.OnChunk = func(text string) {
			onChunk(Chunk{Phase: "chunk", Text: text})
		}
	}
	return adapter.Translate(ctx, preq)
}

// backoff 指数退避，封顶BackoffMax
func (e *Engine) backoff(attempt int) time.Duration {
	wait := e.cfg.BackoffInitial
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= e.cfg.BackoffMax {
			return e.cfg.BackoffMax
		}
	}
	if wait > e.cfg.BackoffMax {
		wait = e.cfg.BackoffMax
	}
	return wait
}

// rateLimitError 本地限流拒绝
type rateLimitError struct {
	provider   string
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return e.provider + ": local rate limit exceeded"
}

// ErrRateLimited 创建本地限流错误
func ErrRateLimited(provider string, retryAfter time.Duration) error {
	return &rateLimitError{provider: provider, retryAfter: retryAfter}
}

// validateRequest 请求校验。格式错误属于致命错误，不进入重试。
func validateRequest(req *Request) error {
	if req == nil || len(req.Texts) == 0 {
		return ErrEmptyRequest
	}
	for _, text := range req.Texts {
		if text == "" {
			return ErrEmptyRequest
		}
	}
	if req.SourceLang == "" || req.TargetLang == "" {
		return ErrMissingLanguage
	}
	return nil
}

// terminalError 把上下文错误映射为请求级终态错误
func terminalError(err error) error {
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// remainingBudget 上下文剩余时间预算
func remainingBudget(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return time.Duration(1<<62 - 1)
	}
	return time.Until(deadline)
}

// sleepContext 可中断的等待，返回false表示上下文已结束
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
