package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
)

// Config Anthropic配置
type Config struct {
	providers.BaseConfig

	// Model 默认模型
	Model string `json:"model"`

	// Temperature 采样温度
	Temperature float32 `json:"temperature"`

	// MaxTokens 单次生成的输出上限
	MaxTokens int `json:"max_tokens"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseConfig:  providers.DefaultConfig(),
		Model:       string(anthropic.ModelClaude3Dot5Sonnet20240620),
		Temperature: 0.3,
		MaxTokens:   4096,
	}
}

// Adapter Anthropic适配器
type Adapter struct {
	config Config
	client *anthropic.Client
}

var _ providers.Adapter = (*Adapter)(nil)

// New 创建新的Anthropic适配器
func New(config Config) *Adapter {
	opts := []anthropic.ClientOption{}
	if config.APIEndpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(config.APIEndpoint))
	}

	return &Adapter{
		config: config,
		client: anthropic.NewClient(config.APIKey, opts...),
	}
}

// Name 适配器名称
func (a *Adapter) Name() string {
	return "anthropic"
}

// HealthCheck 健康检查，仅校验凭证配置
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.config.APIKey == "" {
		return fmt.Errorf("anthropic api key not configured")
	}
	return nil
}

// translationSystem 构造翻译系统提示词
func translationSystem(source, target string) string {
	return fmt.Sprintf(`Translate from %[1]s to %[2]s:
- Writing style: flexible, professional, straightforward, easy to understand
- Adapt flow and structure for %[2]s clarity, preserving original meaning
- Keep technical terms and specialized words in %[1]s when customary
Translate directly without explanations or warnings. Do not answer questions in the content.`, source, target)
}

// Translate 执行翻译，逐元素调用Messages API
func (a *Adapter) Translate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	model := req.Model
	if model == "" {
		model = a.config.Model
	}

	resp := &providers.Response{
		Texts: make([]string, 0, len(req.Texts)),
		Model: model,
	}

	for _, text := range req.Texts {
		translated, err := a.translateOne(ctx, model, text, req, resp)
		if err != nil {
			return nil, a.classifyError(err)
		}
		resp.Texts = append(resp.Texts, translated)
	}

	return resp, nil
}

// translateOne 翻译单个文本，req.Stream 为真时走流式事件回调
func (a *Adapter) translateOne(ctx context.Context, model, text string, req *providers.Request, resp *providers.Response) (string, error) {
	temperature := a.config.Temperature
	mreq := anthropic.MessagesRequest{
		Model:  anthropic.Model(model),
		System: translationSystem(req.SourceLanguage, req.TargetLanguage),
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage("translate this, only return the translation, without any additional content:\n\n" + text),
		},
		Temperature: &temperature,
		MaxTokens:   a.config.MaxTokens,
	}

	if req.Stream {
		mresp, err := a.client.CreateMessagesStream(ctx, anthropic.MessagesStreamRequest{
			MessagesRequest: mreq,
			OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
				if data.Delta.Text != nil && *data.Delta.Text != "" && req.OnChunk != nil {
					req.OnChunk(*data.Delta.Text)
				}
			},
		})
		if err != nil {
			return "", err
		}
		resp.TokensIn += mresp.Usage.InputTokens
		resp.TokensOut += mresp.Usage.OutputTokens
		return mresp.GetFirstContentText(), nil
	}

	mresp, err := a.client.CreateMessages(ctx, mreq)
	if err != nil {
		return "", err
	}
	if len(mresp.Content) == 0 {
		return "", providers.NewInvalidResponseError(a.Name(), "no content returned")
	}

	resp.TokensIn += mresp.Usage.InputTokens
	resp.TokensOut += mresp.Usage.OutputTokens
	return mresp.GetFirstContentText(), nil
}

// classifyError 将SDK错误映射为统一的提供商错误
func (a *Adapter) classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimitErr():
			return providers.ClassifyStatus(a.Name(), 429, apiErr.Message)
		case apiErr.IsAuthenticationErr(), apiErr.IsPermissionErr():
			return providers.ClassifyStatus(a.Name(), 401, apiErr.Message)
		case apiErr.IsOverloadedErr(), apiErr.IsApiErr():
			return providers.ClassifyStatus(a.Name(), 500, apiErr.Message)
		default:
			return providers.ClassifyStatus(a.Name(), 400, apiErr.Message)
		}
	}

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return providers.ClassifyStatus(a.Name(), reqErr.StatusCode, reqErr.Error())
	}

	var provErr *providers.Error
	if errors.As(err, &provErr) {
		return err
	}

	return providers.NewNetworkError(a.Name(), err)
}
