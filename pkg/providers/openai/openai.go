package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Config OpenAI配置（官方SDK）
type Config struct {
	providers.BaseConfig

	// Model 默认模型
	Model string `json:"model"`

	// Temperature 采样温度
	Temperature float32 `json:"temperature"`

	// MaxTokens 单次补全的输出上限
	MaxTokens int `json:"max_tokens"`

	// OrgID 可选的组织ID
	OrgID string `json:"org_id,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseConfig:  providers.DefaultConfig(),
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   4096,
	}
}

// Adapter OpenAI适配器（官方SDK），支持流式与语言检测
type Adapter struct {
	config Config
	client openai.Client
}

var (
	_ providers.Adapter          = (*Adapter)(nil)
	_ providers.LanguageDetector = (*Adapter)(nil)
)

// New 创建新的OpenAI适配器
func New(config Config) *Adapter {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// 重试与退避由调度引擎统一负责，SDK内置重试关闭
		option.WithMaxRetries(0),
	}

	if config.APIEndpoint != "" {
		opts = append(opts, option.WithBaseURL(config.APIEndpoint))
	}
	if config.OrgID != "" {
		opts = append(opts, option.WithOrganization(config.OrgID))
	}
	for k, v := range config.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}

	return &Adapter{
		config: config,
		client: openai.NewClient(opts...),
	}
}

// Name 适配器名称
func (a *Adapter) Name() string {
	return "openai"
}

// HealthCheck 健康检查，仅校验凭证配置，不发起网络请求
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.config.APIKey == "" {
		return fmt.Errorf("openai api key not configured")
	}
	return nil
}

// Translate 执行翻译，逐元素调用聊天补全
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
		params := a.completionParams(model, text, req.SourceLanguage, req.TargetLanguage)

		var translated string
		var err error
		if req.Stream {
			translated, err = a.streamOne(ctx, params, req.OnChunk, resp)
		} else {
			translated, err = a.completeOne(ctx, params, resp)
		}
		if err != nil {
			return nil, a.classifyError(err)
		}
		resp.Texts = append(resp.Texts, translated)
	}

	return resp, nil
}

// completionParams 构造聊天补全参数
func (a *Adapter) completionParams(model, text, source, target string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a professional translator. Translate accurately while preserving the original meaning and tone. Only return the translated text."),
			openai.UserMessage(fmt.Sprintf("Translate the following text from %s to %s:\n\n%s",
				source, target, text)),
		},
		Model: openai.ChatModel(model),
	}

	if a.config.Temperature > 0 {
		params.Temperature = openai.Float(float64(a.config.Temperature))
	}
	if a.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(a.config.MaxTokens))
	}
	return params
}

// completeOne 非流式的单元素补全
func (a *Adapter) completeOne(ctx context.Context, params openai.ChatCompletionNewParams, resp *providers.Response) (string, error) {
	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}

	if len(completion.Choices) == 0 {
		return "", providers.NewInvalidResponseError(a.Name(), "no choices returned")
	}

	resp.TokensIn += int(completion.Usage.PromptTokens)
	resp.TokensOut += int(completion.Usage.CompletionTokens)
	return completion.Choices[0].Message.Content, nil
}

// streamOne 流式的单元素补全，逐增量回调
func (a *Adapter) streamOne(ctx context.Context, params openai.ChatCompletionNewParams, onChunk func(string), resp *providers.Response) (string, error) {
	stream := a.client.Chat.Completions.NewStreaming(ctx, params)

	var accumulated strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		accumulated.WriteString(delta)
		if onChunk != nil {
			onChunk(delta)
		}
	}

	if err := stream.Err(); err != nil {
		return "", err
	}
	return accumulated.String(), nil
}

// DetectLanguage 用模型检测文本语言，返回BCP 47代码
func (a *Adapter) DetectLanguage(ctx context.Context, text string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("Identify the language of the user's text. Respond with only the BCP 47 language code, e.g. \"en\" or \"zh-Hans\"."),
			openai.UserMessage(text),
		},
		Model: openai.ChatModel(a.config.Model),
	}
	params.MaxTokens = openai.Int(10)

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", a.classifyError(err)
	}
	if len(completion.Choices) == 0 {
		return "", providers.NewInvalidResponseError(a.Name(), "no choices returned")
	}

	return providers.NormalizeLang(strings.TrimSpace(completion.Choices[0].Message.Content)), nil
}

// classifyError 将SDK错误映射为统一的提供商错误
func (a *Adapter) classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apierr *openai.Error
	if errors.As(err, &apierr) {
		if apierr.Response != nil {
			return providers.ClassifyResponse(a.Name(), apierr.Response, apierr.Message)
		}
		return providers.ClassifyStatus(a.Name(), apierr.StatusCode, apierr.Message)
	}

	var provErr *providers.Error
	if errors.As(err, &provErr) {
		return err
	}

	return providers.NewNetworkError(a.Name(), err)
}
