package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
	goopenai "github.com/sashabaranov/go-openai"
)

// Config OpenAI兼容端点配置（vLLM、LM Studio、各类中转等）
type Config struct {
	providers.BaseConfig

	// Name 端点标识，用于日志与错误归属
	Name string `json:"name"`

	// Model 默认模型
	Model string `json:"model"`

	// Temperature 采样温度
	Temperature float32 `json:"temperature"`

	// MaxTokens 单次补全的输出上限
	MaxTokens int `json:"max_tokens"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseConfig:  providers.DefaultConfig(),
		Name:        "openai-compatible",
		Temperature: 0.3,
		MaxTokens:   4096,
	}
}

// Adapter OpenAI兼容端点适配器
type Adapter struct {
	config Config
	client *goopenai.Client
}

var (
	_ providers.Adapter     = (*Adapter)(nil)
	_ providers.ModelLister = (*Adapter)(nil)
)

// New 创建新的兼容端点适配器
func New(config Config) (*Adapter, error) {
	if config.APIEndpoint == "" {
		return nil, fmt.Errorf("openai-compatible endpoint not configured")
	}
	if config.Name == "" {
		config.Name = "openai-compatible"
	}

	clientConfig := goopenai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(config.APIEndpoint, "/")
	if config.Timeout > 0 || config.ProxyURL != "" {
		httpClient, err := providers.NewHTTPClient(config.Timeout, config.ProxyURL)
		if err != nil {
			return nil, err
		}
		clientConfig.HTTPClient = httpClient
	}

	return &Adapter{
		config: config,
		client: goopenai.NewClientWithConfig(clientConfig),
	}, nil
}

// Name 适配器名称
func (a *Adapter) Name() string {
	return a.config.Name
}

// HealthCheck 健康检查，仅校验端点配置
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.config.APIEndpoint == "" {
		return fmt.Errorf("%s endpoint not configured", a.config.Name)
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
		chatReq := a.chatRequest(model, text, req.SourceLanguage, req.TargetLanguage)

		var translated string
		var err error
		if req.Stream {
			translated, err = a.streamOne(ctx, chatReq, req.OnChunk)
		} else {
			translated, err = a.completeOne(ctx, chatReq, resp)
		}
		if err != nil {
			return nil, a.classifyError(err)
		}
		resp.Texts = append(resp.Texts, translated)
	}

	return resp, nil
}

// chatRequest 构造聊天补全请求
func (a *Adapter) chatRequest(model, text, source, target string) goopenai.ChatCompletionRequest {
	return goopenai.ChatCompletionRequest{
		Model: model,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:    goopenai.ChatMessageRoleSystem,
				Content: "You are a professional translator. Translate accurately while preserving the original meaning and tone. Only return the translated text.",
			},
			{
				Role: goopenai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Translate the following text from %s to %s:\n\n%s",
					source, target, text),
			},
		},
		Temperature: a.config.Temperature,
		MaxTokens:   a.config.MaxTokens,
	}
}

// completeOne 非流式的单元素补全
func (a *Adapter) completeOne(ctx context.Context, chatReq goopenai.ChatCompletionRequest, resp *providers.Response) (string, error) {
	completion, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", err
	}

	if len(completion.Choices) == 0 {
		return "", providers.NewInvalidResponseError(a.Name(), "no choices returned")
	}

	resp.TokensIn += completion.Usage.PromptTokens
	resp.TokensOut += completion.Usage.CompletionTokens
	return completion.Choices[0].Message.Content, nil
}

// streamOne 流式的单元素补全，逐增量回调
func (a *Adapter) streamOne(ctx context.Context, chatReq goopenai.ChatCompletionRequest, onChunk func(string)) (string, error) {
	chatReq.Stream = true

	stream, err := a.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var accumulated strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
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

	return accumulated.String(), nil
}

// ListModels 查询端点暴露的模型列表
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	models, err := a.client.ListModels(ctx)
	if err != nil {
		return nil, a.classifyError(err)
	}

	names := make([]string, 0, len(models.Models))
	for _, m := range models.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

// classifyError 将SDK错误映射为统一的提供商错误
func (a *Adapter) classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return providers.ClassifyStatus(a.Name(), apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return providers.ClassifyStatus(a.Name(), reqErr.HTTPStatusCode, reqErr.Error())
	}

	var provErr *providers.Error
	if errors.As(err, &provErr) {
		return err
	}

	return providers.NewNetworkError(a.Name(), err)
}
