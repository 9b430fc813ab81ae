package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
)

// Config Ollama配置
type Config struct {
	providers.BaseConfig

	// Model 默认模型
	Model string `json:"model"`

	// Temperature 采样温度
	Temperature float64 `json:"temperature"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	config := Config{
		BaseConfig:  providers.DefaultConfig(),
		Model:       "llama3.2",
		Temperature: 0.3,
	}
	config.APIEndpoint = "http://localhost:11434"
	return config
}

// Adapter Ollama适配器，本地推理服务
type Adapter struct {
	config     Config
	httpClient *http.Client
}

var (
	_ providers.Adapter     = (*Adapter)(nil)
	_ providers.ModelLister = (*Adapter)(nil)
)

// New 创建新的Ollama适配器
func New(config Config) (*Adapter, error) {
	if config.APIEndpoint == "" {
		config.APIEndpoint = "http://localhost:11434"
	}
	config.APIEndpoint = strings.TrimSuffix(config.APIEndpoint, "/")

	client, err := providers.NewHTTPClient(config.Timeout, config.ProxyURL)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		config:     config,
		httpClient: client,
	}, nil
}

// Name 适配器名称
func (a *Adapter) Name() string {
	return "ollama"
}

// HealthCheck 检查本地服务是否可达
func (a *Adapter) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.config.APIEndpoint+"/api/version", nil)
	if err != nil {
		return err
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return providers.NewNetworkError(a.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateRequest /api/generate 请求体
type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// generateResponse /api/generate 响应体（流式时每行一条）
type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Translate 执行翻译，逐元素请求Ollama
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
		translated, tokensIn, tokensOut, err := a.generate(ctx, model, text, req)
		if err != nil {
			return nil, err
		}
		resp.Texts = append(resp.Texts, translated)
		resp.TokensIn += tokensIn
		resp.TokensOut += tokensOut
	}

	return resp, nil
}

// generate 单个文本的生成请求，req.Stream 为真时走NDJSON流式解码
func (a *Adapter) generate(ctx context.Context, model, text string, req *providers.Request) (string, int, int, error) {
	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: text,
		System: translationSystemPrompt(req.SourceLanguage, req.TargetLanguage),
		Stream: req.Stream,
		Options: map[string]interface{}{
			"temperature": a.config.Temperature,
		},
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.APIEndpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, 0, ctx.Err()
		}
		return "", 0, 0, providers.NewNetworkError(a.Name(), err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(httpResp.Body)
		return "", 0, 0, providers.ClassifyResponse(a.Name(), httpResp, strings.TrimSpace(string(respBody)))
	}

	if req.Stream {
		return a.decodeStream(ctx, httpResp.Body, req.OnChunk)
	}

	var genResp generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&genResp); err != nil {
		return "", 0, 0, providers.NewInvalidResponseError(a.Name(), "failed to decode response: "+err.Error())
	}
	if genResp.Error != "" {
		return "", 0, 0, providers.NewInvalidResponseError(a.Name(), genResp.Error)
	}

	return genResp.Response, genResp.PromptEvalCount, genResp.EvalCount, nil
}

// decodeStream 解码NDJSON流，最后一条帧携带token统计
func (a *Adapter) decodeStream(ctx context.Context, r io.Reader, onChunk func(string)) (string, int, int, error) {
	var tokensIn, tokensOut int

	extract := func(payload []byte) (string, bool, error) {
		var frame generateResponse
		if err := json.Unmarshal(payload, &frame); err != nil {
			return "", false, providers.NewInvalidResponseError(a.Name(), "malformed stream frame: "+err.Error())
		}
		if frame.Error != "" {
			return "", false, providers.NewInvalidResponseError(a.Name(), frame.Error)
		}
		if frame.Done {
			tokensIn = frame.PromptEvalCount
			tokensOut = frame.EvalCount
		}
		return frame.Response, frame.Done, nil
	}

	full, err := providers.DecodeStream(ctx, r, providers.FramingNDJSON, extract, onChunk)
	if err != nil {
		return "", 0, 0, err
	}
	return full, tokensIn, tokensOut, nil
}

// listTagsResponse /api/tags 响应体
type listTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels 列出本地已拉取的模型
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.config.APIEndpoint+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewNetworkError(a.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, providers.ClassifyResponse(a.Name(), resp, strings.TrimSpace(string(respBody)))
	}

	var tags listTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, providers.NewInvalidResponseError(a.Name(), "failed to decode tags: "+err.Error())
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// translationSystemPrompt 构造翻译系统提示词
func translationSystemPrompt(source, target string) string {
	return fmt.Sprintf("You are a professional translator. Translate the following text from %s to %s. "+
		"Only return the translated text, without any explanation or additional content.",
		source, target)
}
