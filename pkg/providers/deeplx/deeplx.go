package deeplx

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

// Config DeepLX配置
type Config struct {
	providers.BaseConfig

	// AccessToken 可选的访问令牌
	AccessToken string `json:"access_token,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	config := Config{
		BaseConfig: providers.DefaultConfig(),
	}
	config.APIEndpoint = "http://localhost:1188/translate"
	return config
}

// Adapter DeepLX适配器
type Adapter struct {
	config     Config
	httpClient *http.Client
}

var _ providers.Adapter = (*Adapter)(nil)

// New 创建新的DeepLX适配器
func New(config Config) (*Adapter, error) {
	if config.APIEndpoint == "" {
		config.APIEndpoint = "http://localhost:1188/translate"
	}

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
	return "deeplx"
}

// HealthCheck 健康检查
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.config.APIEndpoint == "" {
		return fmt.Errorf("deeplx endpoint not configured")
	}
	return nil
}

// translateRequest DeepLX请求体
type translateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

// translateResponse DeepLX响应体
type translateResponse struct {
	Code       int    `json:"code"`
	Message    string `json:"message,omitempty"`
	Data       string `json:"data"`
	SourceLang string `json:"source_lang,omitempty"`
}

// Translate 执行翻译。DeepLX不支持流式，逐元素请求。
func (a *Adapter) Translate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	out := make([]string, 0, len(req.Texts))
	for _, text := range req.Texts {
		translated, err := a.translateOne(ctx, text, req.SourceLanguage, req.TargetLanguage)
		if err != nil {
			return nil, err
		}
		out = append(out, translated)
	}

	return &providers.Response{
		Texts: out,
		Model: "deeplx",
	}, nil
}

// translateOne 翻译单个文本
func (a *Adapter) translateOne(ctx context.Context, text, source, target string) (string, error) {
	body, err := json.Marshal(translateRequest{
		Text:       text,
		SourceLang: deeplLangCode(source),
		TargetLang: deeplLangCode(target),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.APIEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if a.config.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.config.AccessToken)
	}
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", providers.NewNetworkError(a.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", providers.NewNetworkError(a.Name(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", providers.ClassifyResponse(a.Name(), resp, strings.TrimSpace(string(respBody)))
	}

	var translateResp translateResponse
	if err := json.Unmarshal(respBody, &translateResp); err != nil {
		return "", providers.NewInvalidResponseError(a.Name(), "failed to decode response: "+err.Error())
	}

	// 业务层错误码与HTTP状态码同形
	if translateResp.Code != 200 {
		return "", providers.ClassifyStatus(a.Name(), translateResp.Code, translateResp.Message)
	}

	return translateResp.Data, nil
}

// deeplLangCode DeepL系服务使用大写语言代码
func deeplLangCode(code string) string {
	normalized := providers.NormalizeLang(code)
	// 只取主语言子标签
	if idx := strings.IndexByte(normalized, '-'); idx > 0 {
		normalized = normalized[:idx]
	}
	return strings.ToUpper(normalized)
}
