package providers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// 错误代码常量
const (
	ErrCodeAuth            = "auth"
	ErrCodeQuota           = "quota"
	ErrCodeServer          = "server"
	ErrCodeNetwork         = "network"
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeInvalidResponse = "invalid_response"
)

// DefaultRetryAfter 429响应未携带Retry-After头时使用的默认等待时间。
// 统一为60秒，不再按适配器各自取值。
const DefaultRetryAfter = 60 * time.Second

// Error 适配器错误，携带统一的分类与重试信号。
// 调度引擎只依赖这里的字段做重试/切换决策，适配器不各自实现退避。
type Error struct {
	// Provider 出错的提供商
	Provider string `json:"provider"`

	// Status HTTP状态码（非HTTP错误为0）
	Status int `json:"status,omitempty"`

	// Code 错误代码
	Code string `json:"code"`

	// Message 错误消息
	Message string `json:"message"`

	// Retryable 同一提供商是否可重试
	Retryable bool `json:"retryable"`

	// RetryAfter 建议的重试等待时间（0表示由调用方决定）
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Cause 原因
	Cause error `json:"-"`
}

// Error 实现error接口
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: [%s] %s (HTTP %d)", e.Provider, e.Code, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: [%s] %s", e.Provider, e.Code, e.Message)
}

// Unwrap 返回原因错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewNetworkError 创建网络瞬时错误（可重试）
func NewNetworkError(provider string, cause error) *Error {
	return &Error{
		Provider:  provider,
		Code:      ErrCodeNetwork,
		Message:   cause.Error(),
		Retryable: true,
		Cause:     cause,
	}
}

// NewInvalidResponseError 创建响应格式错误（不可重试，集成本身已坏）
func NewInvalidResponseError(provider, message string) *Error {
	return &Error{
		Provider: provider,
		Code:     ErrCodeInvalidResponse,
		Message:  message,
	}
}

// ClassifyStatus 共享的HTTP状态分类器。
// 401/403 为认证失败（该提供商不再重试）；408/429 为配额类可重试；
// 5xx 为服务端可重试；其余4xx 为请求错误。
func ClassifyStatus(provider string, status int, message string) *Error {
	e := &Error{
		Provider: provider,
		Status:   status,
		Message:  message,
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = ErrCodeAuth
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		e.Code = ErrCodeQuota
		e.Retryable = true
		e.RetryAfter = DefaultRetryAfter
	case status >= 500:
		e.Code = ErrCodeServer
		e.Retryable = true
	default:
		e.Code = ErrCodeInvalidRequest
	}

	return e
}

// ClassifyResponse 基于HTTP响应生成分类错误，解析Retry-After头。
func ClassifyResponse(provider string, resp *http.Response, message string) *Error {
	e := ClassifyStatus(provider, resp.StatusCode, message)

	if wait := parseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
		e.RetryAfter = wait
	}
	return e
}

// parseRetryAfter 解析Retry-After头，支持秒数和HTTP日期两种格式。
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}

	return 0
}
