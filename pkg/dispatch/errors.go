package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
)

// 预定义错误
var (
	// ErrEmptyRequest 空请求
	ErrEmptyRequest = errors.New("empty translation request")

	// ErrMissingLanguage 缺少语言参数
	ErrMissingLanguage = errors.New("source and target language required")

	// ErrNoCandidates 没有符合条件的提供商
	ErrNoCandidates = errors.New("no eligible provider for request")

	// ErrCancelled 调用方主动取消
	ErrCancelled = errors.New("translation cancelled")

	// ErrTimeout 全局超时
	ErrTimeout = errors.New("translation timed out")
)

// 错误种类常量
const (
	KindValidation      = "validation"
	KindRateLimit       = "rate_limit"
	KindAuth            = "auth"
	KindQuota           = "quota"
	KindNetwork         = "network"
	KindInvalidResponse = "invalid_response"
	KindTimeout         = "timeout"
	KindCancelled       = "cancelled"
	KindUnknown         = "unknown"
)

// ExhaustedError 所有候选提供商均告失败时的聚合错误，
// 携带每次尝试的记录供诊断。
type ExhaustedError struct {
	Attempts []Attempt
}

// Error 实现error接口
func (e *ExhaustedError) Error() string {
	var parts []string
	for _, a := range e.Attempts {
		detail := string(a.Status)
		if a.Err != nil {
			detail = a.Err.Error()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", a.Provider, detail))
	}
	return fmt.Sprintf("all providers exhausted after %d attempts: %s",
		len(e.Attempts), strings.Join(parts, "; "))
}

// failureClass 引擎内部的失败分类结果
type failureClass struct {
	kind       string
	retryable  bool
	fatal      bool // 终止整个请求，而不是只放弃当前提供商
	retryAfter time.Duration
}

// classifyFailure 统一的失败分类。适配器只通过 *providers.Error
// 附带信号，重试/切换决策全部集中在这里。
func classifyFailure(err error) failureClass {
	if err == nil {
		return failureClass{kind: KindUnknown}
	}

	// 调用方取消与全局超时是请求级终态，不算提供商故障
	if errors.Is(err, context.Canceled) {
		return failureClass{kind: KindCancelled, fatal: true}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failureClass{kind: KindTimeout, fatal: true}
	}

	var perr *providers.Error
	if errors.As(err, &perr) {
		switch perr.Code {
		case providers.ErrCodeAuth:
			return failureClass{kind: KindAuth}
		case providers.ErrCodeQuota:
			return failureClass{kind: KindQuota, retryable: true, retryAfter: perr.RetryAfter}
		case providers.ErrCodeServer:
			return failureClass{kind: KindNetwork, retryable: true, retryAfter: perr.RetryAfter}
		case providers.ErrCodeNetwork:
			return failureClass{kind: KindNetwork, retryable: true}
		case providers.ErrCodeInvalidResponse:
			return failureClass{kind: KindInvalidResponse}
		default:
			return failureClass{kind: KindValidation}
		}
	}

	if isTransientError(err) {
		return failureClass{kind: KindNetwork, retryable: true}
	}

	return failureClass{kind: KindUnknown}
}

// isTransientError 对未分类错误做瞬时性判断
func isTransientError(err error) bool {
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"eof",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
