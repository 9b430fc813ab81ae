package providers

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status     int
		wantCode   string
		retryable  bool
		retryAfter time.Duration
	}{
		{401, ErrCodeAuth, false, 0},
		{403, ErrCodeAuth, false, 0},
		{408, ErrCodeQuota, true, DefaultRetryAfter},
		{429, ErrCodeQuota, true, DefaultRetryAfter},
		{500, ErrCodeServer, true, 0},
		{502, ErrCodeServer, true, 0},
		{503, ErrCodeServer, true, 0},
		{400, ErrCodeInvalidRequest, false, 0},
		{404, ErrCodeInvalidRequest, false, 0},
		{422, ErrCodeInvalidRequest, false, 0},
	}

	for _, tt := range tests {
		e := ClassifyStatus("p", tt.status, "boom")
		assert.Equal(t, tt.wantCode, e.Code, "status %d", tt.status)
		assert.Equal(t, tt.retryable, e.Retryable, "status %d", tt.status)
		assert.Equal(t, tt.retryAfter, e.RetryAfter, "status %d", tt.status)
		assert.Equal(t, tt.status, e.Status)
	}
}

func TestClassifyResponseRetryAfterSeconds(t *testing.T) {
	resp := &http.Response{
		StatusCode: 429,
		Header:     http.Header{"Retry-After": []string{"120"}},
	}

	e := ClassifyResponse("p", resp, "rate limited")
	assert.Equal(t, ErrCodeQuota, e.Code)
	assert.True(t, e.Retryable)
	assert.Equal(t, 120*time.Second, e.RetryAfter)
}

func TestClassifyResponseRetryAfterHTTPDate(t *testing.T) {
	at := time.Now().Add(90 * time.Second).UTC()
	resp := &http.Response{
		StatusCode: 429,
		Header:     http.Header{"Retry-After": []string{at.Format(http.TimeFormat)}},
	}

	e := ClassifyResponse("p", resp, "rate limited")
	assert.Greater(t, e.RetryAfter, 60*time.Second)
	assert.LessOrEqual(t, e.RetryAfter, 90*time.Second)
}

func TestClassifyResponseMissingRetryAfterUsesDefault(t *testing.T) {
	resp := &http.Response{StatusCode: 429, Header: http.Header{}}

	e := ClassifyResponse("p", resp, "rate limited")
	assert.Equal(t, DefaultRetryAfter, e.RetryAfter)
}

func TestClassifyResponseMalformedRetryAfter(t *testing.T) {
	resp := &http.Response{
		StatusCode: 429,
		Header:     http.Header{"Retry-After": []string{"not-a-number"}},
	}

	// 解析失败时保持默认值
	e := ClassifyResponse("p", resp, "rate limited")
	assert.Equal(t, DefaultRetryAfter, e.RetryAfter)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-5"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(past))
}

func TestErrorFormatAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := NewNetworkError("ollama", cause)

	assert.Equal(t, ErrCodeNetwork, e.Code)
	assert.True(t, e.Retryable)
	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "ollama")
	assert.Contains(t, e.Error(), "connection refused")

	withStatus := ClassifyStatus("openai", 503, "overloaded")
	assert.Contains(t, withStatus.Error(), "HTTP 503")
}

func TestNewInvalidResponseError(t *testing.T) {
	e := NewInvalidResponseError("deeplx", "empty body")
	require.Equal(t, ErrCodeInvalidResponse, e.Code)
	assert.False(t, e.Retryable, "broken integration must not be retried")
}
