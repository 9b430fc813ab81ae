package raw

import (
	"context"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
)

// Adapter 原样透传适配器，不做任何翻译。
// 用于调试调度链路，以及源语言与目标语言相同的退化场景。
type Adapter struct{}

var _ providers.Adapter = (*Adapter)(nil)

// New 创建透传适配器
func New() *Adapter {
	return &Adapter{}
}

// Name 适配器名称
func (a *Adapter) Name() string {
	return "raw"
}

// HealthCheck 恒为健康
func (a *Adapter) HealthCheck(ctx context.Context) error {
	return nil
}

// Translate 原样返回输入文本
func (a *Adapter) Translate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	out := make([]string, len(req.Texts))
	copy(out, req.Texts)

	if req.Stream && req.OnChunk != nil {
		for _, text := range out {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			req.OnChunk(text)
		}
	}

	return &providers.Response{
		Texts: out,
		Model: "raw",
	}, nil
}
