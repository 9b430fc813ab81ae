package stats

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/dispatch"
)

// Visualizer 将用量与缓存统计渲染为带颜色的终端输出
type Visualizer struct {
	out io.Writer
}

// NewVisualizer 创建渲染器
func NewVisualizer(out io.Writer) *Visualizer {
	return &Visualizer{out: out}
}

// RenderUsage 渲染各提供商的用量统计
func (v *Visualizer) RenderUsage(snapshot map[string]dispatch.ProviderUsage) {
	title := color.New(color.FgCyan, color.Bold)
	_, _ = title.Fprintln(v.out, "\n═══ 提供商用量统计 ═══")

	if len(snapshot) == 0 {
		fmt.Fprintln(v.out, "  （暂无请求记录）")
		return
	}

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	labelColor := color.New(color.FgCyan)
	valueColor := color.New(color.FgWhite, color.Bold)
	errorColor := color.New(color.FgRed)

	for _, name := range names {
		usage := snapshot[name]

		section := color.New(color.FgYellow, color.Bold)
		_, _ = section.Fprintf(v.out, "\n▶ %s\n", name)

		v.renderLine(labelColor, valueColor, "请求总数", fmt.Sprintf("%d", usage.TotalRequests))
		v.renderLine(labelColor, valueColor, "成功", fmt.Sprintf("%d", usage.SuccessfulRequests))
		v.renderLine(labelColor, valueColor, "失败", fmt.Sprintf("%d", usage.FailedRequests))
		v.renderLine(labelColor, valueColor, "重试", fmt.Sprintf("%d", usage.RetryAttempts))
		v.renderLine(labelColor, valueColor, "输入Token", fmt.Sprintf("%d", usage.TotalTokensIn))
		v.renderLine(labelColor, valueColor, "输出Token", fmt.Sprintf("%d", usage.TotalTokensOut))

		if usage.TotalRequests > 0 {
			v.renderLine(labelColor, valueColor, "平均延迟", usage.AverageLatency.Round(time.Millisecond).String())
			v.renderLine(labelColor, valueColor, "最大延迟", usage.MaxLatency.Round(time.Millisecond).String())
			v.renderSuccessRate(usage)
		}

		if len(usage.ErrorKinds) > 0 {
			kinds := make([]string, 0, len(usage.ErrorKinds))
			for kind := range usage.ErrorKinds {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)
			for _, kind := range kinds {
				_, _ = errorColor.Fprintf(v.out, "    错误[%s]: %d\n", kind, usage.ErrorKinds[kind])
			}
		}
	}
	fmt.Fprintln(v.out)
}

// RenderCache 渲染缓存统计
func (v *Visualizer) RenderCache(stats dispatch.CacheStats) {
	title := color.New(color.FgMagenta, color.Bold)
	_, _ = title.Fprintln(v.out, "\n═══ 缓存统计 ═══")

	labelColor := color.New(color.FgCyan)
	valueColor := color.New(color.FgWhite, color.Bold)

	v.renderLine(labelColor, valueColor, "条目数", fmt.Sprintf("%d", stats.Entries))
	v.renderLine(labelColor, valueColor, "命中", fmt.Sprintf("%d", stats.Hits))
	v.renderLine(labelColor, valueColor, "未命中", fmt.Sprintf("%d", stats.Misses))

	rateColor := color.New(color.FgGreen)
	if stats.HitRate < 0.5 {
		rateColor = color.New(color.FgYellow)
	}
	if stats.HitRate < 0.2 {
		rateColor = color.New(color.FgRed)
	}
	_, _ = labelColor.Fprint(v.out, "    命中率: ")
	_, _ = rateColor.Fprintf(v.out, "%.1f%%\n", stats.HitRate*100)
	fmt.Fprintln(v.out)
}

// renderSuccessRate 按成功率着色
func (v *Visualizer) renderSuccessRate(usage dispatch.ProviderUsage) {
	rate := float64(usage.SuccessfulRequests) / float64(usage.TotalRequests)

	rateColor := color.New(color.FgGreen)
	if rate < 0.9 {
		rateColor = color.New(color.FgYellow)
	}
	if rate < 0.5 {
		rateColor = color.New(color.FgRed)
	}

	labelColor := color.New(color.FgCyan)
	_, _ = labelColor.Fprint(v.out, "    成功率: ")
	_, _ = rateColor.Fprintf(v.out, "%.1f%%\n", rate*100)
}

func (v *Visualizer) renderLine(labelColor, valueColor *color.Color, label, value string) {
	_, _ = labelColor.Fprintf(v.out, "    %s: ", label)
	_, _ = valueColor.Fprintln(v.out, value)
}
