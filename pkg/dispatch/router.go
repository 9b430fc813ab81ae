package dispatch

import (
	"sort"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
)

// RouteOptions 路由选项
type RouteOptions struct {
	// Strategy 选择策略
	Strategy Strategy

	// PreferLocal 额外偏好本地提供商
	PreferLocal bool
}

// Route 对候选提供商打分排序，返回完整的尝试顺序
// （而不是单个选择，调度引擎按此顺序逐个切换，无需重新路由）。
// 纯函数：结果只取决于入参，没有隐藏状态。
//
// 打分规则：基础分100；策略加成 quality: premium +50，fast: 本地 +50，
// cost: 零成本 +50，balanced: 本地 +40、premium +20；preferLocal 时本地
// 再 +30；负载惩罚 -min(usageCount/100, 10)，近期被打爆的提供商沉底。
// 同分按权重降序，再按注册顺序（稳定排序）。
func Route(candidates []providers.Descriptor, opts RouteOptions, usage map[string]int64) []string {
	type scored struct {
		id    string
		score float64
		w     float64
	}

	list := make([]scored, 0, len(candidates))
	for _, desc := range candidates {
		list = append(list, scored{
			id:    desc.ID,
			score: scoreProvider(&desc, opts, usage[desc.ID]),
			w:     desc.Weight,
		})
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].w > list[j].w
	})

	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.id
	}
	return out
}

// scoreProvider 计算单个提供商的得分
func scoreProvider(desc *providers.Descriptor, opts RouteOptions, usageCount int64) float64 {
	score := 100.0

	switch opts.Strategy {
	case StrategyQuality:
		if desc.QualityTier == providers.TierPremium {
			score += 50
		}
	case StrategyFast:
		if desc.IsLocal() {
			score += 50
		}
	case StrategyCost:
		if desc.CostPerToken == 0 {
			score += 50
		}
	case StrategyBalanced:
		if desc.IsLocal() {
			score += 40
		}
		if desc.QualityTier == providers.TierPremium {
			score += 20
		}
	}

	if opts.PreferLocal && desc.IsLocal() {
		score += 30
	}

	penalty := float64(usageCount) / 100.0
	if penalty > 10 {
		penalty = 10
	}
	score -= penalty

	return score
}
