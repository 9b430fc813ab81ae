package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
)

func descLocal(id string, weight float64) providers.Descriptor {
	return providers.Descriptor{
		ID:          id,
		Type:        providers.TypeLocal,
		QualityTier: providers.TierStandard,
		Weight:      weight,
		Enabled:     true,
	}
}

func descPremium(id string, cost float64, weight float64) providers.Descriptor {
	return providers.Descriptor{
		ID:           id,
		Type:         providers.TypeRemote,
		QualityTier:  providers.TierPremium,
		CostPerToken: cost,
		Weight:       weight,
		Enabled:      true,
	}
}

func TestRouteQualityStrategy(t *testing.T) {
	order := Route(
		[]providers.Descriptor{
			descLocal("ollama", 0.5),
			descPremium("openai", 0.000001, 0.5),
		},
		RouteOptions{Strategy: StrategyQuality},
		nil,
	)
	assert.Equal(t, []string{"openai", "ollama"}, order)
}

func TestRouteFastStrategy(t *testing.T) {
	order := Route(
		[]providers.Descriptor{
			descPremium("openai", 0.000001, 0.5),
			descLocal("ollama", 0.5),
		},
		RouteOptions{Strategy: StrategyFast},
		nil,
	)
	assert.Equal(t, []string{"ollama", "openai"}, order)
}

func TestRouteCostStrategy(t *testing.T) {
	free := descLocal("deeplx", 0.5)
	paid := descPremium("openai", 0.000001, 0.9)

	order := Route(
		[]providers.Descriptor{paid, free},
		RouteOptions{Strategy: StrategyCost},
		nil,
	)
	assert.Equal(t, []string{"deeplx", "openai"}, order)
}

func TestRouteBalancedStrategy(t *testing.T) {
	// balanced: 本地 +40 > premium +20
	order := Route(
		[]providers.Descriptor{
			descPremium("openai", 0.000001, 0.5),
			descLocal("ollama", 0.5),
		},
		RouteOptions{Strategy: StrategyBalanced},
		nil,
	)
	assert.Equal(t, []string{"ollama", "openai"}, order)
}

func TestRoutePreferLocalBonus(t *testing.T) {
	// quality策略premium +50，但preferLocal +30不足以反超
	order := Route(
		[]providers.Descriptor{
			descLocal("ollama", 0.5),
			descPremium("openai", 0.000001, 0.5),
		},
		RouteOptions{Strategy: StrategyQuality, PreferLocal: true},
		nil,
	)
	assert.Equal(t, []string{"openai", "ollama"}, order)

	// 无策略加成时preferLocal决定顺序
	order = Route(
		[]providers.Descriptor{
			descPremium("b", 0, 0.5),
			descLocal("a", 0.5),
		},
		RouteOptions{PreferLocal: true},
		nil,
	)
	assert.Equal(t, "a", order[0])
}

func TestRouteUsagePenalty(t *testing.T) {
	a := descLocal("a", 0.5)
	b := descLocal("b", 0.5)

	// 同分同权重时注册顺序在前者优先
	order := Route([]providers.Descriptor{a, b}, RouteOptions{}, nil)
	assert.Equal(t, []string{"a", "b"}, order)

	// a 被大量使用后沉底
	order = Route([]providers.Descriptor{a, b}, RouteOptions{}, map[string]int64{"a": 500})
	assert.Equal(t, []string{"b", "a"}, order)
}

func TestRouteUsagePenaltyCapped(t *testing.T) {
	// 惩罚上限10分：重负载打不过quality的+50加成
	heavy := descPremium("heavy", 0.000001, 0.5)
	idle := descLocal("idle", 0.5)

	order := Route(
		[]providers.Descriptor{heavy, idle},
		RouteOptions{Strategy: StrategyQuality},
		map[string]int64{"heavy": 1_000_000},
	)
	assert.Equal(t, []string{"heavy", "idle"}, order)
}

func TestRouteTieBreakByWeight(t *testing.T) {
	low := descLocal("low", 0.2)
	high := descLocal("high", 0.9)

	order := Route([]providers.Descriptor{low, high}, RouteOptions{}, nil)
	assert.Equal(t, []string{"high", "low"}, order)
}

func TestRouteStableForRegistrationOrder(t *testing.T) {
	a := descLocal("a", 0.5)
	b := descLocal("b", 0.5)
	c := descLocal("c", 0.5)

	// 完全同分时保持注册顺序
	order := Route([]providers.Descriptor{c, a, b}, RouteOptions{}, nil)
	assert.Equal(t, []string{"c", "a", "b"}, order)
}

func TestRouteEmptyCandidates(t *testing.T) {
	order := Route(nil, RouteOptions{Strategy: StrategyQuality}, nil)
	assert.Empty(t, order)
}
