package providers

import (
	"context"
	"fmt"
	"sync"
)

// Registry 提供商注册表。显式构造后注入路由和调度引擎，
// 不提供包级默认实例。
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*registration
}

// registration 一条注册记录
type registration struct {
	descriptor Descriptor
	adapter    Adapter
}

// NewRegistry 创建新的注册表
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registration),
	}
}

// Register 注册提供商。重复ID返回错误。
func (r *Registry) Register(desc Descriptor, adapter Adapter) error {
	if desc.ID == "" {
		return fmt.Errorf("descriptor id is empty")
	}
	if adapter == nil {
		return fmt.Errorf("adapter for %s is nil", desc.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.ID]; exists {
		return fmt.Errorf("provider %s already registered", desc.ID)
	}

	r.entries[desc.ID] = &registration{descriptor: desc, adapter: adapter}
	r.order = append(r.order, desc.ID)
	return nil
}

// Update 更新提供商描述（仅配置刷新时调用，调度路径不修改描述）
func (r *Registry) Update(desc Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[desc.ID]
	if !exists {
		return fmt.Errorf("provider %s not found", desc.ID)
	}

	entry.descriptor = desc
	return nil
}

// Get 获取提供商描述
func (r *Registry) Get(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[id]
	if !exists {
		return Descriptor{}, fmt.Errorf("provider %s not found", id)
	}
	return entry.descriptor, nil
}

// Adapter 获取提供商适配器
func (r *Registry) Adapter(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[id]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", id)
	}
	return entry.adapter, nil
}

// List 按注册顺序列出所有提供商ID
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Candidates 按注册顺序返回满足条件的候选提供商：
// 已启用、支持语言对、具备全部要求的能力。
func (r *Registry) Candidates(source, target string, required ...Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, id := range r.order {
		desc := r.entries[id].descriptor
		if !desc.Enabled {
			continue
		}
		if !desc.SupportsPair(source, target) {
			continue
		}

		ok := true
		for _, cap := range required {
			if !desc.HasCapability(cap) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, id)
		}
	}
	return out
}

// IsAvailable 委托适配器做可用性检查。
// 可用性在运行时会变（密钥吊销、本地模型卸载），因此每次调度都重新检查，不缓存。
func (r *Registry) IsAvailable(ctx context.Context, id string) bool {
	r.mu.RLock()
	entry, exists := r.entries[id]
	r.mu.RUnlock()

	if !exists {
		return false
	}
	return entry.adapter.HealthCheck(ctx) == nil
}
