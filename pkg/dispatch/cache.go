package dispatch

import (
	"container/list"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerdneilsfield/go-dispatch-agent/pkg/providers"
)

// CacheEntry 缓存条目
type CacheEntry struct {
	Key            string        `json:"key"`
	TranslatedText string        `json:"translated_text"`
	Provider       string        `json:"provider"`
	CreatedAt      time.Time     `json:"created_at"`
	TTL            time.Duration `json:"ttl"`
	AccessCount    int64         `json:"access_count"`
	LastAccessed   time.Time     `json:"last_accessed"`
}

// expired 条目是否已过期
func (e *CacheEntry) expired(now time.Time) bool {
	return e.TTL > 0 && now.After(e.CreatedAt.Add(e.TTL))
}

// CacheStats 缓存统计信息
type CacheStats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// ResultCache 翻译结果缓存，LRU淘汰加TTL过期。
// 状态只在缓存自身内部变更，从不回调提供商。
type ResultCache struct {
	mu         sync.Mutex
	maxEntries int
	ll         *list.List // front = 最近访问
	items      map[string]*list.Element
	hits       int64
	misses     int64

	done chan struct{}
	once sync.Once

	now func() time.Time
}

// NewResultCache 创建缓存。sweepInterval 大于0时启动周期清扫，
// 主动移除过期条目，避免不再被访问的条目常驻内存。
func NewResultCache(maxEntries int, sweepInterval time.Duration) *ResultCache {
	c := &ResultCache{
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		done:       make(chan struct{}),
		now:        time.Now,
	}

	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	}
	return c
}

// Get 获取缓存条目。过期条目按未命中处理并顺带删除。
func (c *ResultCache) Get(key string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		c.misses++
		return nil, false
	}

	entry := elem.Value.(*CacheEntry)
	now := c.now()
	if entry.expired(now) {
		c.removeElement(elem)
		c.misses++
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccessed = now
	c.ll.MoveToFront(elem)
	c.hits++

	copied := *entry
	return &copied, true
}

// Set 写入缓存。超出容量时按最久未访问的顺序淘汰到上限以内。
func (c *ResultCache) Set(key, text, provider string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, exists := c.items[key]; exists {
		entry := elem.Value.(*CacheEntry)
		entry.TranslatedText = text
		entry.Provider = provider
		entry.CreatedAt = now
		entry.TTL = ttl
		entry.LastAccessed = now
		c.ll.MoveToFront(elem)
		return
	}

	entry := &CacheEntry{
		Key:            key,
		TranslatedText: text,
		Provider:       provider,
		CreatedAt:      now,
		TTL:            ttl,
		LastAccessed:   now,
	}
	c.items[key] = c.ll.PushFront(entry)

	for c.maxEntries > 0 && c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}
}

// Delete 删除缓存条目
func (c *ResultCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

// Clear 清空缓存
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.hits = 0
	c.misses = 0
}

// Len 当前条目数
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats 获取统计信息
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Entries: c.ll.Len(),
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// Close 停止周期清扫
func (c *ResultCache) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// removeElement 调用方必须持有锁
func (c *ResultCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*CacheEntry)
	c.ll.Remove(elem)
	delete(c.items, entry.Key)
}

// sweepLoop 周期清扫过期条目
func (c *ResultCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep 移除所有过期条目
func (c *ResultCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for elem := c.ll.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*CacheEntry).expired(now) {
			c.removeElement(elem)
		}
		elem = prev
	}
}

// CacheKey 计算缓存键：规范化文本与语言代码后取sha256。
// 同一（文本，语言对）总是得到同一个键。
func CacheKey(text, sourceLang, targetLang string) string {
	normalized := fmt.Sprintf("%s|%s|%s",
		normalizeText(text),
		providers.NormalizeLang(sourceLang),
		providers.NormalizeLang(targetLang),
	)
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum)
}

// normalizeText 去首尾空白并把连续空白折叠为单个空格
func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
