package dispatch

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(maxEntries int, start time.Time) (*ResultCache, *time.Time) {
	current := start
	c := NewResultCache(maxEntries, 0)
	c.now = func() time.Time { return current }
	return c, &current
}

func TestCacheSetGet(t *testing.T) {
	c, _ := newTestCache(10, time.Now())
	defer c.Close()

	c.Set("k1", "你好", "openai", time.Hour)

	entry, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "你好", entry.TranslatedText)
	assert.Equal(t, "openai", entry.Provider)
	assert.Equal(t, int64(1), entry.AccessCount)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCacheGetReturnsCopy(t *testing.T) {
	c, _ := newTestCache(10, time.Now())
	defer c.Close()

	c.Set("k1", "one", "p", time.Hour)

	entry, ok := c.Get("k1")
	require.True(t, ok)
	entry.TranslatedText = "tampered"

	again, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "one", again.TranslatedText)
}

func TestCacheLazyExpiry(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c, current := newTestCache(10, start)
	defer c.Close()

	c.Set("k1", "text", "p", time.Minute)

	*current = start.Add(59 * time.Second)
	_, ok := c.Get("k1")
	assert.True(t, ok)

	// 过期即未命中，条目被顺带移除
	*current = start.Add(61 * time.Second)
	_, ok = c.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheZeroTTLNeverExpires(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c, current := newTestCache(10, start)
	defer c.Close()

	c.Set("k1", "text", "p", 0)

	*current = start.Add(1000 * time.Hour)
	_, ok := c.Get("k1")
	assert.True(t, ok)
}

func TestCacheLRUEviction(t *testing.T) {
	c, _ := newTestCache(3, time.Now())
	defer c.Close()

	c.Set("a", "1", "p", time.Hour)
	c.Set("b", "2", "p", time.Hour)
	c.Set("c", "3", "p", time.Hour)

	// 访问a使其变为最近使用
	_, ok := c.Get("a")
	require.True(t, ok)

	// 插入第4个条目应淘汰最久未访问的b
	c.Set("d", "4", "p", time.Hour)
	assert.Equal(t, 3, c.Len())

	_, ok = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	_, ok = c.Get("d")
	assert.True(t, ok)
}

func TestCacheUpdateExistingKey(t *testing.T) {
	c, _ := newTestCache(2, time.Now())
	defer c.Close()

	c.Set("a", "old", "p1", time.Hour)
	c.Set("a", "new", "p2", time.Hour)

	assert.Equal(t, 1, c.Len())
	entry, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "new", entry.TranslatedText)
	assert.Equal(t, "p2", entry.Provider)
}

func TestCacheSweepRemovesExpired(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c, current := newTestCache(10, start)
	defer c.Close()

	c.Set("short", "1", "p", time.Minute)
	c.Set("long", "2", "p", time.Hour)

	*current = start.Add(2 * time.Minute)
	c.sweep()

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("long")
	assert.True(t, ok)
}

func TestCacheStats(t *testing.T) {
	c, _ := newTestCache(10, time.Now())
	defer c.Close()

	c.Set("a", "1", "p", time.Hour)
	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("missing")
	_, _ = c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}

func TestCacheClear(t *testing.T) {
	c, _ := newTestCache(10, time.Now())
	defer c.Close()

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), "text", "p", time.Hour)
	}
	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().Hits)
}

func TestCacheKeyNormalization(t *testing.T) {
	// 空白归一化后键相同
	assert.Equal(t,
		CacheKey("hello  world", "en", "zh"),
		CacheKey("  hello\tworld ", "en", "zh"))

	// 语言代码大小写不敏感
	assert.Equal(t,
		CacheKey("hello", "EN", "ZH"),
		CacheKey("hello", "en", "zh"))

	// 不同语言对必须得到不同的键
	assert.NotEqual(t,
		CacheKey("hello", "en", "zh"),
		CacheKey("hello", "en", "ja"))

	// 不同文本必须得到不同的键
	assert.NotEqual(t,
		CacheKey("hello", "en", "zh"),
		CacheKey("world", "en", "zh"))
}
