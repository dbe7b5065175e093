package search

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey_DependsOnEveryParameter(t *testing.T) {
	base := ImageQuery{Query: "ada", ImageType: "face", Safe: "active", Count: 10}
	key := CacheKey(base)
	assert.True(t, strings.HasPrefix(key, cacheKeyPrefix))
	assert.Equal(t, key, CacheKey(base))

	other := base
	other.ImageType = "clipart"
	assert.NotEqual(t, key, CacheKey(other))
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache(2, time.Hour)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "a")
	assert.False(t, ok)

	cache.Set(ctx, "a", []SearchHit{{Link: "https://x/a.jpg"}})
	hits, ok := cache.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "https://x/a.jpg", hits[0].Link)

	cache.Set(ctx, "b", nil)
	cache.Set(ctx, "c", nil)
	_, ok = cache.Get(ctx, "a")
	assert.False(t, ok, "least recently used entry is evicted")
}
