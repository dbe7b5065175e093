package search

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/kapu/persona-avatar-bot-go/internal/service/cache"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "avatarbot:search:"

// ResultCache stores raw search results per query so reruns do not spend quota.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]SearchHit, bool)
	Set(ctx context.Context, key string, hits []SearchHit)
}

// CacheKey derives a stable key from every parameter that shapes the results.
func CacheKey(q ImageQuery) string {
	sum := sha1.Sum(fmt.Appendf(nil, "%s|%s|%s|%s|%d", q.Query, q.ImageType, q.ImageSize, q.Safe, q.Count))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

type cachedHits struct {
	Hits     []SearchHit `json:"hits"`
	StoredAt time.Time   `json:"stored_at"`
}

// RedisCache keeps results in Redis through the shared cache service.
type RedisCache struct {
	cache  *cache.CacheService
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(cacheSvc *cache.CacheService, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{cache: cacheSvc, ttl: ttl, logger: logger}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]SearchHit, bool) {
	var entry cachedHits
	if err := r.cache.Get(ctx, key, &entry); err != nil {
		r.logger.Warn("Search cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if entry.StoredAt.IsZero() {
		return nil, false
	}
	return entry.Hits, true
}

func (r *RedisCache) Set(ctx context.Context, key string, hits []SearchHit) {
	entry := cachedHits{Hits: hits, StoredAt: time.Now()}
	if err := r.cache.Set(ctx, key, entry, r.ttl); err != nil {
		r.logger.Warn("Search cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// MemoryCache is the in-process fallback used when Redis is not configured.
type MemoryCache struct {
	lru *expirable.LRU[string, []SearchHit]
}

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 128
	}
	return &MemoryCache{lru: expirable.NewLRU[string, []SearchHit](size, nil, ttl)}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]SearchHit, bool) {
	return m.lru.Get(key)
}

func (m *MemoryCache) Set(_ context.Context, key string, hits []SearchHit) {
	m.lru.Add(key, hits)
}
