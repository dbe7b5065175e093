package search

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kapu/persona-avatar-bot-go/internal/service/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(cache.NewCacheServiceWithClient(client, zap.NewNop()), ttl, zap.NewNop()), server
}

func TestRedisCache_MissingKeyIsMiss(t *testing.T) {
	rc, _ := newTestRedisCache(t, time.Hour)

	hits, ok := rc.Get(context.Background(), CacheKey(ImageQuery{Query: "ada"}))
	assert.False(t, ok)
	assert.Nil(t, hits)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	rc, server := newTestRedisCache(t, time.Hour)
	ctx := context.Background()
	key := CacheKey(ImageQuery{Query: "ada lovelace portrait", ImageType: "face"})

	rc.Set(ctx, key, []SearchHit{
		{Link: "https://x.org/a.jpg", Title: "Ada", DisplayLink: "x.org"},
		{Link: "https://y.org/b.png"},
	})
	assert.Equal(t, time.Hour, server.TTL(key))

	hits, ok := rc.Get(ctx, key)
	require.True(t, ok)
	require.Len(t, hits, 2)
	assert.Equal(t, SearchHit{Link: "https://x.org/a.jpg", Title: "Ada", DisplayLink: "x.org"}, hits[0])
	assert.Equal(t, "https://y.org/b.png", hits[1].Link)
}

func TestRedisCache_EmptyResultIsStillAHit(t *testing.T) {
	rc, _ := newTestRedisCache(t, time.Hour)
	ctx := context.Background()

	rc.Set(ctx, "k", nil)

	hits, ok := rc.Get(ctx, "k")
	assert.True(t, ok, "a stored empty result saves the next query")
	assert.Empty(t, hits)
}

func TestRedisCache_ExpiredEntryIsMiss(t *testing.T) {
	rc, server := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	rc.Set(ctx, "k", []SearchHit{{Link: "https://x.org/a.jpg"}})
	server.FastForward(2 * time.Minute)

	_, ok := rc.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	rc, server := newTestRedisCache(t, time.Hour)
	require.NoError(t, server.Set("k", "not json"))

	_, ok := rc.Get(context.Background(), "k")
	assert.False(t, ok)
}
