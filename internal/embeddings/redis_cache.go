package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SharedCache is the embedding-result cache contract every implementation
// (LRU or Redis-backed) satisfies.
type SharedCache interface {
	Get(ctx context.Context, text string) ([]float32, bool)
	Set(ctx context.Context, text string, embedding []float32)
}

// LocalCache adapts the in-process EmbeddingCache to SharedCache, ignoring
// ctx since it never does I/O.
type LocalCache struct {
	cache *EmbeddingCache
}

// NewLocalCache wraps an in-process LRU cache as the no-redis-configured
// fallback (SPEC_FULL.md §3).
func NewLocalCache(maxSize int, ttl time.Duration) *LocalCache {
	return &LocalCache{cache: NewEmbeddingCache(maxSize, ttl)}
}

func (l *LocalCache) Get(ctx context.Context, text string) ([]float32, bool) {
	return l.cache.Get(text)
}

func (l *LocalCache) Set(ctx context.Context, text string, embedding []float32) {
	l.cache.Set(text, embedding)
}

// RedisCache shares embedding results across engine processes, so a cache
// warmed by one process serves every other process pointed at the same
// Redis instance. Falls back silently to a cache miss on any Redis error —
// the embedding model remains the source of truth.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache connects to addr and returns a ready-to-use shared cache.
func NewRedisCache(addr string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		prefix: "memoria:embed:",
	}
}

func (r *RedisCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s%x", r.prefix, sum)
}

func (r *RedisCache) Get(ctx context.Context, text string) ([]float32, bool) {
	data, err := r.client.Get(ctx, r.key(text)).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (r *RedisCache) Set(ctx context.Context, text string, embedding []float32) {
	data, err := json.Marshal(embedding)
	if err != nil {
		return
	}
	r.client.Set(ctx, r.key(text), data, r.ttl)
}

// Close releases the underlying Redis connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
