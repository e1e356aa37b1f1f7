package embeddings

import (
	"context"
	"fmt"
	"time"

	"memoria/internal/circuitbreaker"
	"memoria/internal/config"
	"memoria/internal/retry"
)

// New builds the configured EmbeddingService, wrapped with a shared cache,
// retry, and circuit breaker the way internal/storage wraps its
// VectorStore implementations.
func New(cfg config.EmbeddingsConfig) (EmbeddingService, error) {
	var svc EmbeddingService
	switch cfg.Provider {
	case "openai":
		openai, err := NewOpenAIEmbeddingService(cfg)
		if err != nil {
			return nil, fmt.Errorf("embeddings.New: %w", err)
		}
		svc = openai
	case "mock", "":
		svc = NewMockEmbeddingService(cfg)
	default:
		return nil, fmt.Errorf("embeddings.New: unknown provider %q", cfg.Provider)
	}

	svc = NewRetryableEmbeddingService(svc, nil)
	svc = NewCircuitBreakerEmbeddingService(svc, &circuitbreaker.Config{
		FailureThreshold:      3,
		SuccessThreshold:      2,
		Timeout:               20 * time.Second,
		MaxConcurrentRequests: 5,
	})
	return &cachedEmbeddingService{service: svc, cache: newSharedCache(cfg)}, nil
}

func newSharedCache(cfg config.EmbeddingsConfig) SharedCache {
	if cfg.RedisAddr != "" {
		return NewRedisCache(cfg.RedisAddr, cfg.CacheTTL)
	}
	return NewLocalCache(cfg.CacheSize, cfg.CacheTTL)
}

// cachedEmbeddingService is the outermost wrapper: cache hits never touch
// retry or circuit-breaker logic at all.
type cachedEmbeddingService struct {
	service EmbeddingService
	cache   SharedCache
}

func (c *cachedEmbeddingService) Generate(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(ctx, text); ok {
		return v, nil
	}
	v, err := c.service.Generate(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, text, v)
	return v, nil
}

func (c *cachedEmbeddingService) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(ctx, t); ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	generated, err := c.service.GenerateBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = generated[j]
		c.cache.Set(ctx, missTexts[j], generated[j])
	}
	return out, nil
}

func (c *cachedEmbeddingService) GetDimensions() int { return c.service.GetDimensions() }

func (c *cachedEmbeddingService) HealthCheck(ctx context.Context) error {
	return c.service.HealthCheck(ctx)
}
