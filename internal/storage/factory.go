package storage

import (
	"fmt"
	"time"

	"memoria/internal/circuitbreaker"
	"memoria/internal/config"
	"memoria/internal/logging"
	"memoria/internal/retry"
)

// New builds the configured VectorStore (cfg.Provider: "memory", "sqlite",
// "qdrant") and wraps the sqlite and qdrant stores with retry and
// circuit-breaker the way internal/embeddings.New wraps its
// EmbeddingService. The memory provider is returned unwrapped.
func New(cfg config.VectorStoreConfig, logger logging.Logger) (VectorStore, error) {
	var vs VectorStore
	switch cfg.Provider {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		sqliteStore, err := NewSQLiteStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("storage.New: %w", err)
		}
		vs = sqliteStore
	case "qdrant":
		vs = NewQdrantStore(cfg, logger)
	default:
		return nil, fmt.Errorf("storage.New: unknown provider %q", cfg.Provider)
	}

	vs = NewRetryableVectorStore(vs, &retry.Config{
		MaxAttempts:  cfg.RetryAttempts,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	})
	vs = NewCircuitBreakerVectorStore(vs, &circuitbreaker.Config{
		FailureThreshold:      5,
		SuccessThreshold:      2,
		Timeout:               30 * time.Second,
		MaxConcurrentRequests: 10,
	})
	return vs, nil
}
