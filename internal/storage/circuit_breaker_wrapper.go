package storage

import (
	"context"
	"fmt"
	"time"

	"memoria/internal/circuitbreaker"
	"memoria/pkg/types"
)

// CircuitBreakerVectorStore wraps a VectorStore with circuit breaker
// protection, degrading to empty results rather than failing the caller
// outright on read paths.
type CircuitBreakerVectorStore struct {
	store VectorStore
	cb    *circuitbreaker.CircuitBreaker
}

// NewCircuitBreakerVectorStore wraps store with a circuit breaker using
// config, or documented defaults when config is nil.
func NewCircuitBreakerVectorStore(store VectorStore, config *circuitbreaker.Config) *CircuitBreakerVectorStore {
	if config == nil {
		config = &circuitbreaker.Config{
			FailureThreshold:      5,
			SuccessThreshold:      2,
			Timeout:               30 * time.Second,
			MaxConcurrentRequests: 3,
			OnStateChange: func(from, to circuitbreaker.State) {
				fmt.Printf("VectorStore circuit breaker: %s -> %s\n", from, to)
			},
		}
	}
	return &CircuitBreakerVectorStore{store: store, cb: circuitbreaker.New(config)}
}

func (s *CircuitBreakerVectorStore) Initialize(ctx context.Context) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Initialize(ctx)
	})
}

func (s *CircuitBreakerVectorStore) Store(ctx context.Context, collection types.CollectionType, chunk *types.Chunk) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Store(ctx, collection, chunk)
	})
}

func (s *CircuitBreakerVectorStore) Search(ctx context.Context, collection types.CollectionType, queryEmbedding []float32, limit int) ([]types.SearchHit, error) {
	var result []types.SearchHit
	err := s.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			result, err = s.store.Search(ctx, collection, queryEmbedding, limit)
			return err
		},
		func(ctx context.Context, cbErr error) error {
			result = nil
			return nil
		},
	)
	return result, err
}

func (s *CircuitBreakerVectorStore) SearchByMetadata(ctx context.Context, collection types.CollectionType, filter map[string]string, limit int) ([]types.Chunk, error) {
	var result []types.Chunk
	err := s.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			result, err = s.store.SearchByMetadata(ctx, collection, filter, limit)
			return err
		},
		func(ctx context.Context, cbErr error) error {
			result = nil
			return nil
		},
	)
	return result, err
}

func (s *CircuitBreakerVectorStore) GetByID(ctx context.Context, collection types.CollectionType, id string) (*types.Chunk, error) {
	var result *types.Chunk
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.store.GetByID(ctx, collection, id)
		return err
	})
	return result, err
}

func (s *CircuitBreakerVectorStore) Delete(ctx context.Context, collection types.CollectionType, id string) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Delete(ctx, collection, id)
	})
}

func (s *CircuitBreakerVectorStore) Update(ctx context.Context, collection types.CollectionType, chunk *types.Chunk) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Update(ctx, collection, chunk)
	})
}

func (s *CircuitBreakerVectorStore) HealthCheck(ctx context.Context) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.HealthCheck(ctx)
	})
}

func (s *CircuitBreakerVectorStore) GetStats(ctx context.Context, collection types.CollectionType) (*StoreStats, error) {
	var result *StoreStats
	err := s.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			result, err = s.store.GetStats(ctx, collection)
			return err
		},
		func(ctx context.Context, cbErr error) error {
			result = &StoreStats{ChunksByTier: map[string]int64{}}
			return nil
		},
	)
	return result, err
}

func (s *CircuitBreakerVectorStore) Cleanup(ctx context.Context, collection types.CollectionType, retentionDays int) (int, error) {
	var result int
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.store.Cleanup(ctx, collection, retentionDays)
		return err
	})
	return result, err
}

func (s *CircuitBreakerVectorStore) Close() error {
	return s.store.Close()
}

func (s *CircuitBreakerVectorStore) BatchStore(ctx context.Context, collection types.CollectionType, chunks []*types.Chunk) (*BatchResult, error) {
	var result *BatchResult
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.store.BatchStore(ctx, collection, chunks)
		return err
	})
	return result, err
}

func (s *CircuitBreakerVectorStore) BatchDelete(ctx context.Context, collection types.CollectionType, ids []string) (*BatchResult, error) {
	var result *BatchResult
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.store.BatchDelete(ctx, collection, ids)
		return err
	})
	return result, err
}

func (s *CircuitBreakerVectorStore) CountByCollection(ctx context.Context, collection types.CollectionType) (int, error) {
	var result int
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.store.CountByCollection(ctx, collection)
		return err
	})
	return result, err
}

func (s *CircuitBreakerVectorStore) AllIDs(ctx context.Context, collection types.CollectionType) ([]string, error) {
	var result []string
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.store.AllIDs(ctx, collection)
		return err
	})
	return result, err
}

// GetCircuitBreakerStats exposes the wrapped breaker's stats.
func (s *CircuitBreakerVectorStore) GetCircuitBreakerStats() circuitbreaker.Stats {
	return s.cb.GetStats()
}
