package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"memoria/internal/retry"
	"memoria/pkg/types"
)

// RetryableVectorStore wraps a VectorStore with retry logic
type RetryableVectorStore struct {
	store   VectorStore
	retrier *retry.Retrier
}

// NewRetryableVectorStore creates a new retryable vector store
func NewRetryableVectorStore(store VectorStore, config *retry.Config) VectorStore {
	if config == nil {
		config = defaultRetryConfig()
	}
	return &RetryableVectorStore{
		store:   store,
		retrier: retry.New(config),
	}
}

// defaultRetryConfig returns the default retry configuration for storage operations
func defaultRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts:     3,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         isRetryableStorageError,
	}
}

// isRetryableStorageError determines if a storage error should be retried
func isRetryableStorageError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"too many requests",
		"service unavailable",
		"internal server error",
		"bad gateway",
		"gateway timeout",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	type temporary interface {
		Temporary() bool
	}
	if te, ok := err.(temporary); ok {
		return te.Temporary()
	}

	return false
}

func (r *RetryableVectorStore) Initialize(ctx context.Context) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.Initialize(ctx)
	})
	if result.Err != nil {
		return fmt.Errorf("failed to initialize after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

func (r *RetryableVectorStore) Store(ctx context.Context, collection types.CollectionType, chunk *types.Chunk) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.Store(ctx, collection, chunk)
	})
	if result.Err != nil {
		return fmt.Errorf("failed to store chunk after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

func (r *RetryableVectorStore) Search(ctx context.Context, collection types.CollectionType, queryEmbedding []float32, limit int) ([]types.SearchHit, error) {
	var hits []types.SearchHit
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		hits, err = r.store.Search(ctx, collection, queryEmbedding, limit)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("search failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return hits, nil
}

func (r *RetryableVectorStore) SearchByMetadata(ctx context.Context, collection types.CollectionType, filter map[string]string, limit int) ([]types.Chunk, error) {
	var chunks []types.Chunk
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		chunks, err = r.store.SearchByMetadata(ctx, collection, filter, limit)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("search by metadata failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return chunks, nil
}

func (r *RetryableVectorStore) GetByID(ctx context.Context, collection types.CollectionType, id string) (*types.Chunk, error) {
	var chunk *types.Chunk
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		chunk, err = r.store.GetByID(ctx, collection, id)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("failed to get chunk by ID after %d attempts: %w", result.Attempts, result.Err)
	}
	return chunk, nil
}

func (r *RetryableVectorStore) Delete(ctx context.Context, collection types.CollectionType, id string) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.Delete(ctx, collection, id)
	})
	if result.Err != nil {
		return fmt.Errorf("failed to delete chunk after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

func (r *RetryableVectorStore) Update(ctx context.Context, collection types.CollectionType, chunk *types.Chunk) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.Update(ctx, collection, chunk)
	})
	if result.Err != nil {
		return fmt.Errorf("failed to update chunk after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

func (r *RetryableVectorStore) HealthCheck(ctx context.Context) error {
	healthConfig := &retry.Config{
		MaxAttempts:     5,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		Multiplier:      1.5,
		RandomizeFactor: 0.1,
		RetryIf:         isRetryableStorageError,
	}

	healthRetrier := retry.New(healthConfig)
	result := healthRetrier.Do(ctx, func(ctx context.Context) error {
		return r.store.HealthCheck(ctx)
	})

	if result.Err != nil {
		return fmt.Errorf("health check failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

func (r *RetryableVectorStore) GetStats(ctx context.Context, collection types.CollectionType) (*StoreStats, error) {
	var stats *StoreStats
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		stats, err = r.store.GetStats(ctx, collection)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("failed to get stats after %d attempts: %w", result.Attempts, result.Err)
	}
	return stats, nil
}

func (r *RetryableVectorStore) Cleanup(ctx context.Context, collection types.CollectionType, retentionDays int) (int, error) {
	var count int
	cleanupConfig := &retry.Config{
		MaxAttempts:     3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         isRetryableStorageError,
	}

	cleanupRetrier := retry.New(cleanupConfig)
	result := cleanupRetrier.Do(ctx, func(ctx context.Context) error {
		var err error
		count, err = r.store.Cleanup(ctx, collection, retentionDays)
		return err
	})
	if result.Err != nil {
		return 0, fmt.Errorf("cleanup failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return count, nil
}

func (r *RetryableVectorStore) Close() error {
	return r.store.Close()
}

func (r *RetryableVectorStore) BatchStore(ctx context.Context, collection types.CollectionType, chunks []*types.Chunk) (*BatchResult, error) {
	var result *BatchResult
	retryResult := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = r.store.BatchStore(ctx, collection, chunks)
		return err
	})
	if retryResult.Err != nil {
		return nil, fmt.Errorf("batch store failed after %d attempts: %w", retryResult.Attempts, retryResult.Err)
	}
	return result, nil
}

func (r *RetryableVectorStore) BatchDelete(ctx context.Context, collection types.CollectionType, ids []string) (*BatchResult, error) {
	var result *BatchResult
	retryResult := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = r.store.BatchDelete(ctx, collection, ids)
		return err
	})
	if retryResult.Err != nil {
		return nil, fmt.Errorf("batch delete failed after %d attempts: %w", retryResult.Attempts, retryResult.Err)
	}
	return result, nil
}

func (r *RetryableVectorStore) CountByCollection(ctx context.Context, collection types.CollectionType) (int, error) {
	var count int
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		count, err = r.store.CountByCollection(ctx, collection)
		return err
	})
	if result.Err != nil {
		return 0, fmt.Errorf("count by collection failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return count, nil
}

func (r *RetryableVectorStore) AllIDs(ctx context.Context, collection types.CollectionType) ([]string, error) {
	var ids []string
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		ids, err = r.store.AllIDs(ctx, collection)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("list ids failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return ids, nil
}
