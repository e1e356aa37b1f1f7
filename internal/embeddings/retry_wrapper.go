package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"memoria/internal/retry"
)

// RetryableEmbeddingService wraps an EmbeddingService with exponential
// backoff, matching the teacher's retry-wrapper convention used throughout
// internal/storage.
type RetryableEmbeddingService struct {
	service EmbeddingService
	retrier *retry.Retrier
}

// NewRetryableEmbeddingService wraps service with config, or a sensible
// embedding-specific default when config is nil.
func NewRetryableEmbeddingService(service EmbeddingService, cfg *retry.Config) EmbeddingService {
	if cfg == nil {
		cfg = defaultEmbeddingRetryConfig()
	}
	return &RetryableEmbeddingService{service: service, retrier: retry.New(cfg)}
}

func defaultEmbeddingRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts:     3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.2,
		RetryIf:         isRetryableEmbeddingError,
	}
}

func isRetryableEmbeddingError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())

	for _, pattern := range []string{
		"invalid api key", "unauthorized", "forbidden",
		"insufficient_quota", "invalid_request_error",
		"model not found", "context length exceeded",
	} {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}

	for _, pattern := range []string{
		"connection refused", "connection reset", "timeout", "i/o timeout", "eof",
		"429", "500", "502", "503", "504",
		"rate limit", "quota exceeded", "overloaded", "temporarily unavailable",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	type temporary interface{ Temporary() bool }
	if te, ok := err.(temporary); ok {
		return te.Temporary()
	}
	return false
}

func (r *RetryableEmbeddingService) Generate(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.service.Generate(ctx, text)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("generate embedding after %d attempts: %w", result.Attempts, result.Err)
	}
	return out, nil
}

func (r *RetryableEmbeddingService) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.service.GenerateBatch(ctx, texts)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("generate batch embeddings after %d attempts: %w", result.Attempts, result.Err)
	}
	return out, nil
}

func (r *RetryableEmbeddingService) GetDimensions() int { return r.service.GetDimensions() }

func (r *RetryableEmbeddingService) HealthCheck(ctx context.Context) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.service.HealthCheck(ctx)
	})
	if result.Err != nil {
		return fmt.Errorf("embedding health check after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}
