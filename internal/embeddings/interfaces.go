// Package embeddings provides the EmbeddingService contract the engine
// depends on (spec.md §1's "embedding model" collaborator: text → fixed
// dimension unit vector), plus the cache, rate limiter, retry, and circuit
// breaker wrappers every implementation shares.
package embeddings

import "context"

// EmbeddingService turns text into a fixed-dimension, unit-normalized
// vector. SimilarityCalculator (internal/similarity) assumes its output is
// already unit-normalized; implementations are responsible for that.
type EmbeddingService interface {
	// Generate creates the embedding for a single text.
	Generate(ctx context.Context, text string) ([]float32, error)

	// GenerateBatch creates embeddings for multiple texts in one round trip.
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)

	// GetDimensions returns the fixed vector width this service produces.
	GetDimensions() int

	// HealthCheck verifies the service is reachable and configured correctly.
	HealthCheck(ctx context.Context) error
}
