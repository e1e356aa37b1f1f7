package embeddings

import (
	"context"
	"crypto/sha256"
	"math"

	"memoria/internal/config"
)

// MockEmbeddingService derives a deterministic unit vector from the SHA-256
// of its input text, so the same text always yields the same embedding and
// similarity comparisons behave sensibly in tests and local dev without an
// external provider.
type MockEmbeddingService struct {
	dimensions int
}

// NewMockEmbeddingService builds a mock service from cfg.Dimensions,
// defaulting to 1536 (OpenAI's text-embedding-3-small width) when unset.
func NewMockEmbeddingService(cfg config.EmbeddingsConfig) *MockEmbeddingService {
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 1536
	}
	return &MockEmbeddingService{dimensions: dims}
}

func (m *MockEmbeddingService) Generate(ctx context.Context, text string) ([]float32, error) {
	return deterministicVector(text, m.dimensions), nil
}

func (m *MockEmbeddingService) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t, m.dimensions)
	}
	return out, nil
}

func (m *MockEmbeddingService) GetDimensions() int { return m.dimensions }

func (m *MockEmbeddingService) HealthCheck(ctx context.Context) error { return nil }

// deterministicVector expands a SHA-256 digest of text into dims float32s
// by repeating the hash bytes, then L2-normalizes the result.
func deterministicVector(text string, dims int) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dims)
	var sumSquares float64
	for i := 0; i < dims; i++ {
		b := sum[i%len(sum)]
		v := (float32(b)/255.0)*2 - 1
		vec[i] = v
		sumSquares += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
