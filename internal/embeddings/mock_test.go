package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/config"
)

func TestMockEmbeddingServiceDeterministic(t *testing.T) {
	svc := NewMockEmbeddingService(config.EmbeddingsConfig{Dimensions: 64})

	v1, err := svc.Generate(context.Background(), "hello world")
	require.NoError(t, err)
	v2, err := svc.Generate(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 64)
}

func TestMockEmbeddingServiceDistinctInputsDiffer(t *testing.T) {
	svc := NewMockEmbeddingService(config.EmbeddingsConfig{Dimensions: 32})

	v1, err := svc.Generate(context.Background(), "alpha")
	require.NoError(t, err)
	v2, err := svc.Generate(context.Background(), "beta")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestMockEmbeddingServiceBatch(t *testing.T) {
	svc := NewMockEmbeddingService(config.EmbeddingsConfig{Dimensions: 16})

	out, err := svc.GenerateBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, v := range out {
		assert.Len(t, v, 16)
	}
}

func TestMockEmbeddingServiceDefaultsDimensions(t *testing.T) {
	svc := NewMockEmbeddingService(config.EmbeddingsConfig{})
	assert.Equal(t, 1536, svc.GetDimensions())
}
