package reranker

import (
	"context"
	"testing"

	"memoria/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexicalRerankerScoreIdenticalText(t *testing.T) {
	r := NewLexicalReranker()
	score, err := r.Score(context.Background(), "error in getUserById", "error in getUserById")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestLexicalRerankerScoreDisjointText(t *testing.T) {
	r := NewLexicalReranker()
	score, err := r.Score(context.Background(), "apples and oranges", "xylophone zebra")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestLexicalRerankerScoreBatchPreservesOrder(t *testing.T) {
	r := NewLexicalReranker()
	scores, err := r.ScoreBatch(context.Background(), "error implementation", []string{
		"error implementation details",
		"completely unrelated text",
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Greater(t, scores[0], scores[1])
}

func TestNewFallsBackToLexicalWithoutEndpoint(t *testing.T) {
	rr, err := New(config.RerankerConfig{Enabled: true, Model: "test-model"}, "")
	require.NoError(t, err)
	_, ok := rr.(*LexicalReranker)
	assert.True(t, ok)
}
