package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func unit(v ...float32) []float32 { return v }

func TestCosineIdentical(t *testing.T) {
	c := New()
	assert.InDelta(t, 1.0, c.Cosine(unit(1, 0), unit(1, 0)), 1e-9)
}

func TestCosineOrthogonal(t *testing.T) {
	c := New()
	assert.InDelta(t, 0.0, c.Cosine(unit(1, 0), unit(0, 1)), 1e-9)
}

func TestCosineSkipsEmpty(t *testing.T) {
	c := New()
	assert.Equal(t, 0.0, c.Cosine(nil, unit(1, 0)))
	assert.Equal(t, 1, c.Skipped())
}

func TestFindDuplicatesBatch(t *testing.T) {
	c := New()
	docs := [][]float32{unit(1, 0), unit(1, 0), unit(0, 1)}
	pairs := c.FindDuplicatesBatch(docs, 0.99)
	assert.Len(t, pairs, 1)
	assert.Equal(t, 0, pairs[0].I)
	assert.Equal(t, 1, pairs[0].J)
}

func TestTopKCandidates(t *testing.T) {
	c := New()
	target := unit(1, 0)
	pool := [][]float32{unit(0, 1), unit(1, 0), unit(0.9, 0.1)}
	got := c.TopKCandidates(target, pool, 2, 0.5)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Index)
}

func TestCluster(t *testing.T) {
	c := New()
	docs := [][]float32{unit(1, 0), unit(0.99, 0.01), unit(0, 1)}
	clusters := c.Cluster(docs, 0.95)
	assert.Len(t, clusters, 2)
}
