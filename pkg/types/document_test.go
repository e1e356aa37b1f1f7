package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryIDShape(t *testing.T) {
	id := NewMemoryID(CollectionShortTerm, time.Unix(1700000000, 0))
	assert.Contains(t, id, "short_term_")
	assert.Len(t, id, len("short_term_1700000000000_")+4)
}

func TestChunkIDFormat(t *testing.T) {
	assert.Equal(t, "doc1_chunk_3", ChunkID("doc1", 3))
}

func TestChunkValidate(t *testing.T) {
	c := &Chunk{
		ID: "doc1_chunk_0",
		Metadata: ChunkMetadata{
			ChunkIndex:      0,
			TotalChunks:     2,
			ImportanceScore: 0.5,
			DocumentStart:   true,
			DocumentEnd:     false,
		},
	}
	require.NoError(t, c.Validate())

	bad := *c
	bad.Metadata.ChunkIndex = 2
	assert.Error(t, bad.Validate())

	badScore := *c
	badScore.Metadata.ImportanceScore = 1.5
	assert.Error(t, badScore.Validate())
}

func TestShouldExpire(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	permanent := &ChunkMetadata{PermanentFlag: true}
	assert.False(t, permanent.ShouldExpire(now))

	expired := &ChunkMetadata{TTLExpiry: &past}
	assert.True(t, expired.ShouldExpire(now))

	notYet := &ChunkMetadata{TTLExpiry: &future}
	assert.False(t, notYet.ShouldExpire(now))

	noExpiry := &ChunkMetadata{}
	assert.False(t, noExpiry.ShouldExpire(now))
}

func TestFlattenCallerMetadata(t *testing.T) {
	out := FlattenCallerMetadata(map[string]interface{}{
		"str":  "hello",
		"num":  float64(3),
		"flag": true,
		"nil":  nil,
		"list": []string{"a", "b"},
	})
	assert.Equal(t, "hello", out["str"])
	assert.Equal(t, "3", out["num"])
	assert.Equal(t, "true", out["flag"])
	assert.Equal(t, "", out["nil"])
	assert.Equal(t, `["a","b"]`, out["list"])
}

func TestMorePermanent(t *testing.T) {
	assert.Equal(t, TTLPermanent, MorePermanent(TTLHighFrequency, TTLPermanent))
	assert.Equal(t, TTLStatic, MorePermanent(TTLStatic, TTLLowFrequency))
}
