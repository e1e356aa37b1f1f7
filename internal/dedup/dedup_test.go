package dedup

import (
	"context"
	"testing"
	"time"

	"memoria/internal/config"
	"memoria/internal/storage"
	"memoria/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCfg() config.DedupConfig {
	return config.DedupConfig{
		Enabled:             true,
		BoostThreshold:      0.95,
		MergeThreshold:      0.85,
		SimilarityThreshold: 0.95,
		Collections:         []string{"short_term", "long_term"},
	}
}

func seedChunk(t *testing.T, vs storage.VectorStore, id, docID string, embedding []float32, importance float64) *types.Chunk {
	t.Helper()
	c := &types.Chunk{
		ID:        id,
		Text:      "content for " + docID,
		Embedding: embedding,
		Metadata: types.ChunkMetadata{
			ChunkID:        id,
			DocumentID:     docID,
			MemoryID:       docID,
			ChunkIndex:     0,
			TotalChunks:    1,
			CollectionType: types.CollectionShortTerm,
			ImportanceScore: importance,
			AccessCount:    1,
			Timestamp:      time.Now(),
			LastAccessed:   time.Now(),
			DocumentStart:  true,
			DocumentEnd:    true,
			TTLTier:        types.TTLStatic,
		},
	}
	require.NoError(t, vs.Store(context.Background(), types.CollectionShortTerm, c))
	return c
}

func TestProbeAddNewWhenStoreEmpty(t *testing.T) {
	vs := storage.NewMemoryStore()
	d := New(vs, nil, nil, testCfg(), nil)

	res := d.Probe(context.Background(), types.CollectionShortTerm, []float32{1, 0, 0})
	assert.Equal(t, ActionAddNew, res.Action)
}

func TestProbeBoostExistingAboveBoostThreshold(t *testing.T) {
	vs := storage.NewMemoryStore()
	seedChunk(t, vs, "c1", "doc-1", []float32{1, 0, 0}, 0.5)
	d := New(vs, nil, nil, testCfg(), nil)

	res := d.Probe(context.Background(), types.CollectionShortTerm, []float32{1, 0, 0})
	require.Equal(t, ActionBoostExisting, res.Action)
	require.NotNil(t, res.Target)
	assert.Equal(t, "c1", res.Target.ID)
}

func TestProbeMergeContentBetweenThresholds(t *testing.T) {
	vs := storage.NewMemoryStore()
	seedChunk(t, vs, "c1", "doc-1", []float32{1, 0.4, 0}, 0.5)
	d := New(vs, nil, nil, testCfg(), nil)

	res := d.Probe(context.Background(), types.CollectionShortTerm, []float32{1, 0, 0})
	assert.Equal(t, ActionMergeContent, res.Action)
}

func TestBoostExistingClampsAndIncrements(t *testing.T) {
	vs := storage.NewMemoryStore()
	c := seedChunk(t, vs, "c1", "doc-1", []float32{1, 0, 0}, 0.92)
	d := New(vs, nil, nil, testCfg(), nil)

	require.NoError(t, d.BoostExisting(context.Background(), types.CollectionShortTerm, c, 0.6))

	assert.InDelta(t, 0.97, c.Metadata.ImportanceScore, 1e-9)
	assert.Equal(t, 2, c.Metadata.AccessCount)
	assert.Equal(t, 1, c.Metadata.DuplicateBoostCount)

	stored, err := vs.GetByID(context.Background(), types.CollectionShortTerm, "c1")
	require.NoError(t, err)
	assert.InDelta(t, 0.97, stored.Metadata.ImportanceScore, 1e-9)
}

func TestBoostExistingClampsToOne(t *testing.T) {
	vs := storage.NewMemoryStore()
	c := seedChunk(t, vs, "c1", "doc-1", []float32{1, 0, 0}, 0.98)
	d := New(vs, nil, nil, testCfg(), nil)

	require.NoError(t, d.BoostExisting(context.Background(), types.CollectionShortTerm, c, 0.5))
	assert.Equal(t, 1.0, c.Metadata.ImportanceScore)
}

func TestDeduplicateCollectionDryRunReportsWithoutMutating(t *testing.T) {
	vs := storage.NewMemoryStore()
	seedChunk(t, vs, "c1", "doc-1", []float32{1, 0, 0}, 0.5)
	seedChunk(t, vs, "c2", "doc-2", []float32{1, 0, 0}, 0.6)
	d := New(vs, nil, nil, testCfg(), nil)

	report, err := d.DeduplicateCollection(context.Background(), types.CollectionShortTerm, true)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Len(t, report.Candidates, 1)
	assert.Equal(t, 0, report.MergedCount)

	n, err := vs.CountByCollection(context.Background(), types.CollectionShortTerm)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDeduplicateCollectionMergesDuplicates(t *testing.T) {
	vs := storage.NewMemoryStore()
	seedChunk(t, vs, "c1", "doc-1", []float32{1, 0, 0}, 0.4)
	seedChunk(t, vs, "c2", "doc-2", []float32{1, 0, 0}, 0.9)
	d := New(vs, nil, nil, testCfg(), nil)

	report, err := d.DeduplicateCollection(context.Background(), types.CollectionShortTerm, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.MergedCount)

	n, err := vs.CountByCollection(context.Background(), types.CollectionShortTerm)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	survivor, err := vs.GetByID(context.Background(), types.CollectionShortTerm, "c2")
	require.NoError(t, err)
	require.NotNil(t, survivor)
	assert.Equal(t, 0.9, survivor.Metadata.ImportanceScore)
	assert.Contains(t, survivor.Metadata.DuplicateSources, "doc-1")
}

func TestMergerPickWinnerByImportanceThenAccessThenRecency(t *testing.T) {
	now := time.Now()
	a := &types.Chunk{ID: "a", Metadata: types.ChunkMetadata{DocumentID: "doc-a", ImportanceScore: 0.8, AccessCount: 1, Timestamp: now}}
	b := &types.Chunk{ID: "b", Metadata: types.ChunkMetadata{DocumentID: "doc-b", ImportanceScore: 0.6, AccessCount: 5, Timestamp: now}}

	winner, loser := pickWinner(a, b)
	assert.Equal(t, "a", winner.ID)
	assert.Equal(t, "b", loser.ID)
}

func TestMergerMergeDeletesLoserAndSumsAccessCount(t *testing.T) {
	vs := storage.NewMemoryStore()
	a := seedChunk(t, vs, "a", "doc-a", []float32{1, 0, 0}, 0.4)
	b := seedChunk(t, vs, "b", "doc-b", []float32{1, 0, 0}, 0.9)

	m := NewMerger(vs, nil, nil)
	survivorID, loserID, err := m.Merge(context.Background(), types.CollectionShortTerm, a, b, 0.96)
	require.NoError(t, err)
	assert.Equal(t, "doc-b", survivorID)
	assert.Equal(t, "doc-a", loserID)

	gone, err := vs.GetByID(context.Background(), types.CollectionShortTerm, "a")
	require.NoError(t, err)
	assert.Nil(t, gone)

	survivor, err := vs.GetByID(context.Background(), types.CollectionShortTerm, "b")
	require.NoError(t, err)
	require.NotNil(t, survivor)
	assert.Equal(t, 2, survivor.Metadata.AccessCount)
}
