package relationships

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/storage"
	"memoria/pkg/types"
)

func newTestChunk(id, docID string, index, total int) *types.Chunk {
	return &types.Chunk{
		ID:      id,
		Text:    "hello world foo bar",
		Metadata: types.ChunkMetadata{
			ChunkID:     id,
			DocumentID:  docID,
			MemoryID:    docID,
			ChunkIndex:  index,
			TotalChunks: total,
			Timestamp:   time.Now(),
		},
	}
}

func TestRegisterDocumentBuildsAdjacency(t *testing.T) {
	store := storage.NewMemoryStore()
	g := New(store, 50)

	c0 := newTestChunk("doc1_chunk_0", "doc1", 0, 3)
	c1 := newTestChunk("doc1_chunk_1", "doc1", 1, 3)
	c2 := newTestChunk("doc1_chunk_2", "doc1", 2, 3)
	chunks := []*types.Chunk{c0, c1, c2}

	g.RegisterDocument(&types.DocumentRelationshipRecord{
		DocumentID: "doc1",
		ChunkCount: 3,
		ChunkIDs:   []string{c0.ID, c1.ID, c2.ID},
	}, chunks)

	rec, ok := g.chunkRelationships[c1.ID]
	require.True(t, ok)
	assert.Equal(t, c0.ID, rec.ComplexRelationships.Previous)
	assert.Equal(t, c2.ID, rec.ComplexRelationships.Next)
}

func TestRetrieveRelatedReturnsAdjacency(t *testing.T) {
	store := storage.NewMemoryStore()
	g := New(store, 50)
	ctx := context.Background()

	c0 := newTestChunk("doc1_chunk_0", "doc1", 0, 3)
	c1 := newTestChunk("doc1_chunk_1", "doc1", 1, 3)
	c2 := newTestChunk("doc1_chunk_2", "doc1", 2, 3)
	chunks := []*types.Chunk{c0, c1, c2}

	g.RegisterDocument(&types.DocumentRelationshipRecord{
		DocumentID: "doc1",
		ChunkIDs:   []string{c0.ID, c1.ID, c2.ID},
	}, chunks)

	related, err := g.RetrieveRelated(ctx, c1.ID, 2)
	require.NoError(t, err)
	assert.NotEmpty(t, related)
	for _, edge := range related {
		assert.Equal(t, types.EdgeAdjacency, edge.Source)
	}
}

func TestAddEdgeLockedBoundsPerChunk(t *testing.T) {
	store := storage.NewMemoryStore()
	g := New(store, 2)

	c0 := newTestChunk("doc1_chunk_0", "doc1", 0, 1)
	g.RegisterDocument(&types.DocumentRelationshipRecord{DocumentID: "doc1", ChunkIDs: []string{c0.ID}}, []*types.Chunk{c0})

	rec := g.chunkRelationships[c0.ID]
	g.mu.Lock()
	g.addEdgeLocked(rec, types.RelatedChunkEdge{ChunkID: "a", Source: types.EdgeSemantic, Score: 0.1})
	g.addEdgeLocked(rec, types.RelatedChunkEdge{ChunkID: "b", Source: types.EdgeSemantic, Score: 0.9})
	g.addEdgeLocked(rec, types.RelatedChunkEdge{ChunkID: "c", Source: types.EdgeSemantic, Score: 0.5})
	g.mu.Unlock()

	assert.Len(t, rec.RelatedChunks, 2)
	assert.Equal(t, "b", rec.RelatedChunks[0].ChunkID)
}

func TestPersistRoundTrips(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Initialize(ctx))

	g := New(store, 50)
	c0 := newTestChunk("doc1_chunk_0", "doc1", 0, 1)
	require.NoError(t, store.Store(ctx, types.CollectionShortTerm, c0))
	g.RegisterDocument(&types.DocumentRelationshipRecord{DocumentID: "doc1", ChunkIDs: []string{c0.ID}}, []*types.Chunk{c0})

	require.NoError(t, g.Persist(ctx, types.CollectionShortTerm, c0))

	got, err := store.GetByID(ctx, types.CollectionShortTerm, c0.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.Metadata.RelatedChunksData)
}

func TestCleanupStaleReferencesRemovesAbsentIDs(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	g := New(store, 50)

	c0 := newTestChunk("doc1_chunk_0", "doc1", 0, 1)
	g.RegisterDocument(&types.DocumentRelationshipRecord{DocumentID: "doc1", ChunkIDs: []string{c0.ID}}, []*types.Chunk{c0})

	rec := g.chunkRelationships[c0.ID]
	g.mu.Lock()
	g.addEdgeLocked(rec, types.RelatedChunkEdge{ChunkID: "ghost", Source: types.EdgeSemantic, Score: 0.5})
	g.mu.Unlock()

	require.NoError(t, g.CleanupStaleReferences(ctx, []string{"ghost"}))
	assert.Empty(t, rec.RelatedChunks)
}
