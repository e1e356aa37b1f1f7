package engine

import (
	"context"
	"testing"
	"time"

	"memoria/internal/logging"
	"memoria/internal/relationships"
	"memoria/internal/storage"
	"memoria/internal/ttl"
	"memoria/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDocument(t *testing.T, vs storage.VectorStore, collection types.CollectionType, docID string, importance float64) {
	t.Helper()
	chunk := &types.Chunk{
		ID: docID + "_chunk_0",
		Text: "seed text",
		Metadata: types.ChunkMetadata{
			ChunkID: docID + "_chunk_0", DocumentID: docID, MemoryID: docID,
			ChunkIndex: 0, TotalChunks: 1, DocumentStart: true, DocumentEnd: true,
			CollectionType: collection, ImportanceScore: importance, Timestamp: time.Now(),
		},
	}
	require.NoError(t, vs.Store(context.Background(), collection, chunk))
}

func TestDeleteDocumentRemovesAllChunks(t *testing.T) {
	vs := storage.NewMemoryStore()
	graph := relationships.New(vs, 50)
	svc := NewUpdateService(vs, graph, nil, nil, logging.NewNoOpLogger())
	seedDocument(t, vs, types.CollectionShortTerm, "doc1", 0.5)

	result, err := svc.DeleteDocument(context.Background(), "doc1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ChunksDeleted)

	count, err := vs.CountByCollection(context.Background(), types.CollectionShortTerm)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDeleteDocumentNotFound(t *testing.T) {
	vs := storage.NewMemoryStore()
	svc := NewUpdateService(vs, nil, nil, nil, logging.NewNoOpLogger())
	_, err := svc.DeleteDocument(context.Background(), "missing")
	require.Error(t, err)
}

func TestUpdateImportanceRecomputesTTL(t *testing.T) {
	vs := storage.NewMemoryStore()
	cfg := testLifecycleConfig()
	ttlMgr := ttl.New(cfg)
	svc := NewUpdateService(vs, nil, ttlMgr, nil, logging.NewNoOpLogger())
	seedDocument(t, vs, types.CollectionShortTerm, "doc1", 0.1)

	result, err := svc.UpdateImportance(context.Background(), "doc1", 0.8, "manual_review")
	require.NoError(t, err)
	assert.Equal(t, 0.1, result.OldImportance)
	assert.Equal(t, 0.8, result.NewImportance)
	assert.Equal(t, types.TTLStatic, result.TTLTier)

	chunks, err := vs.SearchByMetadata(context.Background(), types.CollectionShortTerm, map[string]string{"document_id": "doc1"}, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "manual_review", chunks[0].Metadata.ImportanceChangeReason)
}

func TestUpdateImportanceRejectsOutOfRange(t *testing.T) {
	vs := storage.NewMemoryStore()
	svc := NewUpdateService(vs, nil, nil, nil, logging.NewNoOpLogger())
	_, err := svc.UpdateImportance(context.Background(), "doc1", 1.5, "")
	require.Error(t, err)
}

func TestUpdateMetadataMergesExtra(t *testing.T) {
	vs := storage.NewMemoryStore()
	svc := NewUpdateService(vs, nil, nil, nil, logging.NewNoOpLogger())
	seedDocument(t, vs, types.CollectionLongTerm, "doc1", 0.5)

	err := svc.UpdateMetadata(context.Background(), "doc1_chunk_0", map[string]string{"label": "reviewed"})
	require.NoError(t, err)

	chunk, err := vs.GetByID(context.Background(), types.CollectionLongTerm, "doc1_chunk_0")
	require.NoError(t, err)
	assert.Equal(t, "reviewed", chunk.Metadata.Extra["label"])
}
