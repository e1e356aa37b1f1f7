package mcp

import (
	"context"
	"testing"

	"memoria/internal/config"
	"memoria/internal/embeddings"
	"memoria/internal/engine"
	"memoria/internal/logging"
	"memoria/internal/reranker"
	"memoria/internal/storage"
	"memoria/pkg/types"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	vs := storage.NewMemoryStore()
	embed := embeddings.NewMockEmbeddingService(cfg.Embeddings)
	rerank := reranker.NewLexicalReranker()

	eng, err := engine.New(cfg, vs, embed, rerank, logging.NewNoOpLogger())
	require.NoError(t, err)

	return NewServer(cfg, vs, eng, logging.NewNoOpLogger())
}

func TestHandleAddDocumentThenQuery(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	addResult, err := s.handleAddDocument(ctx, map[string]interface{}{
		"content": "the quarterly roadmap review decision",
	})
	require.NoError(t, err)
	added := addResult.(map[string]interface{})
	require.NotEmpty(t, added["document_id"])

	queryResult, err := s.handleQueryDocuments(ctx, map[string]interface{}{
		"query": "roadmap review",
	})
	require.NoError(t, err)
	resp := queryResult.(*types.SearchResponse)
	require.Greater(t, resp.TotalResults, 0)
}

func TestHandleAddDocumentRejectsMissingContent(t *testing.T) {
	s := newTestServer(t)
	_, err := s.handleAddDocument(context.Background(), map[string]interface{}{})
	require.Error(t, err)
}

func TestHandleDeleteDocumentRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	addResult, err := s.handleAddDocument(ctx, map[string]interface{}{
		"content": "a document that will be deleted shortly",
	})
	require.NoError(t, err)
	documentID := addResult.(map[string]interface{})["document_id"].(string)

	delResult, err := s.handleDeleteDocument(ctx, map[string]interface{}{
		"document_id": documentID,
		"confirm":     true,
	})
	require.NoError(t, err)
	require.Equal(t, true, delResult.(map[string]interface{})["success"])
}

func TestHandleGetMemoryStatsReportsBothTiers(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleGetMemoryStats(context.Background(), nil)
	require.NoError(t, err)
	stats := result.(map[string]interface{})
	require.Contains(t, stats, "short_term")
	require.Contains(t, stats, "long_term")
}

func TestHandlePreviewDuplicatesRequiresCollection(t *testing.T) {
	s := newTestServer(t)
	_, err := s.handlePreviewDuplicates(context.Background(), map[string]interface{}{})
	require.Error(t, err)
}

func TestHandleCleanupExpiredMemoriesRejectsBadCollection(t *testing.T) {
	s := newTestServer(t)
	_, err := s.handleCleanupExpiredMemories(context.Background(), map[string]interface{}{
		"collection": "not_a_real_tier",
	})
	require.Error(t, err)
}
