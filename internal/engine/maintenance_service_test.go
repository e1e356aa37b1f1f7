package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"memoria/internal/config"
	"memoria/internal/dedup"
	"memoria/internal/logging"
	"memoria/internal/mergehistory"
	"memoria/internal/relationships"
	"memoria/internal/storage"
	"memoria/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAgedDocument(t *testing.T, vs storage.VectorStore, docID string, importance float64, accessCount int, age time.Duration, embedding []float32) {
	t.Helper()
	ts := time.Now().Add(-age)
	chunk := &types.Chunk{
		ID:        docID + "_chunk_0",
		Text:      docID + " unique body text",
		Embedding: embedding,
		Metadata: types.ChunkMetadata{
			ChunkID: docID + "_chunk_0", DocumentID: docID, MemoryID: docID,
			ChunkIndex: 0, TotalChunks: 1, DocumentStart: true, DocumentEnd: true,
			CollectionType: types.CollectionShortTerm, ImportanceScore: importance,
			AccessCount: accessCount, Timestamp: ts, LastAccessed: ts,
		},
	}
	require.NoError(t, vs.Store(context.Background(), types.CollectionShortTerm, chunk))
}

func TestMaintainShortTermNoOpBelowMaxSize(t *testing.T) {
	vs := storage.NewMemoryStore()
	mgmt := config.ManagementConfig{ShortTermMaxSize: 100}
	svc := NewMaintenanceService(vs, nil, nil, mgmt, logging.NewNoOpLogger())
	seedAgedDocument(t, vs, "doc1", 0.5, 0, time.Hour, []float32{1, 0, 0})

	report, err := svc.MaintainShortTerm(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Triggered)
}

func TestMaintainShortTermAgeBasedFallbackRemovesOldest(t *testing.T) {
	vs := storage.NewMemoryStore()
	graph := relationships.New(vs, 50)
	hist := mergehistory.New(vs, 1000)
	dedupCfg := config.DedupConfig{Enabled: true, BoostThreshold: 0.99, MergeThreshold: 0.99, SimilarityThreshold: 0.99}
	deduplicator := dedup.New(vs, graph, hist, dedupCfg, logging.NewNoOpLogger())
	mgmt := config.ManagementConfig{ShortTermMaxSize: 5, SemanticSimilarityThreshold: 0.99}
	svc := NewMaintenanceService(vs, deduplicator, graph, mgmt, logging.NewNoOpLogger())

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		docID := fmt.Sprintf("doc%d", i)
		embedding := make([]float32, 8)
		embedding[i%8] = 1
		age := time.Duration(6-i) * time.Hour
		seedAgedDocument(t, vs, docID, 0.3, 0, age, embedding)
	}

	report, err := svc.MaintainShortTerm(ctx)
	require.NoError(t, err)
	assert.True(t, report.Triggered)

	count, err := vs.CountByCollection(ctx, types.CollectionShortTerm)
	require.NoError(t, err)
	assert.LessOrEqual(t, count, report.TargetCount+1)
}
