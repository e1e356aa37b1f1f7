package engine

import (
	"context"
	"testing"

	"memoria/internal/chunking"
	"memoria/internal/config"
	"memoria/internal/dedup"
	"memoria/internal/embeddings"
	"memoria/internal/logging"
	"memoria/internal/mergehistory"
	"memoria/internal/relationships"
	"memoria/internal/scoring"
	"memoria/internal/storage"
	"memoria/pkg/types"

	"github.com/stretchr/testify/require"
)

func newTestStorageService(t *testing.T) (*StorageService, storage.VectorStore) {
	t.Helper()
	vs := storage.NewMemoryStore()
	embed := embeddings.NewMockEmbeddingService(config.EmbeddingsConfig{Dimensions: 16})
	scorer := scoring.New(config.ScoringConfig{
		LengthNormalization: 500,
		MaxLengthScore:      0.3,
		NonImportantCap:     0.94,
		PermanenceBoosts:    map[string]float64{"critical": 0.9},
	})
	graph := relationships.New(vs, 50)
	hist := mergehistory.New(vs, 1000)
	dedupCfg := config.DedupConfig{Enabled: true, BoostThreshold: 0.99, MergeThreshold: 0.97, SimilarityThreshold: 0.95}
	deduplicator := dedup.New(vs, graph, hist, dedupCfg, logging.NewNoOpLogger())
	mgmt := config.ManagementConfig{ShortTermThreshold: 0.3, LongTermThreshold: 0.9, SemanticSimilarityThreshold: 0.8}
	chunkCfg := chunking.Config{ChunkSize: 1000, ChunkOverlap: 50, Language: chunking.LanguagePlain}

	svc := NewStorageService(vs, embed, scorer, deduplicator, graph, nil, mgmt, chunkCfg, logging.NewNoOpLogger())
	return svc, vs
}

func TestIngestAddsNewDocumentToShortTerm(t *testing.T) {
	svc, vs := newTestStorageService(t)
	ctx := context.Background()

	report, err := svc.Ingest(ctx, &types.Document{Content: "the quick brown fox jumps over the lazy dog", MemoryType: types.MemoryTypeAuto})
	require.NoError(t, err)
	require.Equal(t, ActionAdded, report.Action)
	require.Equal(t, types.CollectionShortTerm, report.AssignedTier)
	require.Equal(t, 1, report.ChunksAdded)

	count, err := vs.CountByCollection(ctx, types.CollectionShortTerm)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestIngestRoutesHighImportanceToLongTerm(t *testing.T) {
	svc, _ := newTestStorageService(t)
	ctx := context.Background()

	report, err := svc.Ingest(ctx, &types.Document{Content: "critical production security vulnerability decision", MemoryType: types.MemoryTypeAuto})
	require.NoError(t, err)
	require.Equal(t, types.CollectionLongTerm, report.AssignedTier)
}

func TestIngestExplicitMemoryTypeOverridesRouting(t *testing.T) {
	svc, _ := newTestStorageService(t)
	ctx := context.Background()

	report, err := svc.Ingest(ctx, &types.Document{Content: "trivial note", MemoryType: types.MemoryTypeLongTerm})
	require.NoError(t, err)
	require.Equal(t, types.CollectionLongTerm, report.AssignedTier)
}

func TestIngestRejectsEmptyContent(t *testing.T) {
	svc, _ := newTestStorageService(t)
	_, err := svc.Ingest(context.Background(), &types.Document{Content: ""})
	require.Error(t, err)
}

func TestIngestChunksLongDocumentWithAdjacency(t *testing.T) {
	svc, _ := newTestStorageService(t)
	ctx := context.Background()

	long := ""
	for i := 0; i < 50; i++ {
		long += "this is a moderately long sentence used to pad out the document content. "
	}
	report, err := svc.Ingest(ctx, &types.Document{Content: long, MemoryType: types.MemoryTypeShortTerm})
	require.NoError(t, err)
	require.Greater(t, report.ChunksAdded, 1)
}

func TestIngestDuplicateBoostsExistingDocument(t *testing.T) {
	svc, vs := newTestStorageService(t)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, &types.Document{Content: "identical repeated content for dedup test", MemoryType: types.MemoryTypeShortTerm})
	require.NoError(t, err)

	second, err := svc.Ingest(ctx, &types.Document{Content: "identical repeated content for dedup test", MemoryType: types.MemoryTypeShortTerm})
	require.NoError(t, err)
	require.Equal(t, ActionBoostedExisting, second.Action)
	require.Equal(t, 0, second.ChunksAdded)

	count, err := vs.CountByCollection(ctx, types.CollectionShortTerm)
	require.NoError(t, err)
	require.Equal(t, first.ChunksAdded, count)
}
