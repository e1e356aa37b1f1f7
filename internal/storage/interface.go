// Package storage provides the vector-store contract (spec.md §6) and its
// implementations: an in-memory store for tests and the "memory" provider,
// and a qdrant-backed store for production.
package storage

import (
	"context"

	"memoria/pkg/types"
)

// VectorStore is the collection abstraction every engine component talks
// to. A collection is named by types.CollectionType ("short_term" or
// "long_term"); implementations own the mapping from collection to
// physical storage (a qdrant collection, a sqlite table, ...).
type VectorStore interface {
	Initialize(ctx context.Context) error

	// Store persists a chunk (with its embedding) into collection.
	Store(ctx context.Context, collection types.CollectionType, chunk *types.Chunk) error

	// Search returns the nearest chunks to queryEmbedding in collection.
	Search(ctx context.Context, collection types.CollectionType, queryEmbedding []float32, limit int) ([]types.SearchHit, error)

	// SearchByMetadata returns chunks whose metadata matches filter exactly
	// on every key (used for the merge-history system document and
	// document-id/memory-id lookups).
	SearchByMetadata(ctx context.Context, collection types.CollectionType, filter map[string]string, limit int) ([]types.Chunk, error)

	GetByID(ctx context.Context, collection types.CollectionType, id string) (*types.Chunk, error)
	Delete(ctx context.Context, collection types.CollectionType, id string) error
	Update(ctx context.Context, collection types.CollectionType, chunk *types.Chunk) error

	HealthCheck(ctx context.Context) error
	GetStats(ctx context.Context, collection types.CollectionType) (*StoreStats, error)

	// Cleanup removes chunks past retentionDays and returns the count
	// removed.
	Cleanup(ctx context.Context, collection types.CollectionType, retentionDays int) (int, error)

	Close() error

	BatchStore(ctx context.Context, collection types.CollectionType, chunks []*types.Chunk) (*BatchResult, error)
	BatchDelete(ctx context.Context, collection types.CollectionType, ids []string) (*BatchResult, error)

	// CountByCollection reports how many chunks a collection currently
	// holds, without paging through Search (used by MaintenanceService's
	// size-bound trigger).
	CountByCollection(ctx context.Context, collection types.CollectionType) (int, error)

	// AllIDs returns every chunk id in collection, used by
	// RelationshipGraph's cleanup_stale_references full scan.
	AllIDs(ctx context.Context, collection types.CollectionType) ([]string, error)
}

// StoreStats mirrors spec.md's get_memory_stats tool output.
type StoreStats struct {
	TotalChunks  int64            `json:"total_chunks"`
	ChunksByTier map[string]int64 `json:"chunks_by_tier"`
	OldestChunk  *string          `json:"oldest_chunk,omitempty"`
	NewestChunk  *string          `json:"newest_chunk,omitempty"`
	StorageSize  int64            `json:"storage_size_bytes"`
}

// BatchResult reports per-item outcome of a batch store/delete.
type BatchResult struct {
	Success      int      `json:"success"`
	Failed       int      `json:"failed"`
	Errors       []string `json:"errors,omitempty"`
	ProcessedIDs []string `json:"processed_ids,omitempty"`
}
