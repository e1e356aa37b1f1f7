package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"memoria/internal/similarity"
	"memoria/pkg/types"
)

// MemoryStore is an in-memory VectorStore, used by the "memory" provider
// and by every component's unit tests. Grounded on the teacher's
// mock_store.go (a mutex-guarded map standing in for the real backend).
type MemoryStore struct {
	mu   sync.RWMutex
	data map[types.CollectionType]map[string]*types.Chunk
	calc *similarity.Calculator
}

// NewMemoryStore returns an empty, ready-to-use store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: map[types.CollectionType]map[string]*types.Chunk{
			types.CollectionShortTerm: {},
			types.CollectionLongTerm:  {},
		},
		calc: similarity.New(),
	}
}

func (m *MemoryStore) Initialize(ctx context.Context) error { return nil }

func (m *MemoryStore) bucket(collection types.CollectionType) map[string]*types.Chunk {
	b, ok := m.data[collection]
	if !ok {
		b = make(map[string]*types.Chunk)
		m.data[collection] = b
	}
	return b
}

func (m *MemoryStore) Store(ctx context.Context, collection types.CollectionType, chunk *types.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *chunk
	m.bucket(collection)[chunk.ID] = &cp
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, collection types.CollectionType, queryEmbedding []float32, limit int) ([]types.SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []types.SearchHit
	for _, c := range m.bucket(collection) {
		score := m.calc.Cosine(queryEmbedding, c.Embedding)
		hits = append(hits, types.SearchHit{Chunk: *c, Score: score, Collection: collection})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryStore) SearchByMetadata(ctx context.Context, collection types.CollectionType, filter map[string]string, limit int) ([]types.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Chunk
	for _, c := range m.bucket(collection) {
		if matchesFilter(c, filter) {
			out = append(out, *c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesFilter(c *types.Chunk, filter map[string]string) bool {
	for k, v := range filter {
		switch k {
		case "document_id":
			if c.Metadata.DocumentID != v {
				return false
			}
		case "memory_id":
			if c.Metadata.MemoryID != v {
				return false
			}
		case "document_type":
			if c.Metadata.DocumentType != v {
				return false
			}
		default:
			if c.Metadata.Extra[k] != v {
				return false
			}
		}
	}
	return true
}

func (m *MemoryStore) GetByID(ctx context.Context, collection types.CollectionType, id string) (*types.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.bucket(collection)[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection types.CollectionType, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bucket(collection), id)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, collection types.CollectionType, chunk *types.Chunk) error {
	return m.Store(ctx, collection, chunk)
}

func (m *MemoryStore) HealthCheck(ctx context.Context) error { return nil }

func (m *MemoryStore) GetStats(ctx context.Context, collection types.CollectionType) (*StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.bucket(collection)
	stats := &StoreStats{ChunksByTier: map[string]int64{}}
	var oldest, newest *time.Time
	for _, c := range bucket {
		stats.TotalChunks++
		stats.ChunksByTier[string(c.Metadata.TTLTier)]++
		ts := c.Metadata.Timestamp
		if oldest == nil || ts.Before(*oldest) {
			oldest = &ts
		}
		if newest == nil || ts.After(*newest) {
			newest = &ts
		}
	}
	if oldest != nil {
		s := oldest.Format(time.RFC3339)
		stats.OldestChunk = &s
	}
	if newest != nil {
		s := newest.Format(time.RFC3339)
		stats.NewestChunk = &s
	}
	return stats, nil
}

func (m *MemoryStore) Cleanup(ctx context.Context, collection types.CollectionType, retentionDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	bucket := m.bucket(collection)
	removed := 0
	for id, c := range bucket {
		if c.Metadata.PermanentFlag {
			continue
		}
		if c.Metadata.Timestamp.Before(cutoff) {
			delete(bucket, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) BatchStore(ctx context.Context, collection types.CollectionType, chunks []*types.Chunk) (*BatchResult, error) {
	res := &BatchResult{}
	for _, c := range chunks {
		if err := m.Store(ctx, collection, c); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Success++
		res.ProcessedIDs = append(res.ProcessedIDs, c.ID)
	}
	return res, nil
}

func (m *MemoryStore) BatchDelete(ctx context.Context, collection types.CollectionType, ids []string) (*BatchResult, error) {
	res := &BatchResult{}
	for _, id := range ids {
		if err := m.Delete(ctx, collection, id); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Success++
		res.ProcessedIDs = append(res.ProcessedIDs, id)
	}
	return res, nil
}

func (m *MemoryStore) CountByCollection(ctx context.Context, collection types.CollectionType) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bucket(collection)), nil
}

func (m *MemoryStore) AllIDs(ctx context.Context, collection types.CollectionType) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.bucket(collection)))
	for id := range m.bucket(collection) {
		ids = append(ids, id)
	}
	return ids, nil
}
