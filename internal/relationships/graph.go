// Package relationships implements the RelationshipGraph (spec.md §4.6): an
// in-memory cache of chunk/document adjacency, semantic, co-occurrence, and
// dedup-lineage edges, durable as JSON blobs in the vector store's per-chunk
// metadata plus a single "system document" for merge history.
package relationships

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"memoria/internal/similarity"
	"memoria/internal/storage"
	"memoria/pkg/types"
)

// Graph is the RelationshipGraph collaborator (C6). Safe for concurrent use.
type Graph struct {
	mu                  sync.Mutex
	chunkRelationships  map[string]*types.ChunkRelationshipRecord
	documentRelationships map[string]*types.DocumentRelationshipRecord

	store      storage.VectorStore
	calc       *similarity.Calculator
	maxPerChunk int
}

// New builds a Graph backed by store. maxPerChunk bounds
// related_chunks_data (spec.md's MAX_RELATIONSHIPS_PER_CHUNK, default 50).
func New(store storage.VectorStore, maxPerChunk int) *Graph {
	if maxPerChunk <= 0 {
		maxPerChunk = 50
	}
	return &Graph{
		chunkRelationships:    make(map[string]*types.ChunkRelationshipRecord),
		documentRelationships: make(map[string]*types.DocumentRelationshipRecord),
		store:                 store,
		calc:                  similarity.New(),
		maxPerChunk:           maxPerChunk,
	}
}

// RegisterDocument seeds document_relationships for a freshly-ingested
// document and chunk_relationships with adjacency/context-window bounds for
// each of its chunks (spec.md §4.9 step 7).
func (g *Graph) RegisterDocument(doc *types.DocumentRelationshipRecord, chunks []*types.Chunk) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.documentRelationships[doc.DocumentID] = doc

	for i, c := range chunks {
		rec := &types.ChunkRelationshipRecord{
			ChunkID:              c.ID,
			DocumentID:           c.Metadata.DocumentID,
			ChunkIndex:           c.Metadata.ChunkIndex,
			ContentPreview:       preview(c.Text),
			RelationshipStrength: map[string]float64{},
			ComplexRelationships: types.ComplexRelationships{
				DocumentStart:    c.Metadata.DocumentStart,
				DocumentEnd:      c.Metadata.DocumentEnd,
				RelativePosition: c.Metadata.RelativePosition,
				ContextStart:     c.Metadata.ContextStartChunk,
				ContextEnd:       c.Metadata.ContextEndChunk,
			},
		}
		if i > 0 {
			rec.ComplexRelationships.Previous = chunks[i-1].ID
		}
		if i < len(chunks)-1 {
			rec.ComplexRelationships.Next = chunks[i+1].ID
		}
		g.chunkRelationships[c.ID] = rec
	}
}

func preview(content string) string {
	const maxLen = 160
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen]
}

// AddSemanticEdges probes candidates against chunkID and records an edge
// for every candidate whose cosine similarity meets threshold
// (spec.md §4.6 edge creation, semantic_similarity_threshold).
func (g *Graph) AddSemanticEdges(chunkID string, embedding []float32, candidates []types.Chunk, threshold float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.chunkRelationships[chunkID]
	if !ok {
		return
	}
	for _, cand := range candidates {
		if cand.ID == chunkID {
			continue
		}
		score := float64(g.calc.Cosine(embedding, cand.Embedding))
		if score < threshold {
			continue
		}
		g.addEdgeLocked(rec, types.RelatedChunkEdge{
			ChunkID:          cand.ID,
			Source:           types.EdgeSemantic,
			Score:            score,
			ContextRelevance: score,
		})
	}
}

// AddCoOccurrenceEdges records an edge between chunkID and each candidate
// sharing >= 2 tokens with Jaccard similarity >= 2/union (spec.md §4.6).
func (g *Graph) AddCoOccurrenceEdges(chunkID, content string, candidates []types.Chunk) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.chunkRelationships[chunkID]
	if !ok {
		return
	}
	tokens := tokenSet(content)
	for _, cand := range candidates {
		if cand.ID == chunkID {
			continue
		}
		other := tokenSet(cand.Text)
		shared := intersectionSize(tokens, other)
		if shared < 2 {
			continue
		}
		union := len(tokens) + len(other) - shared
		if union == 0 {
			continue
		}
		jaccard := float64(shared) / float64(union)
		if shared >= 2 && jaccard >= 2.0/float64(union) {
			g.addEdgeLocked(rec, types.RelatedChunkEdge{
				ChunkID: cand.ID,
				Source:  types.EdgeCoOccurrence,
				Score:   jaccard,
			})
		}
	}
}

func tokenSet(content string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(content)) {
		set[tok] = struct{}{}
	}
	return set
}

func intersectionSize(a, b map[string]struct{}) int {
	count := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			count++
		}
	}
	return count
}

// addEdgeLocked appends edge to rec, dropping the lowest-scored edge when
// the list exceeds maxPerChunk. Caller holds g.mu.
func (g *Graph) addEdgeLocked(rec *types.ChunkRelationshipRecord, edge types.RelatedChunkEdge) {
	for _, existing := range rec.RelatedChunks {
		if existing.ChunkID == edge.ChunkID && existing.Source == edge.Source {
			return
		}
	}
	rec.RelatedChunks = append(rec.RelatedChunks, edge)
	rec.RelationshipStrength[edge.ChunkID] = edge.Score

	if len(rec.RelatedChunks) > g.maxPerChunk {
		sort.Slice(rec.RelatedChunks, func(i, j int) bool {
			return rec.RelatedChunks[i].Score > rec.RelatedChunks[j].Score
		})
		dropped := rec.RelatedChunks[g.maxPerChunk:]
		rec.RelatedChunks = rec.RelatedChunks[:g.maxPerChunk]
		for _, d := range dropped {
			delete(rec.RelationshipStrength, d.ChunkID)
		}
	}
}

// RecordMergeSource adds a merge_source edge and dedup lineage onto
// survivorChunkID for each absorbed chunk, used when DocumentMerger
// consolidates duplicate documents.
func (g *Graph) RecordMergeSource(survivorChunkID string, sources []types.DedupSourceEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.chunkRelationships[survivorChunkID]
	if !ok {
		return
	}
	rec.DeduplicationSources = append(rec.DeduplicationSources, sources...)
	for _, s := range sources {
		g.addEdgeLocked(rec, types.RelatedChunkEdge{
			ChunkID: s.DocumentID,
			Source:  types.EdgeMergeSource,
			Score:   0.8,
		})
	}
}

// RetrieveRelated returns up to k related chunks for chunkID, combining
// adjacency within the document, persisted semantic/merge edges, sorted by
// relevance (spec.md §4.6 Edge reads).
func (g *Graph) RetrieveRelated(ctx context.Context, chunkID string, k int) ([]types.RelatedChunkEdge, error) {
	g.mu.Lock()
	rec, ok := g.chunkRelationships[chunkID]
	g.mu.Unlock()

	if !ok {
		if err := g.hydrateChunk(ctx, chunkID); err != nil {
			return nil, err
		}
		g.mu.Lock()
		rec, ok = g.chunkRelationships[chunkID]
		g.mu.Unlock()
		if !ok {
			return nil, nil
		}
	}

	var out []types.RelatedChunkEdge

	g.mu.Lock()
	doc := g.documentRelationships[rec.DocumentID]
	g.mu.Unlock()

	if doc != nil {
		for _, otherID := range doc.ChunkIDs {
			if otherID == chunkID {
				continue
			}
			g.mu.Lock()
			other, ok := g.chunkRelationships[otherID]
			g.mu.Unlock()
			if !ok {
				continue
			}
			delta := other.ChunkIndex - rec.ChunkIndex
			if delta < 0 {
				delta = -delta
			}
			if delta == 0 || delta > k {
				continue
			}
			out = append(out, types.RelatedChunkEdge{
				ChunkID: otherID,
				Source:  types.EdgeAdjacency,
				Score:   1 - float64(delta)/float64(k),
			})
		}
	}

	out = append(out, rec.RelatedChunks...)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (g *Graph) hydrateChunk(ctx context.Context, chunkID string) error {
	for _, coll := range []types.CollectionType{types.CollectionShortTerm, types.CollectionLongTerm} {
		c, err := g.store.GetByID(ctx, coll, chunkID)
		if err != nil {
			return fmt.Errorf("relationships: hydrate chunk %s: %w", chunkID, err)
		}
		if c == nil {
			continue
		}
		rec, err := decodeChunkRecord(c)
		if err != nil {
			return err
		}
		g.mu.Lock()
		g.chunkRelationships[chunkID] = rec
		g.mu.Unlock()
		return nil
	}
	return nil
}

func decodeChunkRecord(c *types.Chunk) (*types.ChunkRelationshipRecord, error) {
	rec := &types.ChunkRelationshipRecord{
		ChunkID:              c.ID,
		DocumentID:            c.Metadata.DocumentID,
		ChunkIndex:            c.Metadata.ChunkIndex,
		ContentPreview:        preview(c.Text),
		RelationshipStrength:  map[string]float64{},
		ComplexRelationships: types.ComplexRelationships{
			Previous:         c.Metadata.PreviousChunk,
			Next:             c.Metadata.NextChunk,
			DocumentStart:    c.Metadata.DocumentStart,
			DocumentEnd:      c.Metadata.DocumentEnd,
			RelativePosition: c.Metadata.RelativePosition,
			ContextStart:     c.Metadata.ContextStartChunk,
			ContextEnd:       c.Metadata.ContextEndChunk,
		},
	}
	if c.Metadata.RelatedChunksData != "" {
		if err := json.Unmarshal([]byte(c.Metadata.RelatedChunksData), &rec.RelatedChunks); err != nil {
			return nil, fmt.Errorf("relationships: decode related_chunks_data: %w", err)
		}
	}
	if c.Metadata.DedupSourcesData != "" {
		if err := json.Unmarshal([]byte(c.Metadata.DedupSourcesData), &rec.DeduplicationSources); err != nil {
			return nil, fmt.Errorf("relationships: decode dedup_sources_data: %w", err)
		}
	}
	if c.Metadata.RelationshipStrengthData != "" {
		if err := json.Unmarshal([]byte(c.Metadata.RelationshipStrengthData), &rec.RelationshipStrength); err != nil {
			return nil, fmt.Errorf("relationships: decode relationship_strength_data: %w", err)
		}
	}
	return rec, nil
}

// Persist serializes chunkID's cached record into the four JSON blob fields
// of chunk.Metadata, truncating related_chunks to maxPerChunk, and writes
// it back through the vector store (spec.md §4.6 persistence contract).
func (g *Graph) Persist(ctx context.Context, collection types.CollectionType, chunk *types.Chunk) error {
	g.mu.Lock()
	rec, ok := g.chunkRelationships[chunk.ID]
	g.mu.Unlock()
	if !ok {
		return nil
	}

	related := rec.RelatedChunks
	if len(related) > g.maxPerChunk {
		sort.Slice(related, func(i, j int) bool { return related[i].Score > related[j].Score })
		related = related[:g.maxPerChunk]
	}

	relatedJSON, err := json.Marshal(related)
	if err != nil {
		return fmt.Errorf("relationships: encode related_chunks_data: %w", err)
	}
	dedupSourcesJSON, err := json.Marshal(rec.DeduplicationSources)
	if err != nil {
		return fmt.Errorf("relationships: encode dedup_sources_data: %w", err)
	}
	strengthJSON, err := json.Marshal(rec.RelationshipStrength)
	if err != nil {
		return fmt.Errorf("relationships: encode relationship_strength_data: %w", err)
	}

	chunk.Metadata.RelatedChunksData = string(relatedJSON)
	chunk.Metadata.DedupSourcesData = string(dedupSourcesJSON)
	chunk.Metadata.RelationshipStrengthData = string(strengthJSON)

	g.mu.Lock()
	doc := g.documentRelationships[chunk.Metadata.DocumentID]
	g.mu.Unlock()
	if doc != nil && len(doc.DeduplicationHistory) > 0 {
		histJSON, err := json.Marshal(doc.DeduplicationHistory)
		if err != nil {
			return fmt.Errorf("relationships: encode dedup_history_data: %w", err)
		}
		chunk.Metadata.DedupHistoryData = string(histJSON)
	}

	return g.store.Update(ctx, collection, chunk)
}

// CleanupStaleReferences removes cache entries for chunk ids no longer
// present in the store, and drops any related_chunks edge pointing at an
// absent id. When deletedIDs is non-empty, only those ids are targeted;
// otherwise a full scan runs across both tiers (spec.md §4.6 Cleanup).
func (g *Graph) CleanupStaleReferences(ctx context.Context, deletedIDs []string) error {
	var stale map[string]struct{}

	if len(deletedIDs) > 0 {
		stale = make(map[string]struct{}, len(deletedIDs))
		for _, id := range deletedIDs {
			stale[id] = struct{}{}
		}
	} else {
		existing := make(map[string]struct{})
		for _, coll := range []types.CollectionType{types.CollectionShortTerm, types.CollectionLongTerm} {
			ids, err := g.store.AllIDs(ctx, coll)
			if err != nil {
				return fmt.Errorf("relationships: cleanup scan %s: %w", coll, err)
			}
			for _, id := range ids {
				existing[id] = struct{}{}
			}
		}
		g.mu.Lock()
		stale = make(map[string]struct{})
		for id := range g.chunkRelationships {
			if _, ok := existing[id]; !ok {
				stale[id] = struct{}{}
			}
		}
		g.mu.Unlock()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for id := range stale {
		delete(g.chunkRelationships, id)
	}
	for _, rec := range g.chunkRelationships {
		kept := rec.RelatedChunks[:0]
		for _, edge := range rec.RelatedChunks {
			if _, gone := stale[edge.ChunkID]; gone {
				delete(rec.RelationshipStrength, edge.ChunkID)
				continue
			}
			kept = append(kept, edge)
		}
		rec.RelatedChunks = kept
	}
	return nil
}

// DropChunk removes chunkID's cache entry outright, used by UpdateService's
// delete path alongside CleanupStaleReferences.
func (g *Graph) DropChunk(chunkID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.chunkRelationships, chunkID)
}

// DocumentRecord returns the cached document record, hydrating from the
// store on a cache miss.
func (g *Graph) DocumentRecord(ctx context.Context, documentID string) (*types.DocumentRelationshipRecord, error) {
	g.mu.Lock()
	rec, ok := g.documentRelationships[documentID]
	g.mu.Unlock()
	if ok {
		return rec, nil
	}

	for _, coll := range []types.CollectionType{types.CollectionShortTerm, types.CollectionLongTerm} {
		chunks, err := g.store.SearchByMetadata(ctx, coll, map[string]string{"document_id": documentID}, 0)
		if err != nil {
			return nil, fmt.Errorf("relationships: hydrate document %s: %w", documentID, err)
		}
		if len(chunks) == 0 {
			continue
		}
		built := &types.DocumentRelationshipRecord{
			DocumentID: documentID,
			ChunkCount: len(chunks),
			Collection: coll,
		}
		for _, c := range chunks {
			built.ChunkIDs = append(built.ChunkIDs, c.ID)
			if c.Metadata.DedupHistoryData != "" {
				var hist []types.DedupHistoryEntry
				if err := json.Unmarshal([]byte(c.Metadata.DedupHistoryData), &hist); err == nil {
					built.DeduplicationHistory = hist
				}
			}
		}
		g.mu.Lock()
		g.documentRelationships[documentID] = built
		g.mu.Unlock()
		return built, nil
	}
	return nil, nil
}

// AppendMergeHistory records mergeID onto survivorDocID's in-memory
// deduplication_history (persisted via Persist on the next write).
func (g *Graph) AppendMergeHistory(survivorDocID string, entry types.DedupHistoryEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc, ok := g.documentRelationships[survivorDocID]
	if !ok {
		doc = &types.DocumentRelationshipRecord{DocumentID: survivorDocID}
		g.documentRelationships[survivorDocID] = doc
	}
	doc.DeduplicationHistory = append(doc.DeduplicationHistory, entry)
}

// DropDocument removes documentID's cache entry, used by UpdateService's
// delete_document path.
func (g *Graph) DropDocument(documentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.documentRelationships, documentID)
}
