package dedup

import (
	"context"
	"fmt"
	"time"

	"memoria/internal/mergehistory"
	"memoria/internal/relationships"
	"memoria/internal/storage"
	"memoria/pkg/types"

	"github.com/google/uuid"
)

// PairCandidate is one above-threshold document pair surfaced by a batch
// dedup pass, before (dry-run) or after (real run) merging.
type PairCandidate struct {
	DocA, DocB string
	Score      float64
}

// Report is the result of DeduplicateCollection: every candidate pair
// found, and (for a real run) how many were actually merged.
type Report struct {
	Collection  types.CollectionType
	DryRun      bool
	Candidates  []PairCandidate
	MergedCount int
}

// RepresentativeChunks returns, for every non-system document in
// collection, the lowest-chunk_index chunk as that document's similarity
// representative. Exported for MaintenanceService's clustering phase.
func (d *Deduplicator) RepresentativeChunks(ctx context.Context, collection types.CollectionType) (map[string]*types.Chunk, error) {
	all, err := d.vs.SearchByMetadata(ctx, collection, map[string]string{}, 0)
	if err != nil {
		return nil, fmt.Errorf("dedup: list collection %s: %w", collection, err)
	}

	reps := make(map[string]*types.Chunk)
	for i := range all {
		c := all[i]
		if c.Metadata.DocumentType == types.SystemMergeHistoryDocumentType {
			continue
		}
		existing, ok := reps[c.Metadata.DocumentID]
		if !ok || c.Metadata.ChunkIndex < existing.Metadata.ChunkIndex {
			cp := c
			reps[c.Metadata.DocumentID] = &cp
		}
	}
	return reps, nil
}

// DeduplicateCollection runs the batch dedup pass (spec.md §4.8): an
// all-pairs similarity sweep over collection's documents, surfacing every
// pair above cfg.SimilarityThreshold. dryRun returns the report without
// mutating the store; a real run merges each pair via DocumentMerger,
// skipping any document already consolidated earlier in the same pass. A
// single pair's merge failure is logged and skipped; the pass continues.
func (d *Deduplicator) DeduplicateCollection(ctx context.Context, collection types.CollectionType, dryRun bool) (*Report, error) {
	reps, err := d.RepresentativeChunks(ctx, collection)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(reps))
	embeds := make([][]float32, 0, len(reps))
	for id, c := range reps {
		ids = append(ids, id)
		embeds = append(embeds, c.Embedding)
	}

	pairs := d.calc.FindDuplicatesBatch(embeds, d.cfg.SimilarityThreshold)

	report := &Report{Collection: collection, DryRun: dryRun}
	for _, p := range pairs {
		report.Candidates = append(report.Candidates, PairCandidate{DocA: ids[p.I], DocB: ids[p.J], Score: p.Score})
	}
	if dryRun {
		return report, nil
	}

	merger := NewMerger(d.vs, d.graph, d.hist)
	consolidated := make(map[string]bool)
	for _, cand := range report.Candidates {
		if consolidated[cand.DocA] || consolidated[cand.DocB] {
			continue
		}
		a, b := reps[cand.DocA], reps[cand.DocB]
		if a == nil || b == nil {
			continue
		}
		_, loserID, err := merger.Merge(ctx, collection, a, b, cand.Score)
		if err != nil {
			d.logger.Warn("dedup: merge failed, skipping pair", "doc_a", cand.DocA, "doc_b", cand.DocB, "error", err)
			continue
		}
		consolidated[loserID] = true
		report.MergedCount++
	}
	return report, nil
}

// Preview runs a dry-run batch dedup pass and trims the candidate list to
// limit (the supplemented preview_duplicates tool).
func (d *Deduplicator) Preview(ctx context.Context, collection types.CollectionType, limit int) (*Report, error) {
	report, err := d.DeduplicateCollection(ctx, collection, true)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(report.Candidates) > limit {
		report.Candidates = report.Candidates[:limit]
	}
	return report, nil
}

// pickWinner orders a duplicate pair by spec.md §4.8's priority: higher
// importance_score, then higher access_count, then later timestamp.
func pickWinner(a, b *types.Chunk) (winner, loser *types.Chunk) {
	if a.Metadata.ImportanceScore != b.Metadata.ImportanceScore {
		if a.Metadata.ImportanceScore > b.Metadata.ImportanceScore {
			return a, b
		}
		return b, a
	}
	if a.Metadata.AccessCount != b.Metadata.AccessCount {
		if a.Metadata.AccessCount > b.Metadata.AccessCount {
			return a, b
		}
		return b, a
	}
	if a.Metadata.Timestamp.After(b.Metadata.Timestamp) {
		return a, b
	}
	return b, a
}

func minTime(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	if b.IsZero() {
		return a
	}
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Merger implements DocumentMerger (spec.md §4.8): consolidating a
// duplicate pair onto its winner and rewriting relationship/merge-history
// state to reflect the absorption.
type Merger struct {
	vs    storage.VectorStore
	graph *relationships.Graph
	hist  *mergehistory.Store
}

// NewMerger builds a Merger. graph and hist may be nil; merge still
// succeeds, it just skips the relationship/history side effects.
func NewMerger(vs storage.VectorStore, graph *relationships.Graph, hist *mergehistory.Store) *Merger {
	return &Merger{vs: vs, graph: graph, hist: hist}
}

// Merge consolidates the duplicate pair (a, b) onto whichever chunk
// pickWinner selects, folding the loser's access history and permanence
// into the winner, deleting the loser's chunks, and recording the merge
// in relationship state and merge history. Returns the surviving and
// absorbed document ids.
func (m *Merger) Merge(ctx context.Context, collection types.CollectionType, a, b *types.Chunk, similarity float64) (survivorDocID, loserDocID string, err error) {
	winner, loser := pickWinner(a, b)
	now := time.Now()

	winner.Metadata.ImportanceScore = maxFloat(a.Metadata.ImportanceScore, b.Metadata.ImportanceScore)
	winner.Metadata.AccessCount = a.Metadata.AccessCount + b.Metadata.AccessCount
	winner.Metadata.LastAccessed = maxTime(a.Metadata.LastAccessed, b.Metadata.LastAccessed)
	winner.Metadata.Timestamp = minTime(a.Metadata.Timestamp, b.Metadata.Timestamp)
	winner.Metadata.DuplicateSources = append(append([]string{}, winner.Metadata.DuplicateSources...), loser.Metadata.DocumentID)
	winner.Metadata.SimilarityScore = similarity
	winner.Metadata.PermanentFlag = a.Metadata.PermanentFlag || b.Metadata.PermanentFlag
	winner.Metadata.TTLTier = types.MorePermanent(a.Metadata.TTLTier, b.Metadata.TTLTier)
	if winner.Metadata.PermanenceReason == "" {
		winner.Metadata.PermanenceReason = loser.Metadata.PermanenceReason
	}
	winner.Metadata.LastDuplicateDetected = &now
	winner.Metadata.UpdatedAt = &now

	if err := m.vs.Update(ctx, collection, winner); err != nil {
		return "", "", fmt.Errorf("dedup: persist merge winner: %w", err)
	}

	loserChunks, err := m.vs.SearchByMetadata(ctx, collection, map[string]string{"document_id": loser.Metadata.DocumentID}, 0)
	if err != nil {
		return "", "", fmt.Errorf("dedup: list loser chunks: %w", err)
	}
	if len(loserChunks) > 0 {
		ids := make([]string, 0, len(loserChunks))
		for _, c := range loserChunks {
			if c.ID == winner.ID {
				continue
			}
			ids = append(ids, c.ID)
		}
		if _, err := m.vs.BatchDelete(ctx, collection, ids); err != nil {
			return "", "", fmt.Errorf("dedup: delete loser chunks: %w", err)
		}
	}

	event := types.MergeEvent{
		MergeID:          uuid.NewString(),
		Timestamp:        now,
		PrimaryDocument:  winner.Metadata.DocumentID,
		MergedDocuments:  []string{loser.Metadata.DocumentID},
		SimilarityScores: map[string]float64{loser.Metadata.DocumentID: similarity},
	}
	if m.hist != nil {
		if err := m.hist.Append(ctx, event); err != nil {
			return "", "", fmt.Errorf("dedup: append merge history: %w", err)
		}
	}
	if m.graph != nil {
		m.graph.RecordMergeSource(winner.ID, []types.DedupSourceEntry{{
			DocumentID:      loser.Metadata.DocumentID,
			SimilarityScore: similarity,
			MergedAt:        now,
		}})
		m.graph.AppendMergeHistory(winner.Metadata.DocumentID, types.DedupHistoryEntry{
			MergeID:         event.MergeID,
			PrimaryDocument: winner.Metadata.DocumentID,
			MergedDocument:  loser.Metadata.DocumentID,
			SimilarityScore: similarity,
			Timestamp:       now,
		})
		m.graph.DropDocument(loser.Metadata.DocumentID)
		m.graph.DropChunk(loser.ID)
	}

	return winner.Metadata.DocumentID, loser.Metadata.DocumentID, nil
}

// MergeMultiple folds duplicates sequentially onto primary, tracking the
// surviving chunk as the winner changes across iterations.
func (m *Merger) MergeMultiple(ctx context.Context, collection types.CollectionType, primary *types.Chunk, duplicates []*types.Chunk, sims []float64) (survivorDocID string, mergedDocIDs []string, err error) {
	current := primary
	for i, dup := range duplicates {
		sim := 0.0
		if i < len(sims) {
			sim = sims[i]
		}
		survivorID, loserID, err := m.Merge(ctx, collection, current, dup, sim)
		if err != nil {
			return "", mergedDocIDs, err
		}
		mergedDocIDs = append(mergedDocIDs, loserID)
		if survivorID == current.Metadata.DocumentID {
			continue
		}
		current = dup
	}
	return current.Metadata.DocumentID, mergedDocIDs, nil
}
