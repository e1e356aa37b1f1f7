// Package dedup implements the Deduplicator and DocumentMerger (spec.md
// §4.8): the ingestion-time similarity probe, the boost-existing path, and
// the batch dedup pass with priority-ordered document merging. Grounded on
// the teacher's pattern of a small stateless service wrapping
// VectorStore + SimilarityCalculator (mirrors internal/storage's
// repository-over-collection shape).
package dedup

import (
	"context"
	"math"
	"time"

	"memoria/internal/config"
	"memoria/internal/logging"
	"memoria/internal/mergehistory"
	"memoria/internal/relationships"
	"memoria/internal/similarity"
	"memoria/internal/storage"
	"memoria/pkg/types"
)

// Action is the outcome of an ingestion-time duplicate probe.
type Action string

const (
	ActionBoostExisting Action = "boost_existing"
	ActionMergeContent  Action = "merge_content"
	ActionAddNew        Action = "add_new"
)

// ProbeResult reports the chosen action and, for boost/merge, the
// best-matching existing chunk.
type ProbeResult struct {
	Action     Action
	Target     *types.Chunk
	Similarity float64
}

// Deduplicator is the C8 collaborator.
type Deduplicator struct {
	vs     storage.VectorStore
	calc   *similarity.Calculator
	graph  *relationships.Graph
	hist   *mergehistory.Store
	cfg    config.DedupConfig
	logger logging.Logger
}

// New builds a Deduplicator. graph and hist may be nil for components that
// only need the probe (e.g. standalone tests); merge-path operations skip
// relationship/history side effects when absent.
func New(vs storage.VectorStore, graph *relationships.Graph, hist *mergehistory.Store, cfg config.DedupConfig, logger logging.Logger) *Deduplicator {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Deduplicator{
		vs:     vs,
		calc:   similarity.New(),
		graph:  graph,
		hist:   hist,
		cfg:    cfg,
		logger: logger,
	}
}

// probeCandidateCount bounds how many nearest neighbors the ingestion probe
// inspects before deciding add_new.
const probeCandidateCount = 5

// Probe runs the ingestion-time duplicate check (spec.md §4.8): a top-k
// similar search against collection, returning boost_existing above
// cfg.BoostThreshold, merge_content above cfg.MergeThreshold, else add_new.
// Search failures degrade to add_new rather than aborting ingest.
func (d *Deduplicator) Probe(ctx context.Context, collection types.CollectionType, embedding []float32) *ProbeResult {
	if len(embedding) == 0 {
		return &ProbeResult{Action: ActionAddNew}
	}

	hits, err := d.vs.Search(ctx, collection, embedding, probeCandidateCount)
	if err != nil {
		d.logger.Warn("dedup: probe search failed, degrading to add_new", "collection", collection, "error", err)
		return &ProbeResult{Action: ActionAddNew}
	}
	if len(hits) == 0 {
		return &ProbeResult{Action: ActionAddNew}
	}

	best := hits[0]
	switch {
	case best.Score > d.cfg.BoostThreshold:
		c := best.Chunk
		return &ProbeResult{Action: ActionBoostExisting, Target: &c, Similarity: best.Score}
	case best.Score > d.cfg.MergeThreshold:
		c := best.Chunk
		return &ProbeResult{Action: ActionMergeContent, Target: &c, Similarity: best.Score}
	default:
		return &ProbeResult{Action: ActionAddNew}
	}
}

// BoostExisting applies the boost_existing side effect (spec.md §4.8):
// importance is clamped to min(1, max(old,new)+0.05), access_count and
// duplicate_boost_count increment, and last-accessed timestamps refresh.
func (d *Deduplicator) BoostExisting(ctx context.Context, collection types.CollectionType, target *types.Chunk, newImportance float64) error {
	now := time.Now()
	target.Metadata.ImportanceScore = math.Min(1, math.Max(target.Metadata.ImportanceScore, newImportance)+0.05)
	target.Metadata.AccessCount++
	target.Metadata.DuplicateBoostCount++
	target.Metadata.LastAccessed = now
	target.Metadata.LastDuplicateDetected = &now
	return d.vs.Update(ctx, collection, target)
}
