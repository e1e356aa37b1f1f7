package engine

import (
	"context"
	"math"
	"sort"
	"time"

	"memoria/internal/config"
	"memoria/internal/embeddings"
	"memoria/internal/engineerr"
	"memoria/internal/logging"
	"memoria/internal/mergehistory"
	"memoria/internal/relationships"
	"memoria/internal/reranker"
	"memoria/internal/scoring"
	"memoria/internal/storage"
	"memoria/pkg/types"
)

const relatedContextPerHit = 2

// accessPersistCadence bounds how often a query-driven access_count bump is
// written back to the vector store. Persisting every hit on every query
// would add write amplification with no query-time benefit; spec.md's open
// question on access bookkeeping allows "every Nth query or on eviction",
// so hits are persisted when their bumped count lands on this boundary.
const accessPersistCadence = 5

// QueryService (C11) answers query_documents requests: plans which tiers to
// search, scores and reranks hits, attaches related context, and records
// the call to the performance monitor.
type QueryService struct {
	vs       storage.VectorStore
	embed    embeddings.EmbeddingService
	scorer   *scoring.Scorer
	router   *Router
	graph    *relationships.Graph
	rerank   reranker.Reranker
	monitor  *Monitor
	hist     *mergehistory.Store
	mgmt     config.ManagementConfig
	logger   logging.Logger
}

// NewQueryService builds the query path. rerank, graph, monitor, and hist
// may all be nil: reranking, related-context enrichment, monitoring, and
// dedup-aware effective-k computation are all best-effort enhancements.
func NewQueryService(
	vs storage.VectorStore,
	embed embeddings.EmbeddingService,
	scorer *scoring.Scorer,
	graph *relationships.Graph,
	rerank reranker.Reranker,
	monitor *Monitor,
	hist *mergehistory.Store,
	mgmt config.ManagementConfig,
	logger logging.Logger,
) *QueryService {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &QueryService{
		vs:      vs,
		embed:   embed,
		scorer:  scorer,
		router:  NewRouter(),
		graph:   graph,
		rerank:  rerank,
		monitor: monitor,
		hist:    hist,
		mgmt:    mgmt,
		logger:  logger.WithComponent("query_service"),
	}
}

// Query implements the 8-step retrieval pipeline of spec.md §4.11.
func (q *QueryService) Query(ctx context.Context, query *types.MemoryQuery) (*types.SearchResponse, error) {
	start := time.Now()
	if err := query.Validate(); err != nil {
		return nil, engineerr.Wrap(engineerr.KindValidation, "invalid query", err)
	}

	k := query.Limit
	if k <= 0 {
		k = 5
	}

	useSmart := query.UseSmartRouting && len(query.Collections) == 0
	var plan Plan
	if useSmart {
		plan = q.router.Plan(query.Query, k, q.dedupStats(ctx))
	} else {
		plan = DefaultPlan(k)
		if len(query.Collections) > 0 {
			plan.TierOrder = nil
			for _, c := range query.Collections {
				plan.TierOrder = append(plan.TierOrder, types.CollectionType(c))
			}
			half := k / len(plan.TierOrder)
			plan.PerTierLimits = make([]int, len(plan.TierOrder))
			for i := range plan.PerTierLimits {
				plan.PerTierLimits[i] = half
			}
		}
	}

	queryEmbedding, err := q.embed.Generate(ctx, query.Query)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorage, "generate query embedding", err)
	}

	tierCounts := make(map[string]int)
	var hits []types.SearchHit
	var searched []string
	for i, collection := range plan.TierOrder {
		perTier := 10
		if i < len(plan.PerTierLimits) {
			perTier = plan.PerTierLimits[i]
		}
		searchLimit := perTier * 2
		if searchLimit < 10 {
			searchLimit = 10
		}
		searched = append(searched, string(collection))

		tierHits, err := q.vs.Search(ctx, collection, queryEmbedding, searchLimit)
		if err != nil {
			q.logger.Warn("tier search failed", "collection", collection, "error", err)
			continue
		}
		for _, hit := range tierHits {
			hit.Collection = collection
			hit.Score = q.enhancedScore(hit)
			hits = append(hits, hit)
		}
		tierCounts[string(collection)] += len(tierHits)
	}

	if q.rerank != nil && query.UseReranker && len(hits) > 0 {
		q.applyReranking(ctx, query.Query, hits)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > plan.EffectiveK {
		hits = hits[:plan.EffectiveK]
	}

	now := time.Now()
	for i := range hits {
		hits[i].Chunk.Metadata.AccessCount++
		hits[i].Chunk.Metadata.LastAccessed = now
	}
	q.persistAccessCounts(hits)

	relatedCount := 0
	if q.graph != nil {
		for i := range hits {
			related := q.relatedContext(ctx, hits[i].Collection, hits[i].Chunk.ID)
			hits[i].RelatedContext = related
			relatedCount += len(related)
		}
	}

	elapsed := time.Since(start)
	if q.monitor != nil {
		dedupTouches := 0
		for _, h := range hits {
			if len(h.Chunk.Metadata.DuplicateSources) > 0 {
				dedupTouches++
			}
		}
		q.monitor.Record(QueryRecord{
			Timestamp:    start,
			Query:        query.Query,
			ElapsedMS:    elapsed.Milliseconds(),
			HitCount:     len(hits),
			TierCounts:   tierCounts,
			DedupTouches: dedupTouches,
		})
	}

	defaultOrder := len(plan.TierOrder) == 2 && plan.TierOrder[0] == types.CollectionShortTerm && plan.TierOrder[1] == types.CollectionLongTerm

	return &types.SearchResponse{
		Hits:                  hits,
		TotalResults:          len(hits),
		CollectionsSearched:   searched,
		SmartRoutingUsed:      useSmart && !defaultOrder,
		ProcessingTime:        elapsed,
		RelatedChunksIncluded: relatedCount,
	}, nil
}

// enhancedScore computes the retrieval score plus the dedup and recency
// boosts from spec.md §4.11 step 3.
func (q *QueryService) enhancedScore(hit types.SearchHit) float64 {
	base := q.scorer.RetrievalScore(scoring.RetrievalInput{
		Distance:    1 - hit.Score,
		LastAccess:  hit.Chunk.Metadata.LastAccessed,
		Now:         time.Now(),
		AccessCount: hit.Chunk.Metadata.AccessCount,
		Importance:  hit.Chunk.Metadata.ImportanceScore,
	})

	if n := len(hit.Chunk.Metadata.DuplicateSources); n > 1 {
		base += 0.05 * math.Log(float64(n)+1)
	}

	if !hit.Chunk.Metadata.LastAccessed.IsZero() {
		hoursSince := time.Since(hit.Chunk.Metadata.LastAccessed).Hours()
		if hoursSince < 24 {
			base += 0.05 * (1 - hoursSince/24)
		}
	}

	if base > 1.0 {
		base = 1.0
	}
	return base
}

// applyReranking blends a cross-encoder score 50/50 with the already
// computed enhanced retrieval score. The engine does not specify exact
// blending weights, so an equal-weight blend is used (see DESIGN.md).
func (q *QueryService) applyReranking(ctx context.Context, query string, hits []types.SearchHit) {
	docs := make([]string, len(hits))
	for i, h := range hits {
		docs[i] = h.Chunk.Text
	}
	scores, err := q.rerank.ScoreBatch(ctx, query, docs)
	if err != nil {
		q.logger.Warn("rerank failed, keeping retrieval scores", "error", err)
		return
	}
	for i := range hits {
		if i >= len(scores) {
			break
		}
		hits[i].Score = 0.5*hits[i].Score + 0.5*scores[i]
	}
}

// relatedContext fetches up to relatedContextPerHit related chunks via the
// relationship graph and hydrates their text.
func (q *QueryService) relatedContext(ctx context.Context, collection types.CollectionType, chunkID string) []types.RelatedContext {
	edges, err := q.graph.RetrieveRelated(ctx, chunkID, relatedContextPerHit)
	if err != nil || len(edges) == 0 {
		return nil
	}
	out := make([]types.RelatedContext, 0, len(edges))
	for _, edge := range edges {
		related, err := q.vs.GetByID(ctx, collection, edge.ChunkID)
		if err != nil || related == nil {
			continue
		}
		out = append(out, types.RelatedContext{
			ChunkID:   edge.ChunkID,
			Text:      related.Text,
			Relevance: edge.Score,
			Source:    string(edge.Source),
		})
	}
	return out
}

// persistAccessCounts writes back the bumped access_count/last_accessed for
// hits whose count lands on the accessPersistCadence boundary, so
// TTLManager's access/recency modifiers and MaintenanceService's
// age/access-count quality term see real data instead of a value frozen at
// ingest time. Dispatched in the background on a detached context: a query
// response should not wait on bookkeeping writes, and a dropped update just
// delays the next cadence hit rather than corrupting any state.
func (q *QueryService) persistAccessCounts(hits []types.SearchHit) {
	for i := range hits {
		if hits[i].Chunk.Metadata.AccessCount%accessPersistCadence != 0 {
			continue
		}
		collection := hits[i].Collection
		chunk := hits[i].Chunk
		go func(c types.CollectionType, ch types.Chunk) {
			if err := q.vs.Update(context.Background(), c, &ch); err != nil {
				q.logger.Warn("failed to persist query-driven access bump", "chunk_id", ch.ID, "error", err)
			}
		}(collection, chunk)
	}
}

// dedupStats estimates the collection-wide duplicate rate from the merge
// history log and chunk counts, used only as input to EffectiveK.
func (q *QueryService) dedupStats(ctx context.Context) *DedupStats {
	if q.hist == nil {
		return nil
	}
	merged, err := q.hist.Len(ctx)
	if err != nil || merged == 0 {
		return nil
	}
	total, err := q.vs.CountByCollection(ctx, types.CollectionShortTerm)
	if err != nil {
		return nil
	}
	longTerm, err := q.vs.CountByCollection(ctx, types.CollectionLongTerm)
	if err == nil {
		total += longTerm
	}
	if total == 0 {
		return nil
	}
	return &DedupStats{DuplicatesRemoved: merged, Processed: total + merged}
}
