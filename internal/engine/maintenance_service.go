package engine

import (
	"context"
	"math"
	"sort"
	"time"

	"memoria/internal/config"
	"memoria/internal/dedup"
	"memoria/internal/engineerr"
	"memoria/internal/logging"
	"memoria/internal/relationships"
	"memoria/internal/similarity"
	"memoria/internal/storage"
	"memoria/pkg/types"
)

// MaintenanceReport summarizes one MaintainShortTerm run.
type MaintenanceReport struct {
	Triggered         bool
	StartingCount     int
	TargetCount       int
	ExactDuplicatesMerged int
	ClusterRemovals   int
	AgeBasedRemovals  int
}

// MaintenanceService (C12) bounds short_term collection size via a
// three-phase policy: exact-duplicate merge, similarity clustering, then
// age-based fallback (spec.md §4.12).
type MaintenanceService struct {
	vs     storage.VectorStore
	dedup  *dedup.Deduplicator
	calc   *similarity.Calculator
	graph  *relationships.Graph
	mgmt   config.ManagementConfig
	logger logging.Logger
}

// NewMaintenanceService builds the short-term capacity bound.
func NewMaintenanceService(vs storage.VectorStore, deduplicator *dedup.Deduplicator, graph *relationships.Graph, mgmt config.ManagementConfig, logger logging.Logger) *MaintenanceService {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &MaintenanceService{
		vs:     vs,
		dedup:  deduplicator,
		calc:   similarity.New(),
		graph:  graph,
		mgmt:   mgmt,
		logger: logger.WithComponent("maintenance_service"),
	}
}

const minDocumentAgeForClusterRemoval = 24 * time.Hour

// qualityScore ranks a document's representative chunk for removal
// priority: higher survives (spec.md §4.12).
func qualityScore(c *types.Chunk) float64 {
	return 0.5*c.Metadata.ImportanceScore +
		0.3*float64(c.Metadata.AccessCount) +
		0.2*(float64(c.Metadata.Timestamp.Unix())/86400)
}

// MaintainShortTerm runs the capacity-bound policy when short_term exceeds
// ManagementConfig.ShortTermMaxSize, targeting floor(0.8*max_size).
func (m *MaintenanceService) MaintainShortTerm(ctx context.Context) (*MaintenanceReport, error) {
	maxSize := m.mgmt.ShortTermMaxSize
	if maxSize <= 0 {
		maxSize = 100
	}

	count, err := m.vs.CountByCollection(ctx, types.CollectionShortTerm)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorage, "count short_term collection", err)
	}

	report := &MaintenanceReport{StartingCount: count, TargetCount: int(math.Floor(0.8 * float64(maxSize)))}
	if count <= maxSize {
		return report, nil
	}
	report.Triggered = true

	// Phase 1: exact-duplicate sweep at the configured similarity threshold.
	if m.dedup != nil {
		result, err := m.dedup.DeduplicateCollection(ctx, types.CollectionShortTerm, false)
		if err != nil {
			m.logger.Warn("maintenance: exact-dup sweep failed", "error", err)
		} else {
			report.ExactDuplicatesMerged = result.MergedCount
		}
	}

	count, err = m.vs.CountByCollection(ctx, types.CollectionShortTerm)
	if err != nil {
		return report, engineerr.Wrap(engineerr.KindStorage, "recount after dedup sweep", err)
	}
	if count <= report.TargetCount {
		return report, nil
	}

	// Phase 2: similarity clustering at 0.75, keep the best per cluster.
	removed, err := m.clusterRemoval(ctx, count-report.TargetCount)
	if err != nil {
		m.logger.Warn("maintenance: cluster removal failed", "error", err)
	}
	report.ClusterRemovals = removed

	count, err = m.vs.CountByCollection(ctx, types.CollectionShortTerm)
	if err != nil {
		return report, engineerr.Wrap(engineerr.KindStorage, "recount after cluster removal", err)
	}
	if count <= report.TargetCount {
		return report, nil
	}

	// Phase 3: age-based fallback.
	removed, err = m.ageBasedRemoval(ctx, count-report.TargetCount)
	if err != nil {
		m.logger.Warn("maintenance: age-based removal failed", "error", err)
	}
	report.AgeBasedRemovals = removed

	return report, nil
}

const clusterSimilarityThreshold = 0.75

func (m *MaintenanceService) clusterRemoval(ctx context.Context, needed int) (int, error) {
	if m.dedup == nil || needed <= 0 {
		return 0, nil
	}
	reps, err := m.dedup.RepresentativeChunks(ctx, types.CollectionShortTerm)
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(reps))
	embeds := make([][]float32, 0, len(reps))
	for id, c := range reps {
		ids = append(ids, id)
		embeds = append(embeds, c.Embedding)
	}
	clusters := m.calc.Cluster(embeds, clusterSimilarityThreshold)

	now := time.Now()
	var toRemove []string
	for _, cluster := range clusters {
		if len(cluster) <= 1 {
			continue
		}
		members := make([]*types.Chunk, 0, len(cluster))
		for _, idx := range cluster {
			members = append(members, reps[ids[idx]])
		}
		sort.Slice(members, func(i, j int) bool { return qualityScore(members[i]) > qualityScore(members[j]) })
		for _, c := range members[1:] {
			if now.Sub(c.Metadata.Timestamp) < minDocumentAgeForClusterRemoval {
				continue
			}
			toRemove = append(toRemove, c.Metadata.DocumentID)
			if len(toRemove) >= needed {
				break
			}
		}
		if len(toRemove) >= needed {
			break
		}
	}

	return m.removeDocuments(ctx, toRemove)
}

func (m *MaintenanceService) ageBasedRemoval(ctx context.Context, needed int) (int, error) {
	if needed <= 0 {
		return 0, nil
	}
	if m.dedup == nil {
		return 0, nil
	}
	reps, err := m.dedup.RepresentativeChunks(ctx, types.CollectionShortTerm)
	if err != nil {
		return 0, err
	}

	type scored struct {
		docID    string
		priority float64
	}
	candidates := make([]scored, 0, len(reps))
	for docID, c := range reps {
		priority := float64(c.Metadata.Timestamp.Unix()) + float64(c.Metadata.AccessCount)*86400
		candidates = append(candidates, scored{docID: docID, priority: priority})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].priority < candidates[j].priority })

	if len(candidates) > needed {
		candidates = candidates[:needed]
	}
	docIDs := make([]string, len(candidates))
	for i, c := range candidates {
		docIDs[i] = c.docID
	}
	return m.removeDocuments(ctx, docIDs)
}

// removeDocuments deletes every chunk of each document id in short_term,
// dropping relationship cache entries and never resetting the collection
// on a partial failure (spec.md §4.12's data-loss-avoidance invariant).
func (m *MaintenanceService) removeDocuments(ctx context.Context, documentIDs []string) (int, error) {
	removed := 0
	for _, docID := range documentIDs {
		chunks, err := m.vs.SearchByMetadata(ctx, types.CollectionShortTerm, map[string]string{"document_id": docID}, 0)
		if err != nil {
			m.logger.Warn("maintenance: list document chunks failed", "document_id", docID, "error", err)
			continue
		}
		if len(chunks) == 0 {
			continue
		}
		ids := make([]string, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
		}
		if _, err := m.vs.BatchDelete(ctx, types.CollectionShortTerm, ids); err != nil {
			m.logger.Warn("maintenance: delete document chunks failed", "document_id", docID, "error", err)
			continue
		}
		if m.graph != nil {
			for _, id := range ids {
				m.graph.DropChunk(id)
			}
			m.graph.DropDocument(docID)
		}
		removed++
	}
	return removed, nil
}
