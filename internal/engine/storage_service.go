package engine

import (
	"context"
	"fmt"
	"time"

	"memoria/internal/chunking"
	"memoria/internal/config"
	"memoria/internal/dedup"
	"memoria/internal/embeddings"
	"memoria/internal/engineerr"
	"memoria/internal/logging"
	"memoria/internal/relationships"
	"memoria/internal/scoring"
	"memoria/internal/storage"
	"memoria/pkg/types"
)

// StorageService is the ingest path (spec.md §4.9): scores importance,
// probes for duplicates, routes to a tier, chunks content, builds
// relationship edges, and persists the result.
type StorageService struct {
	vs        storage.VectorStore
	embed     embeddings.EmbeddingService
	scorer    *scoring.Scorer
	dedup     *dedup.Deduplicator
	graph     *relationships.Graph
	lifecycle *LifecycleController
	mgmt      config.ManagementConfig
	chunkCfg  chunking.Config
	logger    logging.Logger

	// onShortTermInsert lets the engine facade wire a capacity check
	// (MaintenanceService) without StorageService importing it directly.
	onShortTermInsert func(ctx context.Context)
}

// NewStorageService builds the ingest service. lifecycle may be nil (no TTL
// stamping); dedup may be nil (no duplicate probing).
func NewStorageService(
	vs storage.VectorStore,
	embed embeddings.EmbeddingService,
	scorer *scoring.Scorer,
	deduplicator *dedup.Deduplicator,
	graph *relationships.Graph,
	lifecycle *LifecycleController,
	mgmt config.ManagementConfig,
	chunkCfg chunking.Config,
	logger logging.Logger,
) *StorageService {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &StorageService{
		vs:        vs,
		embed:     embed,
		scorer:    scorer,
		dedup:     deduplicator,
		graph:     graph,
		lifecycle: lifecycle,
		mgmt:      mgmt,
		chunkCfg:  chunkCfg,
		logger:    logger.WithComponent("storage_service"),
	}
}

// OnShortTermInsert registers a callback fired after a successful short_term
// insert, used by the facade to trigger MaintenanceService's capacity check.
func (s *StorageService) OnShortTermInsert(fn func(ctx context.Context)) {
	s.onShortTermInsert = fn
}

// Ingest runs the full add_memory pipeline described in spec.md §4.9.
func (s *StorageService) Ingest(ctx context.Context, doc *types.Document) (*IngestReport, error) {
	if err := doc.Validate(); err != nil {
		return nil, engineerr.Wrap(engineerr.KindValidation, "invalid document", err)
	}

	importance := s.scorer.Calculate(doc.Content, doc.Metadata, doc.Context)

	queryEmbedding, err := s.embed.Generate(ctx, doc.Content)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorage, "generate embedding", err)
	}

	collection := s.chooseCollection(doc.MemoryType, importance)

	if s.dedup != nil {
		probe := s.dedup.Probe(ctx, collection, queryEmbedding)
		if probe.Action == "boost_existing" && probe.Target != nil {
			if err := s.dedup.BoostExisting(ctx, collection, probe.Target, importance); err != nil {
				return nil, engineerr.Wrap(engineerr.KindDedup, "boost existing document", err)
			}
			return &IngestReport{
				DocumentID:      probe.Target.Metadata.DocumentID,
				AssignedTier:    collection,
				ImportanceScore: probe.Target.Metadata.ImportanceScore,
				Action:          ActionBoostedExisting,
				ChunksAdded:     0,
			}, nil
		}
	}

	now := time.Now()
	documentID := types.NewMemoryID(collection, now)

	var (
		ttlTier          types.TTLTier
		ttlSeconds       *int64
		ttlExpiry        *time.Time
		permanentFlag    bool
		permanenceReason string
	)
	if s.lifecycle != nil {
		adjusted, tier, seconds, expiry, flag, reason := s.lifecycle.ProcessDocumentLifecycle(doc.Content, doc.Metadata, importance, now)
		importance = adjusted
		ttlTier = tier
		permanentFlag = flag
		permanenceReason = reason
		if !flag {
			ttlSeconds = &seconds
			ttlExpiry = expiry
		}
	}

	pieces := chunking.NewService(s.chunkCfg).Split(doc.Content)
	if len(pieces) == 0 {
		return nil, engineerr.New(engineerr.KindValidation, "document produced no chunks")
	}

	extra := types.FlattenCallerMetadata(doc.Metadata)
	chunks := make([]*types.Chunk, len(pieces))
	embeddingsList := make([][]float32, len(pieces))
	for i, text := range pieces {
		var emb []float32
		var genErr error
		if i == 0 {
			emb = queryEmbedding
		} else {
			emb, genErr = s.embed.Generate(ctx, text)
		}
		if genErr != nil {
			return nil, engineerr.Wrap(engineerr.KindStorage, "generate chunk embedding", genErr)
		}
		embeddingsList[i] = emb

		chunks[i] = &types.Chunk{
			ID:        types.ChunkID(documentID, i),
			Text:      text,
			Embedding: emb,
			Metadata: types.ChunkMetadata{
				ChunkID:            types.ChunkID(documentID, i),
				DocumentID:         documentID,
				MemoryID:           documentID,
				ChunkIndex:         i,
				TotalChunks:        len(pieces),
				CollectionType:     collection,
				DocumentStart:      i == 0,
				DocumentEnd:        i == len(pieces)-1,
				RelativePosition:   relativePosition(i, len(pieces)),
				ImportanceScore:    importance,
				AccessCount:        0,
				Timestamp:          now,
				LastAccessed:       now,
				ImportanceScoredAt: now,
				TTLTier:            ttlTier,
				TTLSeconds:         ttlSeconds,
				TTLExpiry:          ttlExpiry,
				PermanentFlag:      permanentFlag,
				PermanenceReason:   permanenceReason,
				Extra:              extra,
			},
		}
		if i > 0 {
			chunks[i].Metadata.PreviousChunk = chunks[i-1].ID
			chunks[i-1].Metadata.NextChunk = chunks[i].ID
		}
	}
	contextWindowAdjacency(chunks)

	if s.graph != nil {
		record := &types.DocumentRelationshipRecord{
			DocumentID:   documentID,
			ChunkCount:   len(chunks),
			CreationTime: now,
			Collection:   collection,
			Language:     doc.Language,
		}
		s.graph.RegisterDocument(record, chunks)

		for _, c := range chunks {
			candidates, searchErr := s.vs.Search(ctx, collection, c.Embedding, 10)
			if searchErr == nil {
				pool := make([]types.Chunk, 0, len(candidates))
				for _, hit := range candidates {
					pool = append(pool, hit.Chunk)
				}
				s.graph.AddSemanticEdges(c.ID, c.Embedding, pool, s.mgmt.SemanticSimilarityThreshold)
				s.graph.AddCoOccurrenceEdges(c.ID, c.Text, pool)
			}
		}
	}

	result, err := s.vs.BatchStore(ctx, collection, chunks)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorage, "store chunks", err)
	}
	if result.Failed > 0 {
		return nil, engineerr.New(engineerr.KindStorage, fmt.Sprintf("stored %d/%d chunks", result.Success, len(chunks))).
			WithData(map[string]interface{}{"errors": result.Errors})
	}

	if s.graph != nil {
		for _, c := range chunks {
			if perr := s.graph.Persist(ctx, collection, c); perr != nil {
				s.logger.Warn("persist relationship blob failed", "chunk_id", c.ID, "error", perr)
			}
		}
	}

	if collection == types.CollectionShortTerm && s.onShortTermInsert != nil {
		s.onShortTermInsert(ctx)
	}

	return &IngestReport{
		DocumentID:      documentID,
		AssignedTier:    collection,
		ImportanceScore: importance,
		Action:          ActionAdded,
		ChunksAdded:     len(chunks),
	}, nil
}

func (s *StorageService) chooseCollection(memType types.MemoryType, importance float64) types.CollectionType {
	switch memType {
	case types.MemoryTypeShortTerm:
		return types.CollectionShortTerm
	case types.MemoryTypeLongTerm:
		return types.CollectionLongTerm
	default:
		if importance >= s.mgmt.LongTermThreshold {
			return types.CollectionLongTerm
		}
		return types.CollectionShortTerm
	}
}

func relativePosition(index, total int) float64 {
	if total <= 1 {
		return 0
	}
	return float64(index) / float64(total-1)
}

// contextWindowAdjacency stamps context_start_chunk/context_end_chunk as the
// bounds of a small window (up to 2 chunks either side) around each chunk.
func contextWindowAdjacency(chunks []*types.Chunk) {
	const window = 2
	for i := range chunks {
		start := i - window
		if start < 0 {
			start = 0
		}
		end := i + window
		if end > len(chunks)-1 {
			end = len(chunks) - 1
		}
		chunks[i].Metadata.ContextStartChunk = chunks[start].ID
		chunks[i].Metadata.ContextEndChunk = chunks[end].ID
	}
}
