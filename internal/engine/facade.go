// Package engine wires the six C9-C14 collaborators (StorageService,
// QueryRouter, QueryService, MaintenanceService, UpdateService,
// LifecycleController) plus the dedup/relationship/merge-history stack into
// a single Engine facade, grounded on the teacher's server-side wiring
// pattern of one constructor composing every subsystem from config.
package engine

import (
	"context"
	"time"

	"memoria/internal/chunking"
	"memoria/internal/config"
	"memoria/internal/dedup"
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

// Engine is the top-level facade the transport layer (internal/mcp) talks
// to: one field per component, each independently usable.
type Engine struct {
	Storage     *StorageService
	Query       *QueryService
	Maintenance *MaintenanceService
	Update      *UpdateService
	Lifecycle   *LifecycleController
	Dedup       *dedup.Deduplicator
	Graph       *relationships.Graph
	History     *mergehistory.Store
	Monitor     *Monitor
}

// New builds a complete Engine from configuration and a storage backend.
// embed and rerank are constructed by the caller (internal/embeddings and
// internal/reranker factories) so tests can substitute mocks.
func New(cfg *config.Config, vs storage.VectorStore, embed embeddings.EmbeddingService, rerank reranker.Reranker, logger logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	graph := relationships.New(vs, cfg.Management.MaxRelationshipsPerChunk)
	history := mergehistory.New(vs, cfg.Management.MaxMergeHistorySize)
	if mirror, err := mergehistory.NewPostgresMirror(cfg.Database, logger); err != nil {
		logger.Warn("postgres merge-history mirror disabled", "error", err)
	} else if mirror != nil {
		history.SetMirror(mirror)
	}
	dedupSvc := dedup.New(vs, graph, history, cfg.Dedup, logger)
	scorer := scoring.New(cfg.Scoring)
	lifecycle := NewLifecycleController(cfg.Lifecycle, vs, logger)
	maintenance := NewMaintenanceService(vs, dedupSvc, graph, cfg.Management, logger)

	var monitor *Monitor
	if cfg.Management.QueryMonitoringEnabled {
		monitor = NewMonitor(cfg.Management.QueryMonitorRingSize)
	}

	chunkCfg := chunking.Config{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
		Language:     chunking.Language(cfg.Chunking.Language),
	}
	storageSvc := NewStorageService(vs, embed, scorer, dedupSvc, graph, lifecycle, cfg.Management, chunkCfg, logger)
	storageSvc.OnShortTermInsert(func(ctx context.Context) {
		count, err := vs.CountByCollection(ctx, types.CollectionShortTerm)
		if err != nil || count <= cfg.Management.ShortTermMaxSize {
			return
		}
		if _, err := maintenance.MaintainShortTerm(ctx); err != nil {
			logger.Warn("capacity-triggered maintenance failed", "error", err)
		}
	})

	querySvc := NewQueryService(vs, embed, scorer, graph, rerank, monitor, history, cfg.Management, logger)
	updateSvc := NewUpdateService(vs, graph, lifecycle.TTLManager(), storageSvc, logger)

	return &Engine{
		Storage:     storageSvc,
		Query:       querySvc,
		Maintenance: maintenance,
		Update:      updateSvc,
		Lifecycle:   lifecycle,
		Dedup:       dedupSvc,
		Graph:       graph,
		History:     history,
		Monitor:     monitor,
	}, nil
}

// Start launches the lifecycle background worker.
func (e *Engine) Start(ctx context.Context) error {
	if e.Lifecycle == nil {
		return engineerr.New(engineerr.KindLifecycle, "no lifecycle controller configured")
	}
	return e.Lifecycle.Start(ctx)
}

// Stop joins the lifecycle background worker within the given timeout and
// releases the merge-history Postgres mirror's connection pool, if any.
// Both are attempted even if one fails; the first error is returned.
func (e *Engine) Stop(timeoutSeconds int) error {
	var stopErr error
	if e.Lifecycle != nil {
		stopErr = e.Lifecycle.Stop(time.Duration(timeoutSeconds) * time.Second)
	}
	if e.History != nil {
		if err := e.History.Close(); err != nil && stopErr == nil {
			stopErr = err
		}
	}
	return stopErr
}
