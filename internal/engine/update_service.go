package engine

import (
	"context"
	"time"

	"memoria/internal/engineerr"
	"memoria/internal/logging"
	"memoria/internal/relationships"
	"memoria/internal/storage"
	"memoria/internal/ttl"
	"memoria/pkg/types"
)

// DeleteResult reports the outcome of delete_document.
type DeleteResult struct {
	Success      bool
	ChunksDeleted int
	Collection   types.CollectionType
}

// ImportanceUpdateResult reports the outcome of update_document_importance.
type ImportanceUpdateResult struct {
	OldImportance float64
	NewImportance float64
	TTLTier       types.TTLTier
}

// UpdateService (C13) implements the document mutation operations: delete,
// importance re-grading, ad hoc metadata patches, and content replacement.
type UpdateService struct {
	vs      storage.VectorStore
	graph   *relationships.Graph
	ttlMgr  *ttl.Manager
	storage *StorageService
	logger  logging.Logger
}

// NewUpdateService builds the update path. storageSvc is used only by
// UpdateContent's delete-then-reingest; it may be nil if content
// replacement is not needed.
func NewUpdateService(vs storage.VectorStore, graph *relationships.Graph, ttlMgr *ttl.Manager, storageSvc *StorageService, logger logging.Logger) *UpdateService {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &UpdateService{
		vs:      vs,
		graph:   graph,
		ttlMgr:  ttlMgr,
		storage: storageSvc,
		logger:  logger.WithComponent("update_service"),
	}
}

// findDocumentChunks locates every chunk of documentID across both tiers,
// returning the collection they live in (a document lives in exactly one).
func (u *UpdateService) findDocumentChunks(ctx context.Context, documentID string) (types.CollectionType, []types.Chunk, error) {
	for _, collection := range []types.CollectionType{types.CollectionShortTerm, types.CollectionLongTerm} {
		chunks, err := u.vs.SearchByMetadata(ctx, collection, map[string]string{"document_id": documentID}, 0)
		if err != nil {
			return "", nil, engineerr.Wrap(engineerr.KindStorage, "search document chunks", err)
		}
		if len(chunks) > 0 {
			return collection, chunks, nil
		}
	}
	return "", nil, nil
}

// DeleteDocument removes every chunk of documentID and drops its
// relationship-cache entries.
func (u *UpdateService) DeleteDocument(ctx context.Context, documentID string) (*DeleteResult, error) {
	collection, chunks, err := u.findDocumentChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, engineerr.New(engineerr.KindNotFound, "document not found: "+documentID)
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	result, err := u.vs.BatchDelete(ctx, collection, ids)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorage, "delete document chunks", err)
	}

	if u.graph != nil {
		for _, id := range ids {
			u.graph.DropChunk(id)
		}
		u.graph.DropDocument(documentID)
	}

	return &DeleteResult{Success: true, ChunksDeleted: result.Success, Collection: collection}, nil
}

// UpdateImportance re-grades documentID's importance, recomputing its TTL
// tier when a TTLManager is attached, and persists every chunk.
func (u *UpdateService) UpdateImportance(ctx context.Context, documentID string, newImportance float64, reason string) (*ImportanceUpdateResult, error) {
	if newImportance < 0 || newImportance > 1 {
		return nil, engineerr.New(engineerr.KindValidation, "importance must be in [0,1]")
	}
	collection, chunks, err := u.findDocumentChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, engineerr.New(engineerr.KindNotFound, "document not found: "+documentID)
	}

	oldImportance := chunks[0].Metadata.ImportanceScore
	now := time.Now()

	var tier types.TTLTier
	for i := range chunks {
		c := &chunks[i]
		c.Metadata.ImportanceScore = newImportance
		c.Metadata.ImportanceChangeReason = reason
		c.Metadata.ImportanceChangedAt = &now
		c.Metadata.UpdatedAt = &now

		if u.ttlMgr != nil && !c.Metadata.PermanentFlag {
			newTier, ttlSeconds, expiry := u.ttlMgr.Assign(newImportance, c.Metadata.AccessCount, c.Metadata.LastAccessed, now)
			c.Metadata.TTLTier = newTier
			c.Metadata.TTLSeconds = &ttlSeconds
			c.Metadata.TTLExpiry = expiry
			tier = newTier
		} else {
			tier = c.Metadata.TTLTier
		}

		if err := u.vs.Update(ctx, collection, c); err != nil {
			return nil, engineerr.Wrap(engineerr.KindStorage, "persist updated importance", err)
		}
	}

	return &ImportanceUpdateResult{OldImportance: oldImportance, NewImportance: newImportance, TTLTier: tier}, nil
}

// UpdateMetadata merges updates into the Extra scalar metadata of a single
// chunk, identified directly by id (used by RelationshipGraph callers and
// by ad hoc metadata patches).
func (u *UpdateService) UpdateMetadata(ctx context.Context, chunkID string, updates map[string]string) error {
	for _, collection := range []types.CollectionType{types.CollectionShortTerm, types.CollectionLongTerm} {
		chunk, err := u.vs.GetByID(ctx, collection, chunkID)
		if err != nil {
			return engineerr.Wrap(engineerr.KindStorage, "lookup chunk", err)
		}
		if chunk == nil {
			continue
		}
		if chunk.Metadata.Extra == nil {
			chunk.Metadata.Extra = make(map[string]string, len(updates))
		}
		for k, v := range updates {
			chunk.Metadata.Extra[k] = v
		}
		if err := u.vs.Update(ctx, collection, chunk); err != nil {
			return engineerr.Wrap(engineerr.KindStorage, "persist metadata update", err)
		}
		return nil
	}
	return engineerr.New(engineerr.KindNotFound, "chunk not found: "+chunkID)
}

// UpdateContent replaces documentID's content: deletes the existing chunks
// and re-ingests via StorageService, optionally preserving the prior
// importance score through the new document's context.
func (u *UpdateService) UpdateContent(ctx context.Context, documentID, newContent string, newMetadata map[string]interface{}, preserveImportance bool) (*IngestReport, error) {
	if u.storage == nil {
		return nil, engineerr.New(engineerr.KindValidation, "content replacement requires a storage service")
	}
	_, chunks, err := u.findDocumentChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, engineerr.New(engineerr.KindNotFound, "document not found: "+documentID)
	}
	priorImportance := chunks[0].Metadata.ImportanceScore

	if _, err := u.DeleteDocument(ctx, documentID); err != nil {
		return nil, err
	}

	metadata := newMetadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["updated_at"] = time.Now().Format(time.RFC3339)

	docContext := map[string]interface{}{}
	if preserveImportance {
		docContext["preserved_importance"] = priorImportance
	}

	return u.storage.Ingest(ctx, &types.Document{
		Content:  newContent,
		Metadata: metadata,
		Context:  docContext,
	})
}
