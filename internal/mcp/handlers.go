package mcp

import (
	"context"
	"fmt"
	"time"

	"memoria/internal/dedup"
	"memoria/internal/engineerr"
	"memoria/pkg/types"
)

// collectionParam validates a caller-supplied tier name against the two
// recognized collection types (spec.md §3).
func collectionParam(params map[string]interface{}, key string, required bool) (types.CollectionType, error) {
	s, ok := stringParam(params, key)
	if !ok {
		if required {
			return "", fmt.Errorf("%s parameter is required and must be short_term or long_term", key)
		}
		return "", nil
	}
	c := types.CollectionType(s)
	if !c.Valid() {
		return "", fmt.Errorf("%s must be short_term or long_term, got %q", key, s)
	}
	return c, nil
}

func (s *Server) handleAddDocument(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	content, err := requiredString(params, "content")
	if err != nil {
		return nil, err
	}
	doc := &types.Document{
		Content:    content,
		Metadata:   optionalObject(params, "metadata"),
		Context:    optionalObject(params, "context"),
		Language:   optionalString(params, "language", ""),
		MemoryType: types.MemoryType(optionalString(params, "memory_type", string(types.MemoryTypeAuto))),
	}
	report, err := s.eng.Storage.Ingest(ctx, doc)
	if err != nil {
		return nil, toolError(err)
	}
	return map[string]interface{}{
		"document_id":      report.DocumentID,
		"assigned_tier":    report.AssignedTier,
		"importance_score": report.ImportanceScore,
		"action":           report.Action,
		"chunks_added":     report.ChunksAdded,
	}, nil
}

func (s *Server) handleQueryDocuments(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	query, err := requiredString(params, "query")
	if err != nil {
		return nil, err
	}
	q := types.NewMemoryQuery(query)
	q.Limit = optionalInt(params, "limit", q.Limit)
	q.UseReranker = optionalBool(params, "use_reranker", q.UseReranker)
	q.UseSmartRouting = optionalBool(params, "use_smart_routing", q.UseSmartRouting)
	q.Collections = optionalStringSlice(params, "collections")

	resp, err := s.eng.Query.Query(ctx, q)
	if err != nil {
		return nil, toolError(err)
	}
	return resp, nil
}

func (s *Server) handleQueryPermanentDocuments(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	query, err := requiredString(params, "query")
	if err != nil {
		return nil, err
	}
	limit := optionalInt(params, "limit", 5)

	q := types.NewMemoryQuery(query)
	q.Limit = limit * 3 // over-fetch, since the permanent filter is applied after scoring
	q.Collections = []string{string(types.CollectionLongTerm)}
	q.UseSmartRouting = false

	resp, err := s.eng.Query.Query(ctx, q)
	if err != nil {
		return nil, toolError(err)
	}

	var permanent []types.SearchHit
	for _, hit := range resp.Hits {
		if hit.Chunk.Metadata.PermanentFlag || hit.Chunk.Metadata.ImportanceScore >= 0.95 {
			permanent = append(permanent, hit)
		}
	}
	if len(permanent) > limit {
		permanent = permanent[:limit]
	}
	resp.Hits = permanent
	resp.TotalResults = len(permanent)
	return resp, nil
}

func (s *Server) handleDeleteDocument(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	documentID, err := requiredString(params, "document_id")
	if err != nil {
		return nil, err
	}
	if !optionalBool(params, "confirm", false) {
		return nil, fmt.Errorf("delete_document requires confirm=true")
	}
	result, err := s.eng.Update.DeleteDocument(ctx, documentID)
	if err != nil {
		return nil, toolError(err)
	}
	return map[string]interface{}{
		"success":        result.Success,
		"chunks_deleted": result.ChunksDeleted,
		"collection":     result.Collection,
	}, nil
}

func (s *Server) handleDemoteImportance(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	documentID, err := requiredString(params, "document_id")
	if err != nil {
		return nil, err
	}
	newImportance, err := requiredFloat(params, "new_importance")
	if err != nil {
		return nil, err
	}
	if newImportance >= 0.95 {
		return nil, fmt.Errorf("demote_importance requires new_importance < 0.95, got %v", newImportance)
	}
	reason := optionalString(params, "reason", "manual_demotion")

	result, err := s.eng.Update.UpdateImportance(ctx, documentID, newImportance, reason)
	if err != nil {
		return nil, toolError(err)
	}
	if result.NewImportance > result.OldImportance {
		s.logger.Warn("demote_importance called with a higher score", "document_id", documentID, "old", result.OldImportance, "new", result.NewImportance)
	}
	return map[string]interface{}{
		"old_importance": result.OldImportance,
		"new_importance": result.NewImportance,
		"ttl_tier":       result.TTLTier,
	}, nil
}

func (s *Server) handleUpdateDocument(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	documentID, err := requiredString(params, "document_id")
	if err != nil {
		return nil, err
	}
	content, err := requiredString(params, "content")
	if err != nil {
		return nil, err
	}
	if len(content) < 10 {
		return nil, fmt.Errorf("update_document requires content of at least 10 characters, got %d", len(content))
	}
	metadata := optionalObject(params, "metadata")
	preserve := optionalBool(params, "preserve_importance", true)

	report, err := s.eng.Update.UpdateContent(ctx, documentID, content, metadata, preserve)
	if err != nil {
		return nil, toolError(err)
	}
	return map[string]interface{}{
		"document_id":      report.DocumentID,
		"assigned_tier":    report.AssignedTier,
		"importance_score": report.ImportanceScore,
		"chunks_added":     report.ChunksAdded,
	}, nil
}

func (s *Server) handleGetMemoryStats(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	out := map[string]interface{}{}
	for _, collection := range []types.CollectionType{types.CollectionShortTerm, types.CollectionLongTerm} {
		stats, err := s.vs.GetStats(ctx, collection)
		if err != nil {
			return nil, toolError(engineerr.Wrap(engineerr.KindStorage, "get stats for "+string(collection), err))
		}
		out[string(collection)] = map[string]interface{}{
			"total_chunks":   stats.TotalChunks,
			"chunks_by_tier": stats.ChunksByTier,
			"oldest_chunk":   stats.OldestChunk,
			"newest_chunk":   stats.NewestChunk,
			"storage_size":   stats.StorageSize,
		}
	}
	return out, nil
}

func (s *Server) handleGetLifecycleStats(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	if s.eng.Lifecycle == nil {
		return nil, toolError(engineerr.New(engineerr.KindLifecycle, "no lifecycle controller configured"))
	}
	stats := s.eng.Lifecycle.Stats()
	return map[string]interface{}{
		"last_cleanup_at":       formatTime(stats.LastCleanupAt),
		"last_aging_refresh_at": formatTime(stats.LastAgingRefreshAt),
		"last_stats_at":         formatTime(stats.LastStatsAt),
		"last_deep_maint_at":    formatTime(stats.LastDeepMaintAt),
		"total_expired_removed": stats.TotalExpiredRemoved,
		"total_rescored":        stats.TotalRescored,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func (s *Server) handleGetPermanenceStats(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	out := map[string]interface{}{}
	for _, collection := range []types.CollectionType{types.CollectionShortTerm, types.CollectionLongTerm} {
		chunks, err := s.vs.SearchByMetadata(ctx, collection, map[string]string{}, 0)
		if err != nil {
			return nil, toolError(engineerr.Wrap(engineerr.KindStorage, "list chunks for permanence stats", err))
		}
		permanentChunks := 0
		documents := map[string]bool{}
		reasons := map[string]int{}
		for _, c := range chunks {
			if !c.Metadata.PermanentFlag {
				continue
			}
			permanentChunks++
			documents[c.Metadata.DocumentID] = true
			if c.Metadata.PermanenceReason != "" {
				reasons[c.Metadata.PermanenceReason]++
			}
		}
		out[string(collection)] = map[string]interface{}{
			"permanent_chunks":    permanentChunks,
			"permanent_documents": len(documents),
			"total_chunks":        len(chunks),
			"reasons":             reasons,
		}
	}
	return out, nil
}

func (s *Server) handleGetDeduplicationStats(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	out := map[string]interface{}{}
	if s.eng.History != nil {
		n, err := s.eng.History.Len(ctx)
		if err != nil {
			return nil, toolError(engineerr.Wrap(engineerr.KindDedup, "read merge history length", err))
		}
		out["merge_events_recorded"] = n
	}
	if s.eng.Monitor != nil {
		monStats := s.eng.Monitor.Stats()
		out["recent_queries_sampled"] = monStats.TotalQueries
		out["recent_dedup_touch_sum"] = monStats.DedupTouchSum
	}
	return out, nil
}

func (s *Server) handlePreviewDuplicates(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	collection, err := collectionParam(params, "collection", true)
	if err != nil {
		return nil, err
	}
	limit := optionalInt(params, "limit", 20)

	if s.eng.Dedup == nil {
		return nil, toolError(engineerr.New(engineerr.KindDedup, "deduplication is disabled"))
	}
	report, err := s.eng.Dedup.Preview(ctx, collection, limit)
	if err != nil {
		return nil, toolError(engineerr.Wrap(engineerr.KindDedup, "preview duplicates", err))
	}
	out := reportToMap(report)
	out["summary_html"] = dedupReportMarkdown(report)
	return out, nil
}

func reportToMap(report *dedup.Report) map[string]interface{} {
	candidates := make([]map[string]interface{}, 0, len(report.Candidates))
	for _, c := range report.Candidates {
		candidates = append(candidates, map[string]interface{}{
			"doc_a": c.DocA,
			"doc_b": c.DocB,
			"score": c.Score,
		})
	}
	return map[string]interface{}{
		"collection":   report.Collection,
		"dry_run":      report.DryRun,
		"candidates":   candidates,
		"merged_count": report.MergedCount,
	}
}

func (s *Server) handleDeduplicateMemories(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	collection, err := collectionParam(params, "collection", true)
	if err != nil {
		return nil, err
	}
	dryRun := optionalBool(params, "dry_run", false)

	if s.eng.Dedup == nil {
		return nil, toolError(engineerr.New(engineerr.KindDedup, "deduplication is disabled"))
	}
	report, err := s.eng.Dedup.DeduplicateCollection(ctx, collection, dryRun)
	if err != nil {
		return nil, toolError(engineerr.Wrap(engineerr.KindDedup, "deduplicate collection", err))
	}
	out := reportToMap(report)
	out["summary_html"] = dedupReportMarkdown(report)
	return out, nil
}

func (s *Server) handleGetChunkRelationships(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	documentID, err := requiredString(params, "document_id")
	if err != nil {
		return nil, err
	}
	chunkID := optionalString(params, "chunk_id", "")

	if s.eng.Graph == nil {
		return nil, toolError(engineerr.New(engineerr.KindRelationship, "relationship graph is disabled"))
	}

	docRecord, err := s.eng.Graph.DocumentRecord(ctx, documentID)
	if err != nil {
		return nil, toolError(engineerr.Wrap(engineerr.KindRelationship, "load document record", err))
	}
	if docRecord == nil {
		return nil, toolError(engineerr.New(engineerr.KindNotFound, "document not found: "+documentID))
	}

	if chunkID == "" && len(docRecord.ChunkIDs) > 0 {
		chunkID = docRecord.ChunkIDs[0]
	}

	var related []types.RelatedChunkEdge
	if chunkID != "" {
		related, err = s.eng.Graph.RetrieveRelated(ctx, chunkID, 10)
		if err != nil {
			return nil, toolError(engineerr.Wrap(engineerr.KindRelationship, "retrieve related chunks", err))
		}
	}

	return map[string]interface{}{
		"document_id":           docRecord.DocumentID,
		"chunk_count":           docRecord.ChunkCount,
		"collection":            docRecord.Collection,
		"chunk_ids":             docRecord.ChunkIDs,
		"deduplication_history": docRecord.DeduplicationHistory,
		"consolidated_into":     docRecord.ConsolidatedInto,
		"related_chunks":        related,
		"inspected_chunk_id":    chunkID,
		"summary_html":          relationshipsMarkdown(docRecord, related),
	}, nil
}

func (s *Server) handleStartBackgroundMaintenance(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if s.eng.Lifecycle == nil {
		return nil, toolError(engineerr.New(engineerr.KindLifecycle, "no lifecycle controller configured"))
	}
	if err := s.eng.Start(ctx); err != nil {
		return nil, toolError(err)
	}
	return map[string]interface{}{"started": true}, nil
}

func (s *Server) handleStopBackgroundMaintenance(_ context.Context, params map[string]interface{}) (interface{}, error) {
	timeoutSeconds := optionalInt(params, "timeout_seconds", 10)
	if err := s.eng.Stop(timeoutSeconds); err != nil {
		return nil, toolError(err)
	}
	return map[string]interface{}{"stopped": true}, nil
}

func (s *Server) handleCleanupExpiredMemories(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	if s.eng.Lifecycle == nil {
		return nil, toolError(engineerr.New(engineerr.KindLifecycle, "no lifecycle controller configured"))
	}
	var collection *types.CollectionType
	if c, err := collectionParam(params, "collection", false); err != nil {
		return nil, err
	} else if c != "" {
		collection = &c
	}

	removed, err := s.eng.Lifecycle.CleanupExpired(ctx, collection)
	if err != nil {
		return nil, toolError(err)
	}
	return map[string]interface{}{"chunks_removed": removed}, nil
}
