package storage

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"context"

	"github.com/qdrant/go-client/qdrant"

	"memoria/internal/config"
	"memoria/internal/logging"
	"memoria/pkg/types"
)

const (
	connectionStatusOK    = "connected"
	connectionStatusError = "error"
)

// StorageMetrics tracks per-operation counts, average latency and error
// counts for the production store, grounded on the teacher's metrics
// bookkeeping in its own qdrant.go.
type StorageMetrics struct {
	mu               sync.Mutex
	OperationCounts  map[string]int64
	AverageLatency   map[string]float64
	ErrorCounts      map[string]int64
	ConnectionStatus string
}

func newStorageMetrics() *StorageMetrics {
	return &StorageMetrics{
		OperationCounts:  make(map[string]int64),
		AverageLatency:   make(map[string]float64),
		ErrorCounts:      make(map[string]int64),
		ConnectionStatus: "unknown",
	}
}

func (sm *StorageMetrics) record(op string, start time.Time, err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.OperationCounts[op]++
	count := float64(sm.OperationCounts[op])
	elapsed := float64(time.Since(start).Milliseconds())
	sm.AverageLatency[op] = (sm.AverageLatency[op]*(count-1) + elapsed) / count
	if err != nil {
		sm.ErrorCounts[op]++
	}
}

// QdrantStore implements VectorStore against a Qdrant cluster, mapping
// each types.CollectionType tier to its own named Qdrant collection
// (spec.md §6: "a collection is named by types.CollectionType").
type QdrantStore struct {
	client *qdrant.Client
	cfg    config.VectorStoreConfig
	logger logging.Logger

	metrics         *StorageMetrics
	collectionNames map[types.CollectionType]string
}

// NewQdrantStore builds a store from the vector_store config section. The
// client itself is created lazily in Initialize, mirroring the teacher's
// separation of construction from connection.
func NewQdrantStore(cfg config.VectorStoreConfig, logger logging.Logger) *QdrantStore {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	short := cfg.ShortTermCollection
	if short == "" {
		short = "short_term"
	}
	long := cfg.LongTermCollection
	if long == "" {
		long = "long_term"
	}
	return &QdrantStore{
		cfg:     cfg,
		metrics: newStorageMetrics(),
		logger:  logger.WithComponent("qdrant_store"),
		collectionNames: map[types.CollectionType]string{
			types.CollectionShortTerm: short,
			types.CollectionLongTerm:  long,
		},
	}
}

func (qs *QdrantStore) collectionName(collection types.CollectionType) string {
	if name, ok := qs.collectionNames[collection]; ok {
		return name
	}
	return string(collection)
}

func (qs *QdrantStore) vectorSize() uint64 {
	if qs.cfg.VectorDimension > 0 {
		return uint64(qs.cfg.VectorDimension) //nolint:gosec // configured dimension is always small and positive
	}
	return 1536
}

// Initialize connects to Qdrant and creates the short_term/long_term
// collections if they don't already exist.
func (qs *QdrantStore) Initialize(ctx context.Context) error {
	start := time.Now()

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   qs.cfg.Host,
		Port:                   qs.cfg.Port,
		APIKey:                 qs.cfg.APIKey,
		UseTLS:                 qs.cfg.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		qs.metrics.ConnectionStatus = connectionStatusError
		qs.metrics.record("initialize", start, err)
		return fmt.Errorf("create qdrant client: %w", err)
	}
	qs.client = client

	existing, err := client.ListCollections(ctx)
	if err != nil {
		qs.metrics.ConnectionStatus = connectionStatusError
		qs.metrics.record("initialize", start, err)
		return fmt.Errorf("list collections: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	for _, name := range qs.collectionNames {
		if have[name] {
			continue
		}
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     qs.vectorSize(),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			qs.metrics.ConnectionStatus = connectionStatusError
			qs.metrics.record("initialize", start, err)
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		qs.logger.Info("created qdrant collection", "collection", name)
	}

	qs.metrics.ConnectionStatus = connectionStatusOK
	qs.metrics.record("initialize", start, nil)
	return nil
}

// Store upserts a single chunk into collection.
func (qs *QdrantStore) Store(ctx context.Context, collection types.CollectionType, chunk *types.Chunk) error {
	start := time.Now()
	if err := chunk.Validate(); err != nil {
		qs.metrics.record("store", start, err)
		return fmt.Errorf("invalid chunk: %w", err)
	}
	if len(chunk.Embedding) == 0 {
		err := fmt.Errorf("chunk %s has no embedding", chunk.ID)
		qs.metrics.record("store", start, err)
		return err
	}

	point := chunkToPoint(chunk)
	_, err := qs.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: qs.collectionName(collection),
		Points:         []*qdrant.PointStruct{point},
	})
	qs.metrics.record("store", start, err)
	if err != nil {
		return fmt.Errorf("upsert chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// Search performs a nearest-neighbor query against collection.
func (qs *QdrantStore) Search(ctx context.Context, collection types.CollectionType, queryEmbedding []float32, limit int) ([]types.SearchHit, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 10
	}

	result, err := qs.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: qs.collectionName(collection),
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          qdrant.PtrOf(uint64(limit)), //nolint:gosec // limit is bounds-checked above
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true}},
	})
	qs.metrics.record("search", start, err)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	hits := make([]types.SearchHit, 0, len(result))
	for _, scored := range result {
		chunk := scoredPointToChunk(scored)
		hits = append(hits, types.SearchHit{Chunk: *chunk, Score: float64(scored.GetScore()), Collection: collection})
	}
	return hits, nil
}

// SearchByMetadata scrolls collection for chunks matching filter on every
// key, used for document-id/memory-id lookups and the merge-history system
// document.
func (qs *QdrantStore) SearchByMetadata(ctx context.Context, collection types.CollectionType, filter map[string]string, limit int) ([]types.Chunk, error) {
	start := time.Now()
	var out []types.Chunk
	var offset *qdrant.PointId

	for {
		resp, err := qs.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: qs.collectionName(collection),
			Filter:         buildMetadataFilter(filter),
			Limit:          qdrant.PtrOf(uint32(1000)),
			Offset:         offset,
			WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true}},
		})
		if err != nil {
			qs.metrics.record("search_by_metadata", start, err)
			return nil, fmt.Errorf("scroll %s: %w", collection, err)
		}
		for _, p := range resp {
			out = append(out, *retrievedPointToChunk(p))
			if limit > 0 && len(out) >= limit {
				qs.metrics.record("search_by_metadata", start, nil)
				return out, nil
			}
		}
		if len(resp) < 1000 {
			break
		}
		offset = resp[len(resp)-1].GetId()
	}
	qs.metrics.record("search_by_metadata", start, nil)
	return out, nil
}

// GetByID fetches a single chunk by point id.
func (qs *QdrantStore) GetByID(ctx context.Context, collection types.CollectionType, id string) (*types.Chunk, error) {
	start := time.Now()
	points, err := qs.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: qs.collectionName(collection),
		Ids:            []*qdrant.PointId{stringToPointID(id)},
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true}},
	})
	qs.metrics.record("get_by_id", start, err)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	return retrievedPointToChunk(points[0]), nil
}

// Delete removes a single point by id.
func (qs *QdrantStore) Delete(ctx context.Context, collection types.CollectionType, id string) error {
	start := time.Now()
	_, err := qs.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: qs.collectionName(collection),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{stringToPointID(id)}},
			},
		},
	})
	qs.metrics.record("delete", start, err)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Update is an upsert: Qdrant points are keyed by id, so writing again
// replaces the point in place.
func (qs *QdrantStore) Update(ctx context.Context, collection types.CollectionType, chunk *types.Chunk) error {
	return qs.Store(ctx, collection, chunk)
}

// HealthCheck verifies the client can still reach the cluster.
func (qs *QdrantStore) HealthCheck(ctx context.Context) error {
	start := time.Now()
	_, err := qs.client.ListCollections(ctx)
	qs.metrics.record("health_check", start, err)
	if err != nil {
		qs.metrics.ConnectionStatus = connectionStatusError
		return fmt.Errorf("health check: %w", err)
	}
	qs.metrics.ConnectionStatus = connectionStatusOK
	return nil
}

// GetStats reports collection-wide counts for get_memory_stats.
func (qs *QdrantStore) GetStats(ctx context.Context, collection types.CollectionType) (*StoreStats, error) {
	start := time.Now()
	stats := &StoreStats{ChunksByTier: map[string]int64{}}

	info, err := qs.client.GetCollectionInfo(ctx, qs.collectionName(collection))
	if err != nil {
		qs.metrics.record("get_stats", start, err)
		return nil, fmt.Errorf("collection info %s: %w", collection, err)
	}
	stats.TotalChunks = int64(info.GetPointsCount()) //nolint:gosec // point counts fit in int64 in practice

	// Sample a page to estimate tier breakdown and oldest/newest bounds
	// without paging through the whole collection.
	resp, err := qs.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: qs.collectionName(collection),
		Limit:          qdrant.PtrOf(uint32(500)),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		qs.metrics.record("get_stats", start, err)
		return stats, nil
	}

	var oldest, newest *time.Time
	for _, p := range resp {
		payload := p.GetPayload()
		if tier := getPayloadString(payload, "ttl_tier"); tier != "" {
			stats.ChunksByTier[tier]++
		}
		if ts := payloadTime(payload, "timestamp"); !ts.IsZero() {
			if oldest == nil || ts.Before(*oldest) {
				oldest = &ts
			}
			if newest == nil || ts.After(*newest) {
				newest = &ts
			}
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
	qs.metrics.record("get_stats", start, nil)
	return stats, nil
}

// Cleanup deletes non-permanent chunks whose timestamp predates
// retentionDays, grounded on the teacher's Range-filter cleanup.
func (qs *QdrantStore) Cleanup(ctx context.Context, collection types.CollectionType, retentionDays int) (int, error) {
	start := time.Now()
	cutoff := float64(time.Now().AddDate(0, 0, -retentionDays).Unix())

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "timestamp_unix",
						Range: &qdrant.Range{Lt: &cutoff},
					},
				},
			},
		},
	}

	resp, err := qs.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: qs.collectionName(collection),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(10000)),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		qs.metrics.record("cleanup", start, err)
		return 0, fmt.Errorf("scroll for cleanup: %w", err)
	}

	var toDelete []*qdrant.PointId
	for _, p := range resp {
		if getPayloadBool(p.GetPayload(), "permanent_flag") {
			continue
		}
		toDelete = append(toDelete, p.GetId())
	}
	if len(toDelete) == 0 {
		qs.metrics.record("cleanup", start, nil)
		return 0, nil
	}

	_, err = qs.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: qs.collectionName(collection),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{Points: &qdrant.PointsIdsList{Ids: toDelete}},
		},
	})
	qs.metrics.record("cleanup", start, err)
	if err != nil {
		return 0, fmt.Errorf("delete expired points: %w", err)
	}
	return len(toDelete), nil
}

// Close releases the underlying gRPC connection.
func (qs *QdrantStore) Close() error {
	if qs.client == nil {
		return nil
	}
	return qs.client.Close()
}

// BatchStore upserts every chunk in one call, reporting per-item
// validation failures before the call and treating the whole batch as a
// single outcome after it (Qdrant's Upsert is all-or-nothing per request).
func (qs *QdrantStore) BatchStore(ctx context.Context, collection types.CollectionType, chunks []*types.Chunk) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if err := c.Validate(); err != nil || len(c.Embedding) == 0 {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: invalid or missing embedding", c.ID))
			continue
		}
		points = append(points, chunkToPoint(c))
	}
	if len(points) == 0 {
		qs.metrics.record("batch_store", start, nil)
		return result, nil
	}

	_, err := qs.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: qs.collectionName(collection),
		Points:         points,
	})
	qs.metrics.record("batch_store", start, err)
	if err != nil {
		result.Failed += len(points)
		result.Errors = append(result.Errors, err.Error())
		return result, fmt.Errorf("batch upsert: %w", err)
	}
	for _, p := range points {
		result.ProcessedIDs = append(result.ProcessedIDs, pointIDToString(p.GetId()))
		result.Success++
	}
	return result, nil
}

// BatchDelete removes every id in one call.
func (qs *QdrantStore) BatchDelete(ctx context.Context, collection types.CollectionType, ids []string) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{}
	if len(ids) == 0 {
		return result, nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = stringToPointID(id)
	}
	_, err := qs.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: qs.collectionName(collection),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{Points: &qdrant.PointsIdsList{Ids: pointIDs}},
		},
	})
	qs.metrics.record("batch_delete", start, err)
	if err != nil {
		result.Failed = len(ids)
		result.Errors = append(result.Errors, err.Error())
		return result, fmt.Errorf("batch delete: %w", err)
	}
	result.Success = len(ids)
	result.ProcessedIDs = ids
	return result, nil
}

// CountByCollection reports the collection's point count without paging,
// backing MaintenanceService's capacity trigger.
func (qs *QdrantStore) CountByCollection(ctx context.Context, collection types.CollectionType) (int, error) {
	start := time.Now()
	info, err := qs.client.GetCollectionInfo(ctx, qs.collectionName(collection))
	qs.metrics.record("count", start, err)
	if err != nil {
		return 0, fmt.Errorf("collection info %s: %w", collection, err)
	}
	return int(info.GetPointsCount()), nil //nolint:gosec // point counts fit in int in practice
}

// AllIDs scrolls the entire collection and returns every point id, backing
// RelationshipGraph's cleanup_stale_references full scan.
func (qs *QdrantStore) AllIDs(ctx context.Context, collection types.CollectionType) ([]string, error) {
	start := time.Now()
	var ids []string
	var offset *qdrant.PointId
	for {
		resp, err := qs.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: qs.collectionName(collection),
			Limit:          qdrant.PtrOf(uint32(1000)),
			Offset:         offset,
			WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: false}},
		})
		if err != nil {
			qs.metrics.record("all_ids", start, err)
			return nil, fmt.Errorf("scroll for all ids: %w", err)
		}
		for _, p := range resp {
			ids = append(ids, pointIDToString(p.GetId()))
		}
		if len(resp) < 1000 {
			break
		}
		offset = resp[len(resp)-1].GetId()
	}
	qs.metrics.record("all_ids", start, nil)
	return ids, nil
}

// buildMetadataFilter turns an exact-match field map into a Qdrant "must"
// filter of keyword conditions. Empty filter means "match everything".
func buildMetadataFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   k,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

// Value conversion helpers, grounded on the teacher's stringToValue /
// int64ToValue / stringSliceToValue methods (here as free functions since
// they don't need store state).

func stringToValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func int64ToValue(i int64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: i}}
}

func doubleToValue(f float64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: f}}
}

func boolToValue(b bool) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: b}}
}

func stringSliceToValue(slice []string) *qdrant.Value {
	values := make([]*qdrant.Value, len(slice))
	for i, s := range slice {
		values[i] = stringToValue(s)
	}
	return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
}

func stringToPointID(s string) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: s}}
}

func pointIDToString(id *qdrant.PointId) string {
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func getPayloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func getPayloadBool(payload map[string]*qdrant.Value, key string) bool {
	if v, ok := payload[key]; ok {
		return v.GetBoolValue()
	}
	return false
}

func getPayloadInt(payload map[string]*qdrant.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}

func getPayloadFloat(payload map[string]*qdrant.Value, key string) float64 {
	if v, ok := payload[key]; ok {
		return v.GetDoubleValue()
	}
	return 0
}

func getPayloadStringSlice(payload map[string]*qdrant.Value, key string) []string {
	v, ok := payload[key]
	if !ok {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, len(list.GetValues()))
	for i, item := range list.GetValues() {
		out[i] = item.GetStringValue()
	}
	return out
}

// payloadTime reads a field written by timeToPayload: RFC3339 text plus a
// parallel "_unix" numeric field used for Range filters.
func payloadTime(payload map[string]*qdrant.Value, key string) time.Time {
	s := getPayloadString(payload, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func payloadTimePtr(payload map[string]*qdrant.Value, key string) *time.Time {
	t := payloadTime(payload, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

// setPayloadTime writes both the human-readable RFC3339 string and a unix
// timestamp sibling field so Range filters (Cleanup) can query it.
func setPayloadTime(payload map[string]*qdrant.Value, key string, t time.Time) {
	if t.IsZero() {
		return
	}
	payload[key] = stringToValue(t.Format(time.RFC3339))
	payload[key+"_unix"] = doubleToValue(float64(t.Unix()))
}

// chunkToPoint serializes a types.Chunk into a Qdrant point, flattening
// ChunkMetadata's scalar fields into the payload, grounded on the
// teacher's chunkToPoint/buildChunkFromPayload pair.
func chunkToPoint(chunk *types.Chunk) *qdrant.PointStruct {
	m := chunk.Metadata
	payload := map[string]*qdrant.Value{
		"text":                       stringToValue(chunk.Text),
		"chunk_id":                   stringToValue(m.ChunkID),
		"document_id":                stringToValue(m.DocumentID),
		"memory_id":                  stringToValue(m.MemoryID),
		"chunk_index":                int64ToValue(int64(m.ChunkIndex)),
		"total_chunks":               int64ToValue(int64(m.TotalChunks)),
		"collection_type":            stringToValue(string(m.CollectionType)),
		"previous_chunk":             stringToValue(m.PreviousChunk),
		"next_chunk":                 stringToValue(m.NextChunk),
		"document_start":             boolToValue(m.DocumentStart),
		"document_end":               boolToValue(m.DocumentEnd),
		"relative_position":          doubleToValue(m.RelativePosition),
		"context_start_chunk":        stringToValue(m.ContextStartChunk),
		"context_end_chunk":          stringToValue(m.ContextEndChunk),
		"importance_score":           doubleToValue(m.ImportanceScore),
		"access_count":               int64ToValue(int64(m.AccessCount)),
		"ttl_tier":                   stringToValue(string(m.TTLTier)),
		"permanent_flag":             boolToValue(m.PermanentFlag),
		"permanence_reason":          stringToValue(m.PermanenceReason),
		"similarity_score":           doubleToValue(m.SimilarityScore),
		"duplicate_boost_count":      int64ToValue(int64(m.DuplicateBoostCount)),
		"importance_change_reason":   stringToValue(m.ImportanceChangeReason),
		"document_type":              stringToValue(m.DocumentType),
		"related_chunks_data":        stringToValue(m.RelatedChunksData),
		"dedup_sources_data":         stringToValue(m.DedupSourcesData),
		"relationship_strength_data": stringToValue(m.RelationshipStrengthData),
		"dedup_history_data":         stringToValue(m.DedupHistoryData),
	}
	setPayloadTime(payload, "timestamp", m.Timestamp)
	setPayloadTime(payload, "last_accessed", m.LastAccessed)
	setPayloadTime(payload, "importance_scored_at", m.ImportanceScoredAt)
	setPayloadTime(payload, "last_duplicate_detected", m.LastDuplicateDetected)
	setPayloadTime(payload, "importance_changed_at", m.ImportanceChangedAt)
	setPayloadTime(payload, "updated_at", m.UpdatedAt)
	if m.TTLSeconds != nil {
		payload["ttl_seconds"] = int64ToValue(*m.TTLSeconds)
	}
	if m.TTLExpiry != nil {
		setPayloadTime(payload, "ttl_expiry", *m.TTLExpiry)
	}
	if len(m.DuplicateSources) > 0 {
		payload["duplicate_sources"] = stringSliceToValue(m.DuplicateSources)
	}
	for k, v := range m.Extra {
		payload["extra_"+k] = stringToValue(v)
	}

	return &qdrant.PointStruct{
		Id:      stringToPointID(chunk.ID),
		Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: chunk.Embedding}}},
		Payload: payload,
	}
}

// buildMetadataFromPayload reconstructs ChunkMetadata from a point's payload.
func buildMetadataFromPayload(payload map[string]*qdrant.Value) types.ChunkMetadata {
	extra := make(map[string]string)
	for k, v := range payload {
		if strings.HasPrefix(k, "extra_") {
			extra[strings.TrimPrefix(k, "extra_")] = v.GetStringValue()
		}
	}
	var ttlSeconds *int64
	if v, ok := payload["ttl_seconds"]; ok {
		s := v.GetIntegerValue()
		ttlSeconds = &s
	}

	return types.ChunkMetadata{
		ChunkID:                  getPayloadString(payload, "chunk_id"),
		DocumentID:               getPayloadString(payload, "document_id"),
		MemoryID:                 getPayloadString(payload, "memory_id"),
		ChunkIndex:               int(getPayloadInt(payload, "chunk_index")),
		TotalChunks:              int(getPayloadInt(payload, "total_chunks")),
		CollectionType:           types.CollectionType(getPayloadString(payload, "collection_type")),
		PreviousChunk:            getPayloadString(payload, "previous_chunk"),
		NextChunk:                getPayloadString(payload, "next_chunk"),
		DocumentStart:            getPayloadBool(payload, "document_start"),
		DocumentEnd:              getPayloadBool(payload, "document_end"),
		RelativePosition:         getPayloadFloat(payload, "relative_position"),
		ContextStartChunk:        getPayloadString(payload, "context_start_chunk"),
		ContextEndChunk:          getPayloadString(payload, "context_end_chunk"),
		ImportanceScore:          getPayloadFloat(payload, "importance_score"),
		AccessCount:              int(getPayloadInt(payload, "access_count")),
		Timestamp:                payloadTime(payload, "timestamp"),
		LastAccessed:             payloadTime(payload, "last_accessed"),
		ImportanceScoredAt:       payloadTime(payload, "importance_scored_at"),
		TTLTier:                  types.TTLTier(getPayloadString(payload, "ttl_tier")),
		TTLSeconds:               ttlSeconds,
		TTLExpiry:                payloadTimePtr(payload, "ttl_expiry"),
		PermanentFlag:            getPayloadBool(payload, "permanent_flag"),
		PermanenceReason:         getPayloadString(payload, "permanence_reason"),
		DuplicateSources:         getPayloadStringSlice(payload, "duplicate_sources"),
		SimilarityScore:          getPayloadFloat(payload, "similarity_score"),
		DuplicateBoostCount:      int(getPayloadInt(payload, "duplicate_boost_count")),
		LastDuplicateDetected:    payloadTime(payload, "last_duplicate_detected"),
		ImportanceChangeReason:   getPayloadString(payload, "importance_change_reason"),
		ImportanceChangedAt:      payloadTime(payload, "importance_changed_at"),
		UpdatedAt:                payloadTime(payload, "updated_at"),
		RelatedChunksData:        getPayloadString(payload, "related_chunks_data"),
		DedupSourcesData:         getPayloadString(payload, "dedup_sources_data"),
		RelationshipStrengthData: getPayloadString(payload, "relationship_strength_data"),
		DedupHistoryData:         getPayloadString(payload, "dedup_history_data"),
		DocumentType:             getPayloadString(payload, "document_type"),
		Extra:                    extra,
	}
}

func vectorsToFloat32(v *qdrant.VectorsOutput) []float32 {
	if v == nil {
		return nil
	}
	if vec := v.GetVector(); vec != nil {
		return vec.GetData()
	}
	return nil
}

func retrievedPointToChunk(p *qdrant.RetrievedPoint) *types.Chunk {
	return &types.Chunk{
		ID:        pointIDToString(p.GetId()),
		Text:      getPayloadString(p.GetPayload(), "text"),
		Embedding: vectorsToFloat32(p.GetVectors()),
		Metadata:  buildMetadataFromPayload(p.GetPayload()),
	}
}

func scoredPointToChunk(p *qdrant.ScoredPoint) *types.Chunk {
	return &types.Chunk{
		ID:        pointIDToString(p.GetId()),
		Text:      getPayloadString(p.GetPayload(), "text"),
		Embedding: vectorsToFloat32(p.GetVectors()),
		Metadata:  buildMetadataFromPayload(p.GetPayload()),
	}
}
