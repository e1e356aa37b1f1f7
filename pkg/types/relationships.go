package types

import "time"

// SystemMergeHistoryDocumentType marks the logical system document that
// carries merge history across restarts (spec.md §4.6/§4.7).
const SystemMergeHistoryDocumentType = "system_merge_history"

// EdgeSource identifies how a related-chunk edge was established.
type EdgeSource string

const (
	EdgeAdjacency    EdgeSource = "adjacency"
	EdgeSemantic     EdgeSource = "semantic"
	EdgeCoOccurrence EdgeSource = "co_occurrence"
	EdgeMergeSource  EdgeSource = "merge_source"
)

// RelatedChunkEdge is one entry in a chunk's persisted related_chunks_data.
type RelatedChunkEdge struct {
	ChunkID          string     `json:"chunk_id"`
	Source           EdgeSource `json:"source"`
	Score            float64    `json:"score"`
	ContextRelevance float64    `json:"context_relevance,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// DedupSourceEntry records a document id subsumed by a merge.
type DedupSourceEntry struct {
	DocumentID      string    `json:"document_id"`
	SimilarityScore float64   `json:"similarity_score"`
	MergedAt        time.Time `json:"merged_at"`
}

// DedupHistoryEntry is a compact record of a merge event, stamped onto
// every chunk of the surviving document (complements the full event kept
// durably in the merge-history system document).
type DedupHistoryEntry struct {
	MergeID          string    `json:"merge_id"`
	PrimaryDocument  string    `json:"primary_document"`
	MergedDocument   string    `json:"merged_document"`
	SimilarityScore  float64   `json:"similarity_score"`
	Timestamp        time.Time `json:"timestamp"`
}

// ComplexRelationships carries the derived adjacency bounds for a chunk.
type ComplexRelationships struct {
	Previous         string  `json:"previous,omitempty"`
	Next             string  `json:"next,omitempty"`
	DocumentStart    bool    `json:"document_start"`
	DocumentEnd      bool    `json:"document_end"`
	RelativePosition float64 `json:"relative_position"`
	ContextStart     string  `json:"context_start,omitempty"`
	ContextEnd       string  `json:"context_end,omitempty"`
}

// ChunkRelationshipRecord is the in-memory cache entry for one chunk,
// mirrored to the persisted JSON blobs described in spec.md §4.6.
type ChunkRelationshipRecord struct {
	ChunkID              string                 `json:"chunk_id"`
	DocumentID            string                 `json:"document_id"`
	ChunkIndex            int                    `json:"chunk_index"`
	ContentPreview        string                 `json:"content_preview"`
	RelatedChunks         []RelatedChunkEdge     `json:"related_chunks"`
	DeduplicationSources  []DedupSourceEntry     `json:"deduplication_sources"`
	RelationshipStrength  map[string]float64     `json:"relationship_strength"`
	ComplexRelationships  ComplexRelationships   `json:"complex_relationships"`
}

// DocumentRelationshipRecord is the in-memory cache entry for one document.
type DocumentRelationshipRecord struct {
	DocumentID            string               `json:"document_id"`
	ChunkCount            int                  `json:"chunk_count"`
	CreationTime          time.Time            `json:"creation_time"`
	Collection            CollectionType       `json:"collection"`
	Language              string               `json:"language"`
	ChunkIDs              []string             `json:"chunk_ids"`
	DeduplicationHistory  []DedupHistoryEntry  `json:"deduplication_history"`
	RelatedDocuments      []string             `json:"related_documents"`
	ConsolidatedInto      string               `json:"consolidated_into,omitempty"`
}

// MergeEvent is one entry in the bounded merge-history log (spec.md §4.7).
type MergeEvent struct {
	MergeID               string             `json:"merge_id"`
	Timestamp             time.Time          `json:"timestamp"`
	PrimaryDocument       string             `json:"primary_document"`
	MergedDocuments       []string           `json:"merged_documents"`
	SimilarityScores      map[string]float64 `json:"similarity_scores"`
	PreservedRelationships []string          `json:"preserved_relationships"`
	ConsolidatedMetadata  map[string]string  `json:"consolidated_metadata"`
}
