// Package types provides the core data structures for the memory engine:
// documents, chunks, their metadata, and the queries issued against them.
package types

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// CollectionType identifies which retention tier a chunk lives in.
type CollectionType string

const (
	CollectionShortTerm CollectionType = "short_term"
	CollectionLongTerm  CollectionType = "long_term"
)

// Valid reports whether the collection type is one of the two tiers.
func (c CollectionType) Valid() bool {
	return c == CollectionShortTerm || c == CollectionLongTerm
}

// TTLTier buckets a chunk's importance into a retention policy.
type TTLTier string

const (
	TTLHighFrequency   TTLTier = "high_frequency"
	TTLMediumFrequency TTLTier = "medium_frequency"
	TTLLowFrequency    TTLTier = "low_frequency"
	TTLStatic          TTLTier = "static"
	TTLPermanent       TTLTier = "permanent"
)

// Valid reports whether the tier is a recognized TTL tier.
func (t TTLTier) Valid() bool {
	switch t {
	case TTLHighFrequency, TTLMediumFrequency, TTLLowFrequency, TTLStatic, TTLPermanent:
		return true
	}
	return false
}

// permanenceOrder ranks tiers from least to most permanent, used when
// merging documents that carry different tiers (the more permanent tier wins).
var permanenceOrder = map[TTLTier]int{
	TTLHighFrequency:   0,
	TTLMediumFrequency: 1,
	TTLLowFrequency:    2,
	TTLStatic:          3,
	TTLPermanent:       4,
}

// MorePermanent returns the tier that outranks the other in the permanence order.
func MorePermanent(a, b TTLTier) TTLTier {
	if permanenceOrder[a] >= permanenceOrder[b] {
		return a
	}
	return b
}

// MemoryType selects how StorageService routes an incoming document.
type MemoryType string

const (
	MemoryTypeAuto      MemoryType = "auto"
	MemoryTypeShortTerm MemoryType = "short_term"
	MemoryTypeLongTerm  MemoryType = "long_term"
)

// Document is the caller-supplied unit of text handed to the engine on ingest.
// It is never stored as a single row; StorageService always chunks it.
type Document struct {
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Language   string                 `json:"language,omitempty"`
	MemoryType MemoryType             `json:"memory_type"`
}

// Validate checks that a document has the minimum shape required to ingest.
func (d *Document) Validate() error {
	if d.Content == "" {
		return errors.New("content cannot be empty")
	}
	switch d.MemoryType {
	case "", MemoryTypeAuto, MemoryTypeShortTerm, MemoryTypeLongTerm:
	default:
		return fmt.Errorf("invalid memory type: %s", d.MemoryType)
	}
	return nil
}

// NewMemoryID produces a "{tier}_{millis}_{rand4}" identifier for a document.
// Collisions are astronomically unlikely and are not guarded against, per
// the engine's concurrency model: callers retry idempotently on failure.
func NewMemoryID(tier CollectionType, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", tier, now.UnixMilli(), randSuffix(4))
}

// ChunkID formats the persisted id for the chunk-th piece of memoryID.
func ChunkID(memoryID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", memoryID, index)
}

func randSuffix(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			// crypto/rand failure is not expected in practice; fall back to
			// a fixed character rather than panicking mid-ingest.
			buf[i] = alphabet[0]
			continue
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf)
}

// ChunkMetadata holds every system field persisted alongside a chunk, plus
// whatever scalar caller metadata survived the storage-boundary flattening
// (§3/§4.9 step 6 — lists/maps become JSON strings, nil becomes "").
type ChunkMetadata struct {
	// Identity
	ChunkID        string         `json:"chunk_id"`
	DocumentID     string         `json:"document_id"`
	MemoryID       string         `json:"memory_id"` // alias of DocumentID; see open question #3
	ChunkIndex     int            `json:"chunk_index"`
	TotalChunks    int            `json:"total_chunks"`
	CollectionType CollectionType `json:"collection_type"`

	// Adjacency
	PreviousChunk     string  `json:"previous_chunk,omitempty"`
	NextChunk         string  `json:"next_chunk,omitempty"`
	DocumentStart     bool    `json:"document_start"`
	DocumentEnd       bool    `json:"document_end"`
	RelativePosition  float64 `json:"relative_position"`
	ContextStartChunk string  `json:"context_start_chunk,omitempty"`
	ContextEndChunk   string  `json:"context_end_chunk,omitempty"`

	// Scoring/usage
	ImportanceScore   float64   `json:"importance_score"`
	AccessCount       int       `json:"access_count"`
	Timestamp         time.Time `json:"timestamp"`
	LastAccessed      time.Time `json:"last_accessed"`
	ImportanceScoredAt time.Time `json:"importance_scored_at"`

	// Lifecycle
	TTLTier          TTLTier    `json:"ttl_tier"`
	TTLSeconds       *int64     `json:"ttl_seconds,omitempty"` // nil means infinite
	TTLExpiry        *time.Time `json:"ttl_expiry,omitempty"`
	PermanentFlag    bool       `json:"permanent_flag"`
	PermanenceReason string     `json:"permanence_reason,omitempty"`

	// Dedup lineage
	DuplicateSources      []string  `json:"duplicate_sources,omitempty"`
	SimilarityScore        float64   `json:"similarity_score,omitempty"`
	DuplicateBoostCount    int       `json:"duplicate_boost_count"`
	LastDuplicateDetected  *time.Time `json:"last_duplicate_detected,omitempty"`

	// Change tracking (UpdateService)
	ImportanceChangeReason string     `json:"importance_change_reason,omitempty"`
	ImportanceChangedAt    *time.Time `json:"importance_changed_at,omitempty"`
	UpdatedAt              *time.Time `json:"updated_at,omitempty"`

	// Persisted relationship blobs (JSON strings; see internal/relationships)
	RelatedChunksData       string `json:"related_chunks_data,omitempty"`
	DedupSourcesData        string `json:"dedup_sources_data,omitempty"`
	RelationshipStrengthData string `json:"relationship_strength_data,omitempty"`
	DedupHistoryData        string `json:"dedup_history_data,omitempty"`

	// System-document marker (merge history log, §4.6)
	DocumentType string `json:"document_type,omitempty"`

	// Caller-supplied scalar metadata, flattened at the storage boundary.
	// Non-scalar values are JSON-encoded strings; see FlattenCallerMetadata.
	Extra map[string]string `json:"extra,omitempty"`
}

// ShouldExpire reports whether the chunk's TTL has elapsed as of now.
// Permanent chunks never expire (invariant #2 of spec.md §8).
func (m *ChunkMetadata) ShouldExpire(now time.Time) bool {
	if m.PermanentFlag || m.TTLTier == TTLPermanent {
		return false
	}
	if m.TTLExpiry == nil {
		return false
	}
	return now.After(*m.TTLExpiry)
}

// Chunk is the persisted unit: text, its embedding, and its metadata.
type Chunk struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Embedding []float32     `json:"embedding"`
	Metadata  ChunkMetadata `json:"metadata"`
}

// Validate enforces the structural invariants from spec.md §3/§8.
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return errors.New("chunk id cannot be empty")
	}
	if c.Metadata.ChunkIndex < 0 || c.Metadata.ChunkIndex >= c.Metadata.TotalChunks {
		return fmt.Errorf("chunk_index %d out of range [0,%d)", c.Metadata.ChunkIndex, c.Metadata.TotalChunks)
	}
	if c.Metadata.ImportanceScore < 0 || c.Metadata.ImportanceScore > 1 {
		return fmt.Errorf("importance_score %f out of [0,1]", c.Metadata.ImportanceScore)
	}
	if c.Metadata.AccessCount < 0 {
		return errors.New("access_count cannot be negative")
	}
	wantStart := c.Metadata.ChunkIndex == 0
	if c.Metadata.DocumentStart != wantStart {
		return errors.New("document_start inconsistent with chunk_index")
	}
	wantEnd := c.Metadata.ChunkIndex == c.Metadata.TotalChunks-1
	if c.Metadata.DocumentEnd != wantEnd {
		return errors.New("document_end inconsistent with chunk_index")
	}
	if c.Metadata.PermanentFlag && c.Metadata.TTLExpiry != nil {
		return errors.New("permanent chunk cannot carry a ttl_expiry")
	}
	return nil
}

// FlattenCallerMetadata converts arbitrary caller metadata into the scalar
// map the vector-store boundary requires: scalars pass through as strings,
// nil becomes "", everything else (slices, maps) is JSON-encoded.
func FlattenCallerMetadata(meta map[string]interface{}) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = flattenValue(v)
	}
	return out
}

func flattenValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64, float32, int, int32, int64:
		return fmt.Sprintf("%v", val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
