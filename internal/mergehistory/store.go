// Package mergehistory implements MergeHistoryStore (spec.md §4.7): a
// bounded map of merge events, durable across restarts as a single "system
// document" in the short-term collection rather than a side database.
// Grounded on the teacher's repository pattern of wrapping a VectorStore
// collection behind a small typed API (internal/storage's *_repository.go
// shape, generalized here to one fixed logical document instead of a
// per-entity table).
package mergehistory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"memoria/internal/storage"
	"memoria/pkg/types"
)

// SystemDocumentID is the document_id stamped on the merge-history system
// document (spec.md §4.6's "system document" concept).
const SystemDocumentID = "system_merge_history"

const systemChunkID = "system_merge_history_chunk_0"

// Store is the MergeHistoryStore collaborator (C7). Reads and writes are
// both serialized behind a single mutex; reads are not lock-free.
type Store struct {
	mu      sync.Mutex
	vs      storage.VectorStore
	maxSize int
	events  map[string]types.MergeEvent
	loaded  bool
	mirror  *PostgresMirror
}

// SetMirror attaches an optional Postgres mirror (spec.md §3's durability
// escape hatch). A nil mirror disables mirroring, which is the default.
func (s *Store) SetMirror(m *PostgresMirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror = m
}

// New builds a Store backed by vs. maxSize bounds the log
// (MAX_MERGE_HISTORY_SIZE, default 1000).
func New(vs storage.VectorStore, maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Store{vs: vs, maxSize: maxSize, events: make(map[string]types.MergeEvent)}
}

// ensureLoaded hydrates the in-memory map from the system document on
// first access. Caller holds s.mu.
func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	chunk, err := s.vs.GetByID(ctx, types.CollectionShortTerm, systemChunkID)
	if err != nil {
		return fmt.Errorf("mergehistory: load system document: %w", err)
	}
	if chunk != nil && chunk.Text != "" {
		if err := json.Unmarshal([]byte(chunk.Text), &s.events); err != nil {
			return fmt.Errorf("mergehistory: decode system document: %w", err)
		}
	}
	s.loaded = true
	return nil
}

// Append records event, pruning the oldest entry by timestamp whenever the
// log exceeds maxSize, then persists the updated log (spec.md §4.7:
// "Saved after every mutation; if size exceeds cap, prune by oldest
// timestamp").
func (s *Store) Append(ctx context.Context, event types.MergeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.events[event.MergeID] = event
	s.pruneLocked()
	if err := s.saveLocked(ctx); err != nil {
		return err
	}
	s.mirror.Mirror(ctx, event)
	return nil
}

func (s *Store) pruneLocked() {
	for len(s.events) > s.maxSize {
		var oldestID string
		var oldestTS time.Time
		first := true
		for id, e := range s.events {
			if first || e.Timestamp.Before(oldestTS) {
				oldestID, oldestTS, first = id, e.Timestamp, false
			}
		}
		delete(s.events, oldestID)
	}
}

func (s *Store) saveLocked(ctx context.Context) error {
	payload, err := json.Marshal(s.events)
	if err != nil {
		return fmt.Errorf("mergehistory: encode system document: %w", err)
	}
	now := time.Now()
	chunk := &types.Chunk{
		ID:   systemChunkID,
		Text: string(payload),
		Metadata: types.ChunkMetadata{
			ChunkID:        systemChunkID,
			DocumentID:     SystemDocumentID,
			MemoryID:       SystemDocumentID,
			ChunkIndex:     0,
			TotalChunks:    1,
			CollectionType: types.CollectionShortTerm,
			DocumentType:   types.SystemMergeHistoryDocumentType,
			DocumentStart:  true,
			DocumentEnd:    true,
			Timestamp:      now,
			LastAccessed:   now,
			TTLTier:        types.TTLPermanent,
			PermanentFlag:  true,
		},
	}

	existing, err := s.vs.GetByID(ctx, types.CollectionShortTerm, systemChunkID)
	if err != nil {
		return fmt.Errorf("mergehistory: probe system document: %w", err)
	}
	if existing == nil {
		return s.vs.Store(ctx, types.CollectionShortTerm, chunk)
	}
	return s.vs.Update(ctx, types.CollectionShortTerm, chunk)
}

// All returns a snapshot of every recorded merge event, loading from the
// system document on first access.
func (s *Store) All(ctx context.Context) (map[string]types.MergeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]types.MergeEvent, len(s.events))
	for k, v := range s.events {
		out[k] = v
	}
	return out, nil
}

// Get returns one merge event by id, or nil if not recorded.
func (s *Store) Get(ctx context.Context, mergeID string) (*types.MergeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	e, ok := s.events[mergeID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Close releases the Postgres mirror's connection pool, if one is attached.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirror.Close()
}

// Len reports how many merge events are currently recorded.
func (s *Store) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	return len(s.events), nil
}
