package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"memoria/internal/config"
	"memoria/internal/similarity"
	"memoria/pkg/types"
)

// ErrSQLiteNotFound marks a lookup that found no matching row, mirroring
// the teacher pack's wrapDBError(sql.ErrNoRows) convention.
var ErrSQLiteNotFound = errors.New("sqlite: not found")

// SQLiteStore is a single-file VectorStore backed by database/sql, used by
// the "sqlite" provider for single-binary deployments that don't want a
// Qdrant sidecar. There is no native vector index: Search/SearchByMetadata
// load the collection's rows and score them in process, grounded on
// MemoryStore's brute-force cosine sweep. Grounded on
// _examples/steveyegge-beads/internal/storage/sqlite's database/sql idiom
// (ExecContext/QueryRowContext, a wrapDBError helper, ON CONFLICT upserts).
type SQLiteStore struct {
	db   *sql.DB
	calc *similarity.Calculator
}

// NewSQLiteStore opens (creating if absent) the database file at cfg.SQLitePath.
func NewSQLiteStore(cfg config.VectorStoreConfig) (*SQLiteStore, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./data/memoria.db"
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, wrapSQLiteError("open database", err)
	}
	return &SQLiteStore{db: db, calc: similarity.New()}, nil
}

func wrapSQLiteError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: %s: %w", op, ErrSQLiteNotFound)
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id              TEXT NOT NULL,
	collection      TEXT NOT NULL,
	text            TEXT NOT NULL,
	embedding       BLOB NOT NULL,
	metadata        TEXT NOT NULL,
	document_id     TEXT NOT NULL,
	timestamp_unix  INTEGER NOT NULL,
	permanent_flag  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(collection, document_id);
`

// Initialize creates the schema if it does not already exist.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return wrapSQLiteError("create schema", err)
}

func encodeEmbedding(v []float32) []byte {
	b, _ := json.Marshal(v)
	return b
}

func decodeEmbedding(b []byte) []float32 {
	var v []float32
	_ = json.Unmarshal(b, &v)
	return v
}

// Store upserts chunk into collection.
func (s *SQLiteStore) Store(ctx context.Context, collection types.CollectionType, chunk *types.Chunk) error {
	metaJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, collection, text, embedding, metadata, document_id, timestamp_unix, permanent_flag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			text = excluded.text, embedding = excluded.embedding, metadata = excluded.metadata,
			document_id = excluded.document_id, timestamp_unix = excluded.timestamp_unix, permanent_flag = excluded.permanent_flag
	`, chunk.ID, string(collection), chunk.Text, encodeEmbedding(chunk.Embedding), string(metaJSON),
		chunk.Metadata.DocumentID, chunk.Metadata.Timestamp.Unix(), boolToInt(chunk.Metadata.PermanentFlag))
	return wrapSQLiteError("store chunk", err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) scanRow(rows *sql.Rows) (*types.Chunk, error) {
	var id, text, metaJSON string
	var embedding []byte
	if err := rows.Scan(&id, &text, &embedding, &metaJSON); err != nil {
		return nil, err
	}
	var meta types.ChunkMetadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
	}
	return &types.Chunk{ID: id, Text: text, Embedding: decodeEmbedding(embedding), Metadata: meta}, nil
}

func (s *SQLiteStore) loadCollection(ctx context.Context, collection types.CollectionType) ([]*types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, embedding, metadata FROM chunks WHERE collection = ?`, string(collection))
	if err != nil {
		return nil, wrapSQLiteError("load collection", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Chunk
	for rows.Next() {
		c, err := s.scanRow(rows)
		if err != nil {
			return nil, wrapSQLiteError("scan chunk", err)
		}
		out = append(out, c)
	}
	return out, wrapSQLiteError("iterate chunks", rows.Err())
}

// Search runs a brute-force cosine sweep over collection, as there is no
// vector index backing this provider.
func (s *SQLiteStore) Search(ctx context.Context, collection types.CollectionType, queryEmbedding []float32, limit int) ([]types.SearchHit, error) {
	chunks, err := s.loadCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	hits := make([]types.SearchHit, 0, len(chunks))
	for _, c := range chunks {
		hits = append(hits, types.SearchHit{Chunk: *c, Score: s.calc.Cosine(queryEmbedding, c.Embedding), Collection: collection})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchByMetadata filters collection by scalar Extra fields (plus the
// document_id/memory_id/document_type special cases), mirroring
// MemoryStore.matchesFilter.
func (s *SQLiteStore) SearchByMetadata(ctx context.Context, collection types.CollectionType, filter map[string]string, limit int) ([]types.Chunk, error) {
	chunks, err := s.loadCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	var out []types.Chunk
	for _, c := range chunks {
		if matchesFilter(c, filter) {
			out = append(out, *c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetByID fetches a single chunk by id, returning (nil, nil) on a miss.
func (s *SQLiteStore) GetByID(ctx context.Context, collection types.CollectionType, id string) (*types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, embedding, metadata FROM chunks WHERE collection = ? AND id = ?`, string(collection), id)
	if err != nil {
		return nil, wrapSQLiteError("get chunk", err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, wrapSQLiteError("iterate", rows.Err())
	}
	return s.scanRow(rows)
}

// Delete removes one chunk.
func (s *SQLiteStore) Delete(ctx context.Context, collection types.CollectionType, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ? AND id = ?`, string(collection), id)
	return wrapSQLiteError("delete chunk", err)
}

// Update is an alias of Store: the upsert already covers replacement.
func (s *SQLiteStore) Update(ctx context.Context, collection types.CollectionType, chunk *types.Chunk) error {
	return s.Store(ctx, collection, chunk)
}

// HealthCheck pings the underlying database handle.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return wrapSQLiteError("ping", s.db.PingContext(ctx))
}

// GetStats aggregates chunk counts and the oldest/newest timestamp per tier.
func (s *SQLiteStore) GetStats(ctx context.Context, collection types.CollectionType) (*StoreStats, error) {
	chunks, err := s.loadCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	stats := &StoreStats{ChunksByTier: map[string]int64{}}
	var oldest, newest *time.Time
	for _, c := range chunks {
		stats.TotalChunks++
		stats.ChunksByTier[string(c.Metadata.TTLTier)]++
		ts := c.Metadata.Timestamp
		if oldest == nil || ts.Before(*oldest) {
			oldest = &ts
		}
		if newest == nil || ts.After(*newest) {
			newest = &ts
		}
	}
	if oldest != nil {
		str := oldest.Format(time.RFC3339)
		stats.OldestChunk = &str
	}
	if newest != nil {
		str := newest.Format(time.RFC3339)
		stats.NewestChunk = &str
	}
	return stats, nil
}

// Cleanup deletes non-permanent rows older than retentionDays.
func (s *SQLiteStore) Cleanup(ctx context.Context, collection types.CollectionType, retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ? AND permanent_flag = 0 AND timestamp_unix < ?`, string(collection), cutoff)
	if err != nil {
		return 0, wrapSQLiteError("cleanup", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BatchStore stores each chunk with its own statement (no enclosing
// transaction), continuing past a single chunk's failure (spec.md §8's
// data-loss-avoidance invariant: a partial batch never rolls back what
// already succeeded).
func (s *SQLiteStore) BatchStore(ctx context.Context, collection types.CollectionType, chunks []*types.Chunk) (*BatchResult, error) {
	res := &BatchResult{}
	for _, c := range chunks {
		if err := s.Store(ctx, collection, c); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Success++
		res.ProcessedIDs = append(res.ProcessedIDs, c.ID)
	}
	return res, nil
}

// BatchDelete deletes each id independently, continuing past a failure.
func (s *SQLiteStore) BatchDelete(ctx context.Context, collection types.CollectionType, ids []string) (*BatchResult, error) {
	res := &BatchResult{}
	for _, id := range ids {
		if err := s.Delete(ctx, collection, id); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Success++
		res.ProcessedIDs = append(res.ProcessedIDs, id)
	}
	return res, nil
}

// CountByCollection returns the row count for collection.
func (s *SQLiteStore) CountByCollection(ctx context.Context, collection types.CollectionType) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, string(collection)).Scan(&count)
	return count, wrapSQLiteError("count collection", err)
}

// AllIDs returns every chunk id stored in collection.
func (s *SQLiteStore) AllIDs(ctx context.Context, collection types.CollectionType) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE collection = ?`, string(collection))
	if err != nil {
		return nil, wrapSQLiteError("list ids", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapSQLiteError("scan id", err)
		}
		ids = append(ids, id)
	}
	return ids, wrapSQLiteError("iterate ids", rows.Err())
}
