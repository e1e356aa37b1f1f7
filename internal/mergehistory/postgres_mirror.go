package mergehistory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver, registered under "postgres"

	"memoria/internal/config"
	"memoria/internal/logging"
	"memoria/pkg/types"
)

func encodeStringSlice(v []string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func encodeScores(v map[string]float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// PostgresMirror is the optional durability escape hatch SPEC_FULL.md §3
// promises: a queryable copy of the merge-history log outside the vector
// store. The vector-store system document remains the source of truth
// (spec.md §4.7); the mirror write runs synchronously inside Store.Append,
// and a mirror failure is logged and never fails Append.
//
// Grounded on the teacher's storage/postgres.go pattern of a thin sql.DB
// wrapper with its own schema migration run once at startup.
type PostgresMirror struct {
	db     *sql.DB
	logger logging.Logger
}

const mergeHistorySchema = `
CREATE TABLE IF NOT EXISTS merge_history (
	merge_id          TEXT PRIMARY KEY,
	primary_document  TEXT NOT NULL,
	merged_documents  TEXT NOT NULL,
	similarity_scores TEXT NOT NULL,
	occurred_at       TIMESTAMPTZ NOT NULL
)`

// NewPostgresMirror opens a connection pool against cfg and ensures the
// mirror table exists. Returns nil, nil when cfg.Enabled is false.
func NewPostgresMirror(cfg config.DatabaseConfig, logger logging.Logger) (*PostgresMirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("mergehistory: open postgres mirror: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mergehistory: ping postgres mirror: %w", err)
	}
	if _, err := db.ExecContext(ctx, mergeHistorySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mergehistory: migrate postgres mirror: %w", err)
	}

	return &PostgresMirror{db: db, logger: logger.WithComponent("mergehistory_mirror")}, nil
}

// Mirror upserts one merge event into the Postgres table. Failures are
// logged, not returned: the caller's write to the vector-store system
// document already succeeded and remains authoritative.
func (m *PostgresMirror) Mirror(ctx context.Context, event types.MergeEvent) {
	if m == nil {
		return
	}
	merged := encodeStringSlice(event.MergedDocuments)
	scores := encodeScores(event.SimilarityScores)

	const upsert = `
INSERT INTO merge_history (merge_id, primary_document, merged_documents, similarity_scores, occurred_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (merge_id) DO UPDATE SET
	primary_document = EXCLUDED.primary_document,
	merged_documents = EXCLUDED.merged_documents,
	similarity_scores = EXCLUDED.similarity_scores,
	occurred_at = EXCLUDED.occurred_at`

	if _, err := m.db.ExecContext(ctx, upsert, event.MergeID, event.PrimaryDocument, merged, scores, event.Timestamp); err != nil {
		m.logger.Warn("failed to mirror merge event to postgres", "merge_id", event.MergeID, "error", err)
	}
}

// Close releases the mirror's connection pool.
func (m *PostgresMirror) Close() error {
	if m == nil {
		return nil
	}
	return m.db.Close()
}
