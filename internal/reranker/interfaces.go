// Package reranker provides the cross-encoder reranker contract (spec.md
// §1's "cross-encoder reranker: query+doc → score" collaborator) plus a
// mock scorer for tests and an HTTP-backed implementation for production,
// mirroring internal/embeddings' contract+mock+http shape.
package reranker

import "context"

// Reranker scores how relevant doc is to query, independent of the
// original similarity-search score. When reranking is enabled,
// QueryService (C11) calls ScoreBatch once over the candidate hits, blends
// each returned score 50/50 with the hit's retrieval score, then re-sorts
// by the blended score before trimming to effective_k.
type Reranker interface {
	// Score returns a single query/doc relevance score. Higher is more
	// relevant; callers should not assume a fixed range across
	// implementations beyond "monotonically comparable within one call".
	Score(ctx context.Context, query, doc string) (float64, error)

	// ScoreBatch scores doc against every entry in docs in one round trip,
	// preserving input order.
	ScoreBatch(ctx context.Context, query string, docs []string) ([]float64, error)
}
