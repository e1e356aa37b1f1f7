package reranker

import (
	"context"
	"strings"
)

// LexicalReranker is a dependency-free fallback reranker used when no
// model-backed reranker is configured: token-overlap (Jaccard) between
// query and doc. Grounded on internal/relationships' tokenSet/Jaccard
// helper, generalized here to a standalone Reranker.
type LexicalReranker struct{}

// NewLexicalReranker builds a LexicalReranker. It needs no configuration
// and never fails, making it a safe default/test double.
func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

func (r *LexicalReranker) Score(_ context.Context, query, doc string) (float64, error) {
	return jaccard(tokenize(query), tokenize(doc)), nil
}

func (r *LexicalReranker) ScoreBatch(ctx context.Context, query string, docs []string) ([]float64, error) {
	scores := make([]float64, len(docs))
	qTokens := tokenize(query)
	for i, d := range docs {
		scores[i] = jaccard(qTokens, tokenize(d))
	}
	return scores, nil
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?()[]{}\"'")
		if w != "" {
			out[w] = struct{}{}
		}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
