package reranker

import "memoria/internal/config"

// New builds the configured Reranker. An empty endpoint (or disabled
// config) falls back to LexicalReranker so QueryService can always
// rerank without an external model being reachable.
func New(cfg config.RerankerConfig, endpoint string) (Reranker, error) {
	if !cfg.Enabled || endpoint == "" {
		return NewLexicalReranker(), nil
	}
	return NewHTTPReranker(endpoint, cfg)
}
