package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"memoria/internal/config"
)

// HTTPReranker calls a cross-encoder model served behind a single scoring
// endpoint, matching internal/embeddings' preference for a small
// hand-rolled client over an SDK for single-endpoint integrations.
type HTTPReranker struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewHTTPReranker builds a client against endpoint. endpoint must accept
// the {query, documents, model} request shape and return {scores}.
func NewHTTPReranker(endpoint string, cfg config.RerankerConfig) (*HTTPReranker, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("reranker: endpoint is required")
	}
	return &HTTPReranker{
		endpoint:   endpoint,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

func (h *HTTPReranker) Score(ctx context.Context, query, doc string) (float64, error) {
	scores, err := h.ScoreBatch(ctx, query, []string{doc})
	if err != nil {
		return 0, err
	}
	if len(scores) == 0 {
		return 0, fmt.Errorf("reranker: empty response")
	}
	return scores[0], nil
}

func (h *HTTPReranker) ScoreBatch(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Documents: docs, Model: h.model})
	if err != nil {
		return nil, fmt.Errorf("reranker: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("reranker: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reranker: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reranker: read response: %w", err)
	}

	var parsed rerankResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("reranker: decode response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("reranker: %s", parsed.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reranker: status %d", resp.StatusCode)
	}
	if len(parsed.Scores) != len(docs) {
		return nil, fmt.Errorf("reranker: expected %d scores, got %d", len(docs), len(parsed.Scores))
	}
	return parsed.Scores, nil
}
