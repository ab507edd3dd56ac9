package llama

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// DefaultRerankTimeout bounds a single rerank request.
const DefaultRerankTimeout = 30 * time.Second

// Reranker reorders candidate passages by relevance to a query using the
// llama-server reranking endpoint.
type Reranker struct {
	url    string
	model  string
	client *http.Client
	logger *slog.Logger
}

// NewReranker creates a reranking client for the given endpoint URL.
func NewReranker(url, model string, timeout time.Duration, logger *slog.Logger) *Reranker {
	if timeout <= 0 {
		timeout = DefaultRerankTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank returns candidates sorted by descending relevance score, ties kept
// in service order. On any failure it returns the candidates unchanged
// (fail-open): relevance degrades but retrieval does not.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []string) []string {
	if len(candidates) == 0 {
		return candidates
	}

	req := rerankRequest{Model: r.model, Query: query, Documents: candidates}
	var out rerankResponse
	if err := postJSON(ctx, r.client, r.url, req, &out); err != nil {
		r.logger.Warn("rerank request failed", slog.String("error", err.Error()))
		return candidates
	}

	results := out.Results
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].RelevanceScore > results[b].RelevanceScore
	})

	reranked := make([]string, 0, len(candidates))
	seen := make(map[int]bool, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(candidates) || seen[res.Index] {
			r.logger.Warn("rerank returned invalid index", slog.Int("index", res.Index))
			return candidates
		}
		seen[res.Index] = true
		reranked = append(reranked, candidates[res.Index])
	}
	if len(reranked) != len(candidates) {
		// Partial result sets would silently drop candidates; keep them all.
		return candidates
	}
	return reranked
}
