// Package llama implements HTTP clients for a remote llama-server:
// embeddings, chat-style generation, and reranking. Each client carries its
// own failure contract so pipelines can degrade without exception-style
// control flow: the embedder returns empty vectors, the generator returns a
// readable error string, and the reranker passes candidates through
// unchanged.
package llama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultEmbeddingTimeout bounds a single embeddings request.
const DefaultEmbeddingTimeout = 30 * time.Second

// Embedder converts text into fixed-length vectors via the llama-server
// embeddings endpoint.
type Embedder struct {
	url    string
	model  string
	client *http.Client
	logger *slog.Logger
}

// NewEmbedder creates an embedding client for the given endpoint URL.
func NewEmbedder(url, model string, timeout time.Duration, logger *slog.Logger) *Embedder {
	if timeout <= 0 {
		timeout = DefaultEmbeddingTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type embeddingRequest struct {
	Input any    `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text. On any transport or HTTP failure
// every returned vector is empty; callers must treat an empty vector as
// "embedding unavailable" and degrade accordingly.
func (e *Embedder) Embed(ctx context.Context, texts []string) [][]float32 {
	empty := make([][]float32, len(texts))
	if len(texts) == 0 {
		return empty
	}

	var out embeddingResponse
	if err := e.post(ctx, embeddingRequest{Input: texts, Model: e.model}, &out); err != nil {
		e.logger.Warn("embedding request failed",
			slog.Int("texts", len(texts)),
			slog.String("error", err.Error()))
		return empty
	}
	if len(out.Data) != len(texts) {
		e.logger.Warn("embedding count mismatch",
			slog.Int("want", len(texts)),
			slog.Int("got", len(out.Data)))
		return empty
	}

	vectors := make([][]float32, len(texts))
	for i, d := range out.Data {
		vectors[i] = d.Embedding
	}
	return vectors
}

// EmbedOne returns the vector for a single text, or an empty vector when
// the embedding service is unavailable.
func (e *Embedder) EmbedOne(ctx context.Context, text string) []float32 {
	var out embeddingResponse
	if err := e.post(ctx, embeddingRequest{Input: text, Model: e.model}, &out); err != nil {
		e.logger.Warn("embedding request failed", slog.String("error", err.Error()))
		return nil
	}
	if len(out.Data) == 0 {
		return nil
	}
	return out.Data[0].Embedding
}

func (e *Embedder) post(ctx context.Context, body, out any) error {
	return postJSON(ctx, e.client, e.url, body, out)
}

// postJSON posts a JSON body and decodes a JSON response, treating any
// non-2xx status as an error.
func postJSON(ctx context.Context, client *http.Client, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("llama: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("llama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("llama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("llama: unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("llama: decode response: %w", err)
	}
	return nil
}
