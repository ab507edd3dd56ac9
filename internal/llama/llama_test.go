package llama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func embeddingServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input any    `json:"input"`
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		count := 1
		if list, ok := req.Input.([]any); ok {
			count = len(list)
		}
		type item struct {
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, count)
		for i := range data {
			data[i] = item{Embedding: make([]float32, dim)}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedReturnsOneVectorPerText(t *testing.T) {
	srv := embeddingServer(t, 4)
	e := NewEmbedder(srv.URL, "test-model", 0, nil)

	got := e.Embed(context.Background(), []string{"one", "two", "three"})
	if len(got) != 3 {
		t.Fatalf("vectors = %d, want 3", len(got))
	}
	for i, v := range got {
		if len(v) != 4 {
			t.Errorf("vector %d has dim %d, want 4", i, len(v))
		}
	}
}

func TestEmbedSoftFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewEmbedder(srv.URL, "test-model", 0, nil)
	got := e.Embed(context.Background(), []string{"a", "b"})
	if len(got) != 2 {
		t.Fatalf("vectors = %d, want 2", len(got))
	}
	for i, v := range got {
		if len(v) != 0 {
			t.Errorf("vector %d should be empty on failure, got %v", i, v)
		}
	}
}

func TestEmbedSoftFailsOnUnreachableServer(t *testing.T) {
	e := NewEmbedder("http://127.0.0.1:1/v1/embeddings", "test-model", 0, nil)
	got := e.Embed(context.Background(), []string{"a"})
	if len(got) != 1 || len(got[0]) != 0 {
		t.Errorf("got %v, want one empty vector", got)
	}
	if v := e.EmbedOne(context.Background(), "a"); v != nil {
		t.Errorf("EmbedOne = %v, want nil", v)
	}
}

func TestEmbedCountMismatchDiscardsAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1, 2}}},
		})
	}))
	defer srv.Close()

	e := NewEmbedder(srv.URL, "test-model", 0, nil)
	got := e.Embed(context.Background(), []string{"a", "b"})
	for i, v := range got {
		if len(v) != 0 {
			t.Errorf("vector %d should be empty on count mismatch, got %v", i, v)
		}
	}
}

func generationServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Temperature != 0.7 {
			http.Error(w, fmt.Sprintf("temperature = %v", req.Temperature), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateReturnsCompletion(t *testing.T) {
	srv := generationServer(t, "  Paris is the capital of France.  ")
	g := NewGenerator(srv.URL, "test-model", 0, nil)

	got := g.Generate(context.Background(), "capital of france?")
	if got != "Paris is the capital of France." {
		t.Errorf("got %q", got)
	}
}

func TestGenerateStripsThinkBlocks(t *testing.T) {
	srv := generationServer(t, "<think>reasoning\nacross lines</think>The answer is 42.")
	g := NewGenerator(srv.URL, "test-model", 0, nil)

	got := g.Generate(context.Background(), "question")
	if got != "The answer is 42." {
		t.Errorf("got %q", got)
	}
}

func TestGenerateErrorString(t *testing.T) {
	g := NewGenerator("http://127.0.0.1:1/v1/chat/completions", "test-model", 0, nil)
	got := g.Generate(context.Background(), "question")
	if !strings.HasPrefix(got, "Error calling llama server: ") {
		t.Errorf("got %q, want error string prefix", got)
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	g := NewGenerator(srv.URL, "test-model", 0, nil)
	if got := g.Generate(context.Background(), "q"); got != "Error calling llama server: empty response" {
		t.Errorf("got %q", got)
	}
}

func rerankServer(t *testing.T, results []map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRerankOrdersByScore(t *testing.T) {
	srv := rerankServer(t, []map[string]any{
		{"index": 0, "relevance_score": 0.1},
		{"index": 1, "relevance_score": 0.9},
		{"index": 2, "relevance_score": 0.5},
	})
	r := NewReranker(srv.URL, "test-model", 0, nil)

	got := r.Rerank(context.Background(), "q", []string{"a", "b", "c"})
	want := []string{"b", "c", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRerankFailOpenOnServerError(t *testing.T) {
	r := NewReranker("http://127.0.0.1:1/v1/rerank", "test-model", 0, nil)
	in := []string{"a", "b", "c"}
	got := r.Rerank(context.Background(), "q", in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %v, want input order preserved", got)
	}
}

func TestRerankFailOpenOnInvalidIndices(t *testing.T) {
	cases := []struct {
		name    string
		results []map[string]any
	}{
		{"out of range", []map[string]any{
			{"index": 5, "relevance_score": 0.9},
		}},
		{"duplicate", []map[string]any{
			{"index": 0, "relevance_score": 0.9},
			{"index": 0, "relevance_score": 0.8},
			{"index": 1, "relevance_score": 0.7},
		}},
		{"partial", []map[string]any{
			{"index": 0, "relevance_score": 0.9},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := rerankServer(t, tc.results)
			r := NewReranker(srv.URL, "test-model", 0, nil)
			in := []string{"a", "b"}
			got := r.Rerank(context.Background(), "q", in)
			if !reflect.DeepEqual(got, in) {
				t.Errorf("got %v, want input unchanged", got)
			}
		})
	}
}

func TestRerankEmptyCandidates(t *testing.T) {
	r := NewReranker("http://127.0.0.1:1/v1/rerank", "test-model", 0, nil)
	if got := r.Rerank(context.Background(), "q", nil); len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}
