// Package query implements the question-answering pipeline: retrieval from
// the user's vector index, relevance reranking, answer synthesis, and the
// fallback decision to web search. A query never returns a hard error for
// remote failures; the worst case is a lower-quality answer.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/mimir/internal/vectorindex"
)

// RetrievalK is the similarity search breadth.
const RetrievalK = 10

// Source tags for a query result.
const (
	SourceLocal = "local"
	SourceWeb   = "web"
)

// Embedder produces a query embedding; empty means unavailable.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) []float32
}

// Reranker reorders candidates by relevance; fail-open per its contract.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []string) []string
}

// Generator produces a completion; soft-fails to a readable string.
type Generator interface {
	Generate(ctx context.Context, prompt string) string
}

// WebSearcher answers a query from the web; never errors.
type WebSearcher interface {
	Answer(ctx context.Context, query string) string
}

// Result is the outcome of one query.
type Result struct {
	Answer          string           `json:"answer"`
	Source          string           `json:"source"`
	SourceDocuments []SourceDocument `json:"source_documents"`
}

// SourceDocument is one supporting chunk, in post-rerank order.
type SourceDocument struct {
	PageContent string         `json:"page_content"`
	Metadata    SourceMetadata `json:"metadata"`
}

// SourceMetadata carries chunk provenance.
type SourceMetadata struct {
	Document string `json:"document"`
	Position int    `json:"position"`
	Source   string `json:"source,omitempty"`
	Tags     string `json:"tags,omitempty"`
}

// Pipeline orchestrates retrieval, reranking, synthesis, and fallback.
type Pipeline struct {
	indexes  *vectorindex.Manager
	embedder Embedder
	reranker Reranker
	gen      Generator
	web      WebSearcher
	logger   *slog.Logger
}

// NewPipeline creates a query pipeline.
func NewPipeline(indexes *vectorindex.Manager, embedder Embedder, reranker Reranker, gen Generator, web WebSearcher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		indexes:  indexes,
		embedder: embedder,
		reranker: reranker,
		gen:      gen,
		web:      web,
		logger:   logger,
	}
}

// Answer runs the query state machine for one user. The result is always a
// usable answer: local when the knowledge base has relevant chunks, web
// otherwise (including the "not configured" and "no information" texts from
// the web client).
func (p *Pipeline) Answer(ctx context.Context, userID int64, query string) *Result {
	if !p.indexes.Exists(userID) {
		p.logger.Info("no index for user, falling back to web search",
			slog.Int64("user_id", userID))
		return p.webResult(ctx, query)
	}

	ix, err := p.indexes.Load(userID)
	if err != nil {
		// Same outcome as NoIndex but a different cause: the index exists
		// and could not be read.
		p.logger.Error("index load failed, falling back to web search",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()))
		return p.webResult(ctx, query)
	}

	queryVec := p.embedder.EmbedOne(ctx, query)
	if len(queryVec) == 0 {
		p.logger.Warn("query embedding unavailable",
			slog.Int64("user_id", userID))
	}

	candidates, err := ix.Search(queryVec, RetrievalK)
	if err != nil {
		p.logger.Error("similarity search failed, falling back to web search",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()))
		return p.webResult(ctx, query)
	}
	if len(candidates) == 0 {
		return p.webResult(ctx, query)
	}

	ordered := p.rerank(ctx, query, candidates)

	texts := make([]string, len(ordered))
	sources := make([]SourceDocument, len(ordered))
	for i, c := range ordered {
		texts[i] = c.Text
		sources[i] = SourceDocument{
			PageContent: c.Text,
			Metadata: SourceMetadata{
				Document: c.Document,
				Position: c.Position,
				Source:   c.Source,
				Tags:     c.Tags,
			},
		}
	}

	answer := p.gen.Generate(ctx, buildPrompt(texts, query))
	return &Result{Answer: answer, Source: SourceLocal, SourceDocuments: sources}
}

// rerank applies the reranking client's ordering to the candidate chunks.
// The reranker operates on plain texts; its permutation is mapped back to
// chunks by consuming matching candidates, so duplicate texts stay
// distinct. A reordering that is not a permutation of the input keeps the
// retrieval order.
func (p *Pipeline) rerank(ctx context.Context, query string, candidates []vectorindex.Scored) []vectorindex.Chunk {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Chunk.Text
	}

	reranked := p.reranker.Rerank(ctx, query, texts)

	chunks := make([]vectorindex.Chunk, 0, len(candidates))
	used := make([]bool, len(candidates))
	for _, text := range reranked {
		for i, c := range candidates {
			if !used[i] && c.Chunk.Text == text {
				used[i] = true
				chunks = append(chunks, c.Chunk)
				break
			}
		}
	}
	if len(chunks) != len(candidates) {
		chunks = chunks[:0]
		for _, c := range candidates {
			chunks = append(chunks, c.Chunk)
		}
	}
	return chunks
}

func (p *Pipeline) webResult(ctx context.Context, query string) *Result {
	return &Result{
		Answer:          p.web.Answer(ctx, query),
		Source:          SourceWeb,
		SourceDocuments: []SourceDocument{},
	}
}

func buildPrompt(contexts []string, query string) string {
	return fmt.Sprintf(
		"Use the following pieces of context to answer the question at the end. "+
			"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n"+
			"%s\n\nQuestion: %s\nHelpful Answer:",
		strings.Join(contexts, "\n\n"), query)
}
