package query

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/mimir/internal/vectorindex"
)

// letterEmbedder maps text to letter frequencies, giving deterministic
// similarity without a model server.
type letterEmbedder struct{}

func (letterEmbedder) EmbedOne(_ context.Context, text string) []float32 {
	vec := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec
}

type emptyEmbedder struct{}

func (emptyEmbedder) EmbedOne(context.Context, string) []float32 { return nil }

type identityReranker struct{}

func (identityReranker) Rerank(_ context.Context, _ string, candidates []string) []string {
	return candidates
}

type reverseReranker struct{}

func (reverseReranker) Rerank(_ context.Context, _ string, candidates []string) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[len(candidates)-1-i] = c
	}
	return out
}

// garbageReranker returns texts that are not a permutation of the input.
type garbageReranker struct{}

func (garbageReranker) Rerank(_ context.Context, _ string, candidates []string) []string {
	return []string{"something else entirely"}
}

type stubGenerator struct{}

func (stubGenerator) Generate(context.Context, string) string { return "generated answer" }

type stubWeb struct{}

func (stubWeb) Answer(_ context.Context, query string) string { return "web: " + query }

func testIndexes(t *testing.T) *vectorindex.Manager {
	t.Helper()
	m, err := vectorindex.NewManager(filepath.Join(t.TempDir(), "indexes"))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func seedIndex(t *testing.T, m *vectorindex.Manager, userID int64, texts ...string) {
	t.Helper()
	ix := vectorindex.New(userID)
	emb := letterEmbedder{}
	chunks := make([]vectorindex.Chunk, len(texts))
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		chunks[i] = vectorindex.Chunk{Document: "doc.txt", Position: i, Text: text, Source: "src", Tags: "tag"}
		vectors[i] = emb.EmbedOne(context.Background(), text)
	}
	if err := ix.Append(chunks, vectors); err != nil {
		t.Fatal(err)
	}
	if err := m.Persist(ix); err != nil {
		t.Fatal(err)
	}
}

func newTestPipeline(m *vectorindex.Manager, reranker Reranker) *Pipeline {
	return NewPipeline(m, letterEmbedder{}, reranker, stubGenerator{}, stubWeb{}, nil)
}

func TestAnswerNoIndexFallsBackToWeb(t *testing.T) {
	p := newTestPipeline(testIndexes(t), identityReranker{})

	got := p.Answer(context.Background(), 1, "anything")
	if got.Source != SourceWeb {
		t.Errorf("source = %q, want web", got.Source)
	}
	if got.Answer != "web: anything" {
		t.Errorf("answer = %q", got.Answer)
	}
	if got.SourceDocuments == nil || len(got.SourceDocuments) != 0 {
		t.Errorf("source documents = %v, want empty non-nil slice", got.SourceDocuments)
	}
}

func TestAnswerCorruptIndexFallsBackToWeb(t *testing.T) {
	m := testIndexes(t)
	dir := m.UserDir(1)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.gob"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(m, identityReranker{})
	got := p.Answer(context.Background(), 1, "query")
	if got.Source != SourceWeb {
		t.Errorf("source = %q, want web", got.Source)
	}
}

func TestAnswerEmptyEmbeddingFallsBackToWeb(t *testing.T) {
	m := testIndexes(t)
	seedIndex(t, m, 1, "some stored content")

	p := NewPipeline(m, emptyEmbedder{}, identityReranker{}, stubGenerator{}, stubWeb{}, nil)
	got := p.Answer(context.Background(), 1, "query")
	if got.Source != SourceWeb {
		t.Errorf("source = %q, want web when the query cannot be embedded", got.Source)
	}
}

func TestAnswerLocal(t *testing.T) {
	m := testIndexes(t)
	seedIndex(t, m, 1, "kubernetes cluster networking", "sourdough bread recipes")

	p := newTestPipeline(m, identityReranker{})
	got := p.Answer(context.Background(), 1, "kubernetes networking")

	if got.Source != SourceLocal {
		t.Fatalf("source = %q, want local", got.Source)
	}
	if got.Answer != "generated answer" {
		t.Errorf("answer = %q", got.Answer)
	}
	if len(got.SourceDocuments) != 2 {
		t.Fatalf("source documents = %d, want 2", len(got.SourceDocuments))
	}
	best := got.SourceDocuments[0]
	if best.PageContent != "kubernetes cluster networking" {
		t.Errorf("best chunk = %q", best.PageContent)
	}
	if best.Metadata.Document != "doc.txt" || best.Metadata.Source != "src" || best.Metadata.Tags != "tag" {
		t.Errorf("metadata lost: %+v", best.Metadata)
	}
}

func TestAnswerSourcesFollowRerankOrder(t *testing.T) {
	m := testIndexes(t)
	seedIndex(t, m, 1, "alpha text", "beta text", "gamma text")

	p := newTestPipeline(m, reverseReranker{})
	got := p.Answer(context.Background(), 1, "text")
	if got.Source != SourceLocal {
		t.Fatalf("source = %q, want local", got.Source)
	}
	if len(got.SourceDocuments) != 3 {
		t.Fatalf("source documents = %d, want 3", len(got.SourceDocuments))
	}

	identity := newTestPipeline(m, identityReranker{})
	base := identity.Answer(context.Background(), 1, "text")
	for i := range got.SourceDocuments {
		j := len(base.SourceDocuments) - 1 - i
		if got.SourceDocuments[i].PageContent != base.SourceDocuments[j].PageContent {
			t.Errorf("reranked[%d] = %q, want %q",
				i, got.SourceDocuments[i].PageContent, base.SourceDocuments[j].PageContent)
		}
	}
}

func TestAnswerGarbageRerankKeepsRetrievalOrder(t *testing.T) {
	m := testIndexes(t)
	seedIndex(t, m, 1, "alpha text", "beta text")

	garbage := newTestPipeline(m, garbageReranker{})
	identity := newTestPipeline(m, identityReranker{})

	got := garbage.Answer(context.Background(), 1, "text")
	base := identity.Answer(context.Background(), 1, "text")
	if len(got.SourceDocuments) != len(base.SourceDocuments) {
		t.Fatalf("source documents = %d, want %d", len(got.SourceDocuments), len(base.SourceDocuments))
	}
	for i := range got.SourceDocuments {
		if got.SourceDocuments[i].PageContent != base.SourceDocuments[i].PageContent {
			t.Errorf("chunk %d reordered despite invalid rerank output", i)
		}
	}
}

func TestAnswerDuplicateChunksStayDistinct(t *testing.T) {
	m := testIndexes(t)
	seedIndex(t, m, 1, "repeated text", "repeated text")

	p := newTestPipeline(m, identityReranker{})
	got := p.Answer(context.Background(), 1, "repeated")
	if len(got.SourceDocuments) != 2 {
		t.Fatalf("source documents = %d, want 2", len(got.SourceDocuments))
	}
	if got.SourceDocuments[0].Metadata.Position == got.SourceDocuments[1].Metadata.Position {
		t.Error("duplicate texts collapsed to the same chunk")
	}
}
