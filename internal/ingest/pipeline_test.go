package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/starford/mimir/internal/store"
	"github.com/starford/mimir/internal/testutil"
	"github.com/starford/mimir/internal/vectorindex"
)

type fakeEmbedder struct {
	dim  int
	fail bool
}

func (f fakeEmbedder) Embed(_ context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.fail {
			out[i] = nil
			continue
		}
		vec := make([]float32, f.dim)
		for j, r := range text {
			vec[j%f.dim] += float32(r)
		}
		out[i] = vec
	}
	return out
}

func testPipeline(t *testing.T, embedder Embedder) (*Pipeline, *store.Store, *vectorindex.Manager) {
	t.Helper()
	st := testutil.TestStore(t)
	indexes := testutil.TestIndexes(t)
	return NewPipeline(st, indexes, embedder, nil), st, indexes
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestCreatesIndexAndMetadata(t *testing.T) {
	p, st, indexes := testPipeline(t, fakeEmbedder{dim: 8})
	ctx := context.Background()

	path := writeDoc(t, "notes.txt", "the quick brown fox jumps over the lazy dog")
	doc, err := p.Ingest(ctx, 1, path, TypeText, "https://example.com", "animals")
	if err != nil {
		t.Fatal(err)
	}
	if doc.ID == 0 || doc.Source != "https://example.com" || doc.Tags != "animals" {
		t.Errorf("unexpected document record: %+v", doc)
	}
	if doc.Checksum == "" {
		t.Error("checksum not recorded")
	}

	ix, err := indexes.Load(1)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 1 {
		t.Errorf("index len = %d, want 1 chunk", ix.Len())
	}

	docs, err := st.ListDocuments(ctx, 1, store.DocumentFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Errorf("documents = %d, want 1", len(docs))
	}
}

func TestIngestTwiceAppendsIndependently(t *testing.T) {
	p, _, indexes := testPipeline(t, fakeEmbedder{dim: 8})
	ctx := context.Background()

	path := writeDoc(t, "notes.txt", strings.Repeat("some text ", 200)) // 2000 runes, 3 chunks
	if _, err := p.Ingest(ctx, 1, path, TypeText, "", ""); err != nil {
		t.Fatal(err)
	}
	first, err := indexes.Load(1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Ingest(ctx, 1, path, TypeText, "", ""); err != nil {
		t.Fatal(err)
	}
	second, err := indexes.Load(1)
	if err != nil {
		t.Fatal(err)
	}
	if second.Len() != 2*first.Len() {
		t.Errorf("len after double ingest = %d, want %d (no deduplication)", second.Len(), 2*first.Len())
	}
}

func TestIngestFailsWhenEmbedderUnavailable(t *testing.T) {
	p, st, indexes := testPipeline(t, fakeEmbedder{dim: 8, fail: true})
	ctx := context.Background()

	path := writeDoc(t, "notes.txt", "content that cannot be embedded")
	if _, err := p.Ingest(ctx, 1, path, TypeText, "", ""); err == nil {
		t.Fatal("expected error when every embedding fails")
	}

	if indexes.Exists(1) {
		t.Error("no index should be created on total embedding failure")
	}
	docs, err := st.ListDocuments(ctx, 1, store.DocumentFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Error("no metadata should be written on total embedding failure")
	}
}

func TestIngestEmptyDocument(t *testing.T) {
	p, _, _ := testPipeline(t, fakeEmbedder{dim: 8})
	path := writeDoc(t, "empty.txt", "")
	if _, err := p.Ingest(context.Background(), 1, path, TypeText, "", ""); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestIngestUnsupportedType(t *testing.T) {
	p, _, _ := testPipeline(t, fakeEmbedder{dim: 8})
	path := writeDoc(t, "notes.docx", "text")
	if _, err := p.Ingest(context.Background(), 1, path, "docx", "", ""); err == nil {
		t.Fatal("expected error for unsupported document type")
	}
}

func TestConcurrentIngestLosesNothing(t *testing.T) {
	p, _, indexes := testPipeline(t, fakeEmbedder{dim: 8})
	ctx := context.Background()

	const workers = 6
	paths := make([]string, workers)
	for i := range paths {
		paths[i] = writeDoc(t, "doc.txt", strings.Repeat("words and more words ", 10))
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			_, err := p.Ingest(ctx, 1, path, TypeText, "", "")
			errs <- err
		}(paths[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	ix, err := indexes.Load(1)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != workers {
		t.Errorf("index len = %d, want %d (one chunk per ingest)", ix.Len(), workers)
	}
}

func TestRebuildConcurrentIngestLosesNothing(t *testing.T) {
	p, st, indexes := testPipeline(t, fakeEmbedder{dim: 8})
	ctx := context.Background()

	first := writeDoc(t, "first.txt", "document present before the rebuild")
	if _, err := p.Ingest(ctx, 1, first, TypeText, "", ""); err != nil {
		t.Fatal(err)
	}

	// Whichever side wins the user lock, the late document must end up in
	// both the metadata store and the final index: either the rebuild sees
	// its committed row, or the ingest appends to the freshly swapped
	// snapshot.
	for i := 0; i < 5; i++ {
		late := writeDoc(t, "late.txt", "document racing the rebuild")

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- p.Rebuild(ctx, 1)
		}()
		go func() {
			defer wg.Done()
			_, err := p.Ingest(ctx, 1, late, TypeText, "", "")
			errs <- err
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatal(err)
			}
		}

		docs, err := st.ListDocuments(ctx, 1, store.DocumentFilter{})
		if err != nil {
			t.Fatal(err)
		}
		ix, err := indexes.Load(1)
		if err != nil {
			t.Fatal(err)
		}
		if ix.Len() != len(docs) {
			t.Fatalf("round %d: index has %d chunks for %d documents", i, ix.Len(), len(docs))
		}
	}
}

func TestDeleteLeavesVectorsRebuildRemoves(t *testing.T) {
	p, st, indexes := testPipeline(t, fakeEmbedder{dim: 8})
	ctx := context.Background()

	keep := writeDoc(t, "keep.txt", "document that stays around")
	drop := writeDoc(t, "drop.txt", "document that will be deleted")

	if _, err := p.Ingest(ctx, 1, keep, TypeText, "", ""); err != nil {
		t.Fatal(err)
	}
	dropped, err := p.Ingest(ctx, 1, drop, TypeText, "", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := st.DeleteDocument(ctx, 1, dropped.ID); err != nil {
		t.Fatal(err)
	}
	os.Remove(drop)

	// Deletion leaves the vectors behind.
	ix, err := indexes.Load(1)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 2 {
		t.Errorf("index len after delete = %d, want 2 (stale vectors stay)", ix.Len())
	}

	// Rebuild drops them.
	if err := p.Rebuild(ctx, 1); err != nil {
		t.Fatal(err)
	}
	ix, err = indexes.Load(1)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 1 {
		t.Errorf("index len after rebuild = %d, want 1", ix.Len())
	}
}
