package reports

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/starford/mimir/internal/ingest"
	"github.com/starford/mimir/internal/store"
	"github.com/starford/mimir/internal/testutil"
)

func addDoc(t *testing.T, st *store.Store, userID int64, content string) *store.Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := st.InsertDocument(context.Background(), store.Document{
		UserID:       userID,
		FilePath:     path,
		DocumentType: ingest.TypeText,
	})
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestKeywordsNoDocuments(t *testing.T) {
	svc := NewService(testutil.TestStore(t), nil)
	_, err := svc.Keywords(context.Background(), 1)
	if !errors.Is(err, ErrNoDocuments) {
		t.Errorf("err = %v, want ErrNoDocuments", err)
	}
}

func TestKeywordsNoReadableDocuments(t *testing.T) {
	st := testutil.TestStore(t)
	doc := addDoc(t, st, 1, "content")
	os.Remove(doc.FilePath)

	svc := NewService(st, nil)
	_, err := svc.Keywords(context.Background(), 1)
	if !errors.Is(err, ErrNoReadableDocuments) {
		t.Errorf("err = %v, want ErrNoReadableDocuments", err)
	}
}

func TestKeywordsTopTermsAlphabetical(t *testing.T) {
	st := testutil.TestStore(t)
	addDoc(t, st, 1, strings.Repeat("kubernetes ", 5)+strings.Repeat("deployment ", 3))
	addDoc(t, st, 1, strings.Repeat("kubernetes ", 2)+"networking storage")

	svc := NewService(st, nil)
	got, err := svc.Keywords(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"deployment", "kubernetes", "networking", "storage"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if !sort.StringsAreSorted(got) {
		t.Error("keywords must be alphabetically ordered")
	}
}

func TestKeywordsFiltersStopwordsAndCapsAtTen(t *testing.T) {
	st := testutil.TestStore(t)
	var sb strings.Builder
	sb.WriteString("the and of to in is it that for with ")
	for _, w := range []string{
		"alpha", "bravo", "charlie", "delta", "echo", "foxtrot",
		"golf", "hotel", "india", "juliett", "kilo", "lima",
	} {
		sb.WriteString(w + " ")
	}
	// Make the first ten words strictly more frequent than the rest.
	for i := 0; i < 3; i++ {
		sb.WriteString("alpha bravo charlie delta echo foxtrot golf hotel india juliett ")
	}
	addDoc(t, st, 1, sb.String())

	svc := NewService(st, nil)
	got, err := svc.Keywords(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Fatalf("keywords = %d, want 10", len(got))
	}
	for _, kw := range got {
		if kw == "the" || kw == "and" || kw == "kilo" || kw == "lima" {
			t.Errorf("unexpected keyword %q", kw)
		}
	}
}

func TestKeywordsIsolatedPerUser(t *testing.T) {
	st := testutil.TestStore(t)
	addDoc(t, st, 1, "databases databases databases")
	addDoc(t, st, 2, "compilers compilers compilers")

	svc := NewService(st, nil)
	got, err := svc.Keywords(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, kw := range got {
		if kw == "compilers" {
			t.Error("keywords leaked across users")
		}
	}
}

func TestClustersNotEnoughDocuments(t *testing.T) {
	st := testutil.TestStore(t)
	for i := 0; i < 4; i++ {
		addDoc(t, st, 1, "some content here")
	}

	svc := NewService(st, nil)
	_, err := svc.Clusters(context.Background(), 1)
	if !errors.Is(err, ErrNotEnoughDocuments) {
		t.Errorf("err = %v, want ErrNotEnoughDocuments", err)
	}
}

func TestClustersNotEnoughReadableDocuments(t *testing.T) {
	st := testutil.TestStore(t)
	for i := 0; i < 4; i++ {
		addDoc(t, st, 1, "readable content")
	}
	gone := addDoc(t, st, 1, "soon unreadable")
	os.Remove(gone.FilePath)

	svc := NewService(st, nil)
	_, err := svc.Clusters(context.Background(), 1)
	if !errors.Is(err, ErrNotEnoughDocuments) {
		t.Errorf("err = %v, want ErrNotEnoughDocuments", err)
	}
}

func TestClustersShapeAndDeterminism(t *testing.T) {
	st := testutil.TestStore(t)
	corpus := []string{
		"kubernetes pods deployments services ingress kubernetes cluster",
		"sourdough bread flour yeast baking oven sourdough starter",
		"guitar chords scales practice fretboard guitar strings",
		"telescope astronomy stars galaxies nebula telescope observation",
		"espresso coffee grinder beans roast espresso portafilter",
		"kubernetes networking overlay pods services kubernetes",
	}
	for _, text := range corpus {
		addDoc(t, st, 1, text)
	}

	svc := NewService(st, nil)
	first, err := svc.Clusters(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 5 {
		t.Fatalf("clusters = %d, want 5", len(first))
	}
	for i := 1; i <= 5; i++ {
		key := "Cluster " + string(rune('0'+i))
		terms, ok := first[key]
		if !ok {
			t.Fatalf("missing %q", key)
		}
		if len(terms) == 0 || len(terms) > 10 {
			t.Errorf("%s has %d terms, want 1..10", key, len(terms))
		}
	}

	second, err := svc.Clusters(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("clustering must be deterministic for a fixed corpus")
	}
}
