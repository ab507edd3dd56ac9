// Package testutil provides shared test helpers for setting up stores and
// index directories.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/mimir/internal/store"
	"github.com/starford/mimir/internal/vectorindex"
)

// TestStore creates a temporary SQLite store that is automatically cleaned
// up.
func TestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestIndexes creates an index manager rooted in a temporary directory.
func TestIndexes(t *testing.T) *vectorindex.Manager {
	t.Helper()

	m, err := vectorindex.NewManager(filepath.Join(t.TempDir(), "indexes"))
	if err != nil {
		t.Fatal(err)
	}
	return m
}
