// Package vectorindex implements the per-user on-disk vector index:
// lazy creation, incremental append, atomic persistence, and cosine
// similarity search.
package vectorindex

import (
	"fmt"
	"math"
	"sort"

	"github.com/starford/mimir/internal/apperr"
)

// Index holds one user's embedded chunks in memory. The dimension is fixed
// when the first vectors are added; appending or searching with vectors of a
// different length surfaces apperr.ErrIndexCorrupt rather than producing
// meaningless distances.
//
// An index only grows. Deleting a document removes its metadata and source
// file but leaves its vectors retrievable; the rebuild operation is the
// remediation path for that gap.
type Index struct {
	userID  int64
	dim     int
	vectors [][]float32
	chunks  []Chunk
}

// New creates an empty index for the given user.
func New(userID int64) *Index {
	return &Index{userID: userID}
}

// UserID returns the owning user id.
func (ix *Index) UserID() int64 { return ix.userID }

// Dimension returns the vector dimensionality, or 0 for an empty index.
func (ix *Index) Dimension() int { return ix.dim }

// Len returns the number of stored chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Append adds chunks and their embeddings to the index. Chunks whose
// embedding is empty are skipped (embedding unavailable for that text).
func (ix *Index) Append(chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("vectorindex: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if ix.dim == 0 {
			ix.dim = len(v)
		}
		if len(v) != ix.dim {
			return fmt.Errorf("vectorindex: vector dimension %d does not match index dimension %d: %w",
				len(v), ix.dim, apperr.ErrIndexCorrupt)
		}
		ix.vectors = append(ix.vectors, v)
		ix.chunks = append(ix.chunks, chunks[i])
	}
	return nil
}

// Search returns the k chunks nearest to the query embedding by cosine
// similarity, best first. Ordering is deterministic: ties keep insertion
// order. An empty query vector yields no results; a query vector of the
// wrong dimension is an ErrIndexCorrupt condition.
func (ix *Index) Search(query []float32, k int) ([]Scored, error) {
	if len(query) == 0 || ix.Len() == 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("vectorindex: query dimension %d does not match index dimension %d: %w",
			len(query), ix.dim, apperr.ErrIndexCorrupt)
	}
	if k <= 0 {
		k = 10
	}

	scored := make([]Scored, len(ix.chunks))
	order := make([]int, len(ix.chunks))
	for i, v := range ix.vectors {
		scored[i] = Scored{Chunk: ix.chunks[i], Score: cosine(query, v)}
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scored[order[a]].Score > scored[order[b]].Score
	})

	if k > len(order) {
		k = len(order)
	}
	out := make([]Scored, k)
	for i := 0; i < k; i++ {
		out[i] = scored[order[i]]
	}
	return out, nil
}

func cosine(a, b []float32) float32 {
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
