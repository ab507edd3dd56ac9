// Package ingest implements the document ingestion pipeline: load, split
// into overlapping chunks, embed, and append to the owning user's vector
// index, then record document metadata.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/checksum"
	"github.com/starford/mimir/internal/store"
	"github.com/starford/mimir/internal/vectorindex"
)

// Embedder batch-converts texts to vectors. Satisfied by *llama.Embedder.
// An empty vector means the embedding was unavailable for that text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) [][]float32
}

// Pipeline wires the loaders, splitter, embedder, index manager, and
// metadata store together.
type Pipeline struct {
	store    *store.Store
	indexes  *vectorindex.Manager
	embedder Embedder
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(st *store.Store, indexes *vectorindex.Manager, embedder Embedder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: st, indexes: indexes, embedder: embedder, logger: logger}
}

// Ingest adds the document at filePath to userID's knowledge base. Each
// step is a hard precondition for the next: load, split, embed, index
// append, atomic persist, and only then the metadata write, so a document
// record never references chunks absent from the index.
//
// Ingesting the same document twice appends two independent chunk sets;
// there is no deduplication.
func (p *Pipeline) Ingest(ctx context.Context, userID int64, filePath, docType, source, tags string) (*store.Document, error) {
	text, err := Load(filePath, docType)
	if err != nil {
		return nil, err
	}

	chunks := Split(text, ChunkSize, ChunkOverlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingest: document %s contains no text", filePath)
	}

	vectors := p.embedder.Embed(ctx, chunks)
	embedded := 0
	for _, v := range vectors {
		if len(v) > 0 {
			embedded++
		}
	}
	if embedded == 0 {
		return nil, fmt.Errorf("ingest: embedding service unavailable for %s", filePath)
	}
	if embedded < len(chunks) {
		p.logger.Warn("some chunks could not be embedded",
			slog.Int("total", len(chunks)),
			slog.Int("embedded", embedded),
			slog.String("file", filePath))
	}

	// The metadata row is written under the same lock as the index append
	// so a concurrent rebuild observes vectors and metadata together,
	// never one without the other.
	unlock, err := p.indexes.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := p.appendLocked(userID, source, tags, filePath, chunks, vectors); err != nil {
		return nil, err
	}

	doc, err := p.store.InsertDocument(ctx, store.Document{
		UserID:       userID,
		FilePath:     filePath,
		DocumentType: docType,
		Source:       source,
		Tags:         tags,
		Checksum:     fileChecksum(filePath),
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("document ingested",
		slog.Int64("user_id", userID),
		slog.Int64("document_id", doc.ID),
		slog.String("type", docType),
		slog.Int("chunks", embedded))
	return doc, nil
}

// appendLocked runs the load-modify-persist cycle under the caller-held
// user lock. A corrupt existing index is surfaced, never overwritten with a
// fresh one, to avoid masking data loss.
func (p *Pipeline) appendLocked(userID int64, source, tags, filePath string, texts []string, vectors [][]float32) error {
	ix, err := p.indexes.Load(userID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		ix = vectorindex.New(userID)
	case err != nil:
		return err
	}

	ixChunks := make([]vectorindex.Chunk, len(texts))
	for i, t := range texts {
		ixChunks[i] = vectorindex.Chunk{
			Document: filePath,
			Position: i,
			Text:     t,
			Source:   source,
			Tags:     tags,
		}
	}
	if err := ix.Append(ixChunks, vectors); err != nil {
		return err
	}
	return p.indexes.Persist(ix)
}

// fileChecksum returns the file's digest, or empty when the file cannot be
// read (metadata only, not a precondition).
func fileChecksum(path string) string {
	sum, err := checksum.File(path)
	if err != nil {
		return ""
	}
	return sum
}
