package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/mimir/internal/store"
	"github.com/starford/mimir/internal/vectorindex"
)

// Rebuild re-ingests every document still present in the metadata store
// into a fresh index and atomically swaps it in. This is the remediation
// path for the documented metadata/vector inconsistency (deleted documents
// leave stale vectors behind) and for embedding dimension changes.
//
// Documents whose source file can no longer be read are skipped with a
// warning; their metadata stays.
func (p *Pipeline) Rebuild(ctx context.Context, userID int64) error {
	// The lock spans the listing, the re-embedding, and the snapshot swap.
	// An ingest running concurrently either commits fully before the
	// listing or blocks until the swap is done; nothing can land between
	// the two and be dropped from the fresh index.
	unlock, err := p.indexes.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	docs, err := p.store.ListDocuments(ctx, userID, store.DocumentFilter{})
	if err != nil {
		return err
	}

	fresh := vectorindex.New(userID)
	for _, doc := range docs {
		text, err := Load(doc.FilePath, doc.DocumentType)
		if err != nil {
			p.logger.Warn("rebuild: skipping unreadable document",
				slog.Int64("document_id", doc.ID),
				slog.String("path", doc.FilePath),
				slog.String("error", err.Error()))
			continue
		}
		chunks := Split(text, ChunkSize, ChunkOverlap)
		if len(chunks) == 0 {
			continue
		}
		vectors := p.embedder.Embed(ctx, chunks)

		ixChunks := make([]vectorindex.Chunk, len(chunks))
		for i, t := range chunks {
			ixChunks[i] = vectorindex.Chunk{
				Document: doc.FilePath,
				Position: i,
				Text:     t,
				Source:   doc.Source,
				Tags:     doc.Tags,
			}
		}
		if err := fresh.Append(ixChunks, vectors); err != nil {
			return fmt.Errorf("ingest: rebuild user %d: %w", userID, err)
		}
	}

	if err := p.indexes.Persist(fresh); err != nil {
		return err
	}
	p.logger.Info("index rebuilt",
		slog.Int64("user_id", userID),
		slog.Int("documents", len(docs)),
		slog.Int("chunks", fresh.Len()))
	return nil
}
