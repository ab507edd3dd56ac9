package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/mimir/internal/apperr"
)

// Document is the metadata record for one ingested document. The vectors
// derived from it live in the owner's index and are not removed when the
// record is deleted.
type Document struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"-"`
	FilePath     string    `json:"file_path"`
	DocumentType string    `json:"document_type"`
	Source       string    `json:"source,omitempty"`
	Tags         string    `json:"tags,omitempty"`
	Checksum     string    `json:"checksum,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// DocumentFilter narrows ListDocuments results. Zero values mean "no
// constraint".
type DocumentFilter struct {
	Type      string
	StartDate time.Time
	EndDate   time.Time
}

// InsertDocument records document metadata and returns the stored row.
func (s *Store) InsertDocument(ctx context.Context, d Document) (*Document, error) {
	now := time.Now().UTC()
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO documents (user_id, file_path, document_type, source, tags, checksum, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.UserID, d.FilePath, d.DocumentType, d.Source, d.Tags, d.Checksum, now)
	if err != nil {
		return nil, fmt.Errorf("store: insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: last insert id: %w", err)
	}
	d.ID = id
	d.UploadedAt = now
	return &d, nil
}

// GetDocument returns a single document owned by userID.
func (s *Store) GetDocument(ctx context.Context, userID, docID int64) (*Document, error) {
	var d Document
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, user_id, file_path, document_type, source, tags, checksum, uploaded_at
		FROM documents WHERE id = ? AND user_id = ?
	`, docID, userID).Scan(&d.ID, &d.UserID, &d.FilePath, &d.DocumentType, &d.Source, &d.Tags, &d.Checksum, &d.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get document: %w", err)
	}
	return &d, nil
}

// ListDocuments returns a user's documents, optionally filtered by type and
// upload date range, newest first.
func (s *Store) ListDocuments(ctx context.Context, userID int64, f DocumentFilter) ([]Document, error) {
	var (
		conds = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.Type != "" {
		conds = append(conds, "document_type = ?")
		args = append(args, f.Type)
	}
	if !f.StartDate.IsZero() {
		conds = append(conds, "uploaded_at >= ?")
		args = append(args, f.StartDate.UTC())
	}
	if !f.EndDate.IsZero() {
		conds = append(conds, "uploaded_at <= ?")
		args = append(args, f.EndDate.UTC())
	}

	query := `
		SELECT id, user_id, file_path, document_type, source, tags, checksum, uploaded_at
		FROM documents WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY uploaded_at DESC, id DESC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.UserID, &d.FilePath, &d.DocumentType, &d.Source, &d.Tags, &d.Checksum, &d.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDocumentMeta updates source and/or tags. Nil pointers leave the
// current value unchanged.
func (s *Store) UpdateDocumentMeta(ctx context.Context, userID, docID int64, source, tags *string) (*Document, error) {
	d, err := s.GetDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if source != nil {
		d.Source = *source
	}
	if tags != nil {
		d.Tags = *tags
	}
	_, err = s.conn.ExecContext(ctx,
		`UPDATE documents SET source = ?, tags = ? WHERE id = ? AND user_id = ?`,
		d.Source, d.Tags, docID, userID)
	if err != nil {
		return nil, fmt.Errorf("store: update document: %w", err)
	}
	return d, nil
}

// DeleteDocument removes a document record. The caller is responsible for
// removing the source file; the index vectors deliberately stay.
func (s *Store) DeleteDocument(ctx context.Context, userID, docID int64) error {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND user_id = ?`, docID, userID)
	if err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
