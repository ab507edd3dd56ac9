package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/auth"
	"github.com/starford/mimir/internal/ingest"
	"github.com/starford/mimir/internal/query"
	"github.com/starford/mimir/internal/reports"
	"github.com/starford/mimir/internal/sse"
	"github.com/starford/mimir/internal/store"
)

const maxUploadBytes = 50 << 20

// Handler holds API route handlers.
type Handler struct {
	auth     *auth.Service
	store    *store.Store
	pipeline *ingest.Pipeline
	queries  *query.Pipeline
	reports  *reports.Service
	broker   *sse.Broker
	uploads  string
	logger   *slog.Logger
}

// NewHandler creates a new Handler. Uploaded files are stored under
// uploadsDir.
func NewHandler(authSvc *auth.Service, st *store.Store, pipeline *ingest.Pipeline, queries *query.Pipeline, reportsSvc *reports.Service, broker *sse.Broker, uploadsDir string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:     authSvc,
		store:    st,
		pipeline: pipeline,
		queries:  queries,
		reports:  reportsSvc,
		broker:   broker,
		uploads:  uploadsDir,
		logger:   logger,
	}
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("username and password are required"))
		return
	}

	if _, err := h.auth.Register(r.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("username already exists"))
			return
		}
		h.logger.Error("register failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, messageBody("User created successfully"))
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, errorBody("bad username or password"))
			return
		}
		h.logger.Error("login failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token})
}

// UploadDocument handles POST /api/documents (multipart form).
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("no file part"))
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("no selected file"))
		return
	}

	docType := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if !ingest.SupportedType(docType) {
		writeJSON(w, http.StatusBadRequest, errorBody("file type not allowed"))
		return
	}

	dest := filepath.Join(h.uploads, fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(header.Filename)))
	if err := saveUpload(file, dest); err != nil {
		h.logger.Error("save upload failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	doc, err := h.pipeline.Ingest(r.Context(), userID, dest, docType, r.FormValue("source"), r.FormValue("tags"))
	if err != nil {
		os.Remove(dest)
		h.logger.Error("ingest failed",
			slog.Int64("user_id", userID),
			slog.String("file", header.Filename),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to process document"))
		return
	}

	if h.broker != nil {
		h.broker.Publish(userID, sse.Event{
			Type: sse.EventDocumentIngested,
			Data: map[string]any{"document_id": doc.ID, "file_path": doc.FilePath},
		})
	}
	writeJSON(w, http.StatusCreated, doc)
}

// ListDocuments handles GET /api/documents with optional type and
// ISO-8601 date range filters.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.DocumentFilter{Type: q.Get("type")}

	var err error
	if filter.StartDate, err = parseISODate(q.Get("start_date")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid start_date format, use ISO format"))
		return
	}
	if filter.EndDate, err = parseISODate(q.Get("end_date")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid end_date format, use ISO format"))
		return
	}

	docs, err := h.store.ListDocuments(r.Context(), requestUserID(r), filter)
	if err != nil {
		h.logger.Error("list documents failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// UpdateDocument handles PUT /api/documents/{id}.
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	docID, err := idParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid document id"))
		return
	}

	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	doc, err := h.store.UpdateDocumentMeta(r.Context(), requestUserID(r), docID, req.Source, req.Tags)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("document not found"))
			return
		}
		h.logger.Error("update document failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/documents/{id}. Removes the metadata
// row and the file; the chunks already in the vector index stay until the
// next index rebuild.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID, err := idParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid document id"))
		return
	}

	if err := h.deleteDocument(r, requestUserID(r), docID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("document not found"))
			return
		}
		h.logger.Error("delete document failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, messageBody("Document deleted"))
}

// BatchDeleteDocuments handles POST /api/documents/batch_delete.
func (h *Handler) BatchDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	var req BatchDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("'ids' must be a list of document IDs"))
		return
	}

	userID := requestUserID(r)
	deleted := 0
	for _, docID := range req.IDs {
		err := h.deleteDocument(r, userID, docID)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, apperr.ErrNotFound):
			// Not owned or already gone; skip.
		default:
			h.logger.Error("batch delete failed",
				slog.Int64("document_id", docID),
				slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
	}
	if deleted == 0 {
		writeJSON(w, http.StatusNotFound, errorBody("no matching documents found to delete"))
		return
	}
	writeJSON(w, http.StatusOK, messageBody(fmt.Sprintf("Successfully deleted %d documents.", deleted)))
}

func (h *Handler) deleteDocument(r *http.Request, userID, docID int64) error {
	doc, err := h.store.GetDocument(r.Context(), userID, docID)
	if err != nil {
		return err
	}
	if err := h.store.DeleteDocument(r.Context(), userID, docID); err != nil {
		return err
	}
	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		h.logger.Warn("delete document file failed",
			slog.String("path", doc.FilePath),
			slog.String("error", err.Error()))
	}
	return nil
}

// Search handles POST /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query is required"))
		return
	}

	result := h.queries.Answer(r.Context(), requestUserID(r), req.Query)
	writeJSON(w, http.StatusOK, result)
}

// KeywordReport handles GET /api/report/keywords.
func (h *Handler) KeywordReport(w http.ResponseWriter, r *http.Request) {
	keywords, err := h.reports.Keywords(r.Context(), requestUserID(r))
	if err != nil {
		h.writeReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, KeywordReportResponse{TopKeywords: keywords})
}

// ClusteringReport handles GET /api/report/clustering.
func (h *Handler) ClusteringReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Clusters(r.Context(), requestUserID(r))
	if err != nil {
		h.writeReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeReportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reports.ErrNoDocuments),
		errors.Is(err, reports.ErrNoReadableDocuments),
		errors.Is(err, reports.ErrNotEnoughDocuments):
		writeJSON(w, http.StatusNotFound, errorBody(strings.TrimPrefix(err.Error(), "reports: ")))
	default:
		h.logger.Error("report failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// AddFeed handles POST /api/feeds.
func (h *Handler) AddFeed(w http.ResponseWriter, r *http.Request) {
	var req FeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("URL is required"))
		return
	}

	feed, err := h.store.AddFeed(r.Context(), requestUserID(r), req.URL)
	if err != nil {
		h.logger.Error("add feed failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to add feed"))
		return
	}
	writeJSON(w, http.StatusCreated, FeedResponse{ID: feed.ID, URL: feed.URL})
}

// ListFeeds handles GET /api/feeds.
func (h *Handler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.store.ListFeeds(r.Context(), requestUserID(r))
	if err != nil {
		h.logger.Error("list feeds failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	out := make([]FeedResponse, len(feeds))
	for i, f := range feeds {
		out[i] = FeedResponse{ID: f.ID, URL: f.URL}
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteFeed handles DELETE /api/feeds/{id}.
func (h *Handler) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	feedID, err := idParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid feed id"))
		return
	}

	if err := h.store.DeleteFeed(r.Context(), requestUserID(r), feedID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("feed not found or permission denied"))
			return
		}
		h.logger.Error("delete feed failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, messageBody("Feed deleted"))
}

// Events handles GET /api/events: the per-user SSE stream.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	h.broker.ServeUser(w, r, requestUserID(r))
}

// parseISODate accepts an ISO-8601 date or datetime; empty input means no
// constraint.
func parseISODate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("api: invalid date %q", s)
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(filepath.Base(name), "_")
}

func saveUpload(src io.Reader, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
