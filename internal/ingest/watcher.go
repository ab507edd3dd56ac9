package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventCallback is invoked after a watcher-driven ingestion succeeds.
type EventCallback func(userID int64, filePath string)

// Watch monitors the inbox directory tree and ingests files dropped into
// per-user subdirectories: a file at inbox/<user_id>/name.txt is ingested
// for that user and then moved into uploadsDir so it is processed exactly
// once. Runs until ctx is cancelled.
//
// User subdirectories created at runtime are added to the watch list. Files
// with an unsupported extension are left in place with a warning.
func (p *Pipeline) Watch(ctx context.Context, inboxRoot, uploadsDir string, logger *slog.Logger, cb EventCallback) error {
	if err := os.MkdirAll(inboxRoot, 0o755); err != nil {
		return fmt.Errorf("ingest: create inbox: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(inboxRoot); err != nil {
		return err
	}
	entries, err := os.ReadDir(inboxRoot)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.Add(filepath.Join(inboxRoot, e.Name())); err != nil {
				logger.Warn("watcher: add user dir failed", slog.String("error", err.Error()))
			}
		}
	}

	logger.Info("inbox watcher started", slog.String("root", inboxRoot))

	for {
		select {
		case <-ctx.Done():
			logger.Info("inbox watcher stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}

			if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
				if addErr := w.Add(ev.Name); addErr != nil {
					logger.Warn("watcher: add dir failed",
						slog.String("path", ev.Name),
						slog.String("error", addErr.Error()))
				}
				continue
			}

			userID, ok := inboxOwner(inboxRoot, ev.Name)
			if !ok {
				continue
			}

			// Give the writer a moment to finish before reading the file.
			select {
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
				return nil
			}

			p.ingestInboxFile(ctx, userID, ev.Name, uploadsDir, logger, cb)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (p *Pipeline) ingestInboxFile(ctx context.Context, userID int64, path, uploadsDir string, logger *slog.Logger, cb EventCallback) {
	docType := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if !SupportedType(docType) {
		logger.Warn("inbox: unsupported file type",
			slog.String("path", path),
			slog.String("type", docType))
		return
	}

	dest := filepath.Join(uploadsDir, fmt.Sprintf("%d_%s", userID, filepath.Base(path)))
	if err := os.Rename(path, dest); err != nil {
		logger.Warn("inbox: move to uploads failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	if _, err := p.Ingest(ctx, userID, dest, docType, "", ""); err != nil {
		logger.Warn("inbox: ingest failed",
			slog.Int64("user_id", userID),
			slog.String("path", dest),
			slog.String("error", err.Error()))
		return
	}
	if cb != nil {
		cb(userID, dest)
	}
}

// inboxOwner extracts the user id from a path of the form
// <root>/<user_id>/<file>. Deeper nesting and non-numeric directories are
// ignored.
func inboxOwner(root, path string) (int64, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
