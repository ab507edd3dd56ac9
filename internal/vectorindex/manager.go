package vectorindex

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/starford/mimir/internal/apperr"
)

const snapshotFile = "index.gob"

// snapshot is the on-disk form of an Index.
type snapshot struct {
	UserID  int64
	Dim     int
	Vectors [][]float32
	Chunks  []Chunk
}

// Manager owns the index directory tree: one directory per user, named
// deterministically by user id. It serializes load-modify-persist cycles
// per user with an in-process mutex plus an advisory file lock, and
// persists snapshots atomically (temp file, fsync, rename) so a concurrent
// reader sees either the pre- or post-write state, never a partial one.
//
// Indices are fully partitioned by user id, so locking never crosses users.
type Manager struct {
	root string

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewManager creates a manager rooted at dir, creating it if needed.
func NewManager(dir string) (*Manager, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("vectorindex: create root: %w", err)
	}
	return &Manager{root: abs, locks: make(map[int64]*sync.Mutex)}, nil
}

// UserDir returns the index directory for a user.
func (m *Manager) UserDir(userID int64) string {
	return filepath.Join(m.root, fmt.Sprintf("user_%d", userID))
}

// Exists reports whether a persisted index exists for the user.
func (m *Manager) Exists(userID int64) bool {
	_, err := os.Stat(filepath.Join(m.UserDir(userID), snapshotFile))
	return err == nil
}

// Lock acquires the user's exclusive section and returns its release
// function. The in-process mutex guards goroutines within this server; the
// flock guards against a second process (e.g. a CLI rebuild) touching the
// same index directory.
func (m *Manager) Lock(ctx context.Context, userID int64) (func(), error) {
	m.mu.Lock()
	lk, ok := m.locks[userID]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[userID] = lk
	}
	m.mu.Unlock()

	lk.Lock()

	if err := os.MkdirAll(m.UserDir(userID), 0o755); err != nil {
		lk.Unlock()
		return nil, fmt.Errorf("vectorindex: create user dir: %w", err)
	}
	fl := flock.New(filepath.Join(m.UserDir(userID), ".lock"))
	if _, err := fl.TryLockContext(ctx, 50*time.Millisecond); err != nil {
		lk.Unlock()
		return nil, fmt.Errorf("vectorindex: acquire file lock: %w", err)
	}

	return func() {
		_ = fl.Unlock()
		lk.Unlock()
	}, nil
}

// Load reads the user's persisted index into memory. It returns
// apperr.ErrNotFound when no index has been created yet and
// apperr.ErrIndexCorrupt when the snapshot exists but cannot be decoded;
// callers must treat the two differently.
func (m *Manager) Load(userID int64) (*Index, error) {
	f, err := os.Open(filepath.Join(m.UserDir(userID), snapshotFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("vectorindex: open snapshot: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("vectorindex: decode snapshot for user %d: %v: %w",
			userID, err, apperr.ErrIndexCorrupt)
	}
	if snap.Dim > 0 {
		for _, v := range snap.Vectors {
			if len(v) != snap.Dim {
				return nil, fmt.Errorf("vectorindex: snapshot for user %d has mixed dimensions: %w",
					userID, apperr.ErrIndexCorrupt)
			}
		}
	}
	return &Index{
		userID:  userID,
		dim:     snap.Dim,
		vectors: snap.Vectors,
		chunks:  snap.Chunks,
	}, nil
}

// Persist writes the index snapshot atomically: temp file in the user
// directory, fsync, then rename over the previous snapshot.
func (m *Manager) Persist(ix *Index) error {
	dir := m.UserDir(ix.userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vectorindex: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".mimir-index-*")
	if err != nil {
		return fmt.Errorf("vectorindex: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	snap := snapshot{UserID: ix.userID, Dim: ix.dim, Vectors: ix.vectors, Chunks: ix.chunks}
	if err := gob.NewEncoder(tmp).Encode(&snap); err != nil {
		return fmt.Errorf("vectorindex: encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("vectorindex: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vectorindex: close temp: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, snapshotFile)); err != nil {
		return fmt.Errorf("vectorindex: rename: %w", err)
	}
	success = true
	return nil
}

// Remove deletes the user's index directory. Used by the rebuild path to
// swap in a freshly built index.
func (m *Manager) Remove(userID int64) error {
	if err := os.RemoveAll(m.UserDir(userID)); err != nil {
		return fmt.Errorf("vectorindex: remove: %w", err)
	}
	return nil
}
