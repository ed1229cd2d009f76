package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChIIChI1230/screenshot/ccc/logging"
	"github.com/ChIIChI1230/screenshot/client/capture"
)

// PendingItem is one buffered image awaiting a retry upload.
type PendingItem struct {
	Path       string
	CreatedAt  time.Time
	RetryCount int
}

// LocalStore manages a bounded directory of images buffered after failed
// uploads. All state lives on the filesystem; ListPending reflects the
// directory at call time.
type LocalStore struct {
	dir       string
	maxFiles  int           // 0 = unbounded
	retention time.Duration // 0 = unbounded
	logger    logging.Logger
	mu        sync.Mutex
}

// NewLocalStore creates a LocalStore rooted at dir, creating the directory if
// needed. maxFiles and retention of 0 disable the respective limit.
func NewLocalStore(dir string, maxFiles int, retention time.Duration, logger logging.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = logging.NopLogger
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StoreError{Op: OpWrite, Path: dir, InnerError: err}
	}

	return &LocalStore{
		dir:       dir,
		maxFiles:  maxFiles,
		retention: retention,
		logger:    logger,
	}, nil
}

// Dir returns the directory the store manages.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save buffers an image for a later retry. Existing files are never
// overwritten; on a name collision a random suffix is appended. Eviction runs
// after every save so the configured limits hold.
func (s *LocalStore) Save(img *capture.Image, source string) (*PendingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, img.FileName(source))
	written, err := writeExclusive(path, img.Data)
	if err != nil {
		return nil, &StoreError{Op: OpWrite, Path: path, InnerError: err}
	}

	s.logger.Info("buffered image locally", "path", written)
	item := &PendingItem{Path: written, CreatedAt: time.Now().UTC()}

	s.evictLocked()
	return item, nil
}

// writeExclusive creates the file at path without overwriting. If the name is
// taken it retries once with a random suffix before the extension.
func writeExclusive(path string, data []byte) (string, error) {
	err := writeNew(path, data)
	if err == nil {
		return path, nil
	}
	if !os.IsExist(err) {
		return "", err
	}

	ext := filepath.Ext(path)
	alt := strings.TrimSuffix(path, ext) + "_" + uuid.NewString()[:8] + ext
	if err := writeNew(alt, data); err != nil {
		return "", err
	}
	return alt, nil
}

func writeNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ListPending enumerates buffered items oldest-first. The list is recomputed
// from the directory on every call.
func (s *LocalStore) ListPending() ([]PendingItem, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &StoreError{Op: OpList, Path: s.dir, InnerError: err}
	}

	items := make([]PendingItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// entry disappeared between ReadDir and Stat
			continue
		}
		items = append(items, PendingItem{
			Path:      filepath.Join(s.dir, entry.Name()),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].Path < items[j].Path
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	return items, nil
}

// Count returns the number of buffered items.
func (s *LocalStore) Count() int {
	items, err := s.ListPending()
	if err != nil {
		s.logger.Warn("failed to count pending items", "error", err)
		return 0
	}
	return len(items)
}

// Evict applies the count and age limits, deleting the oldest items first.
// Deletion failures are logged and skipped.
func (s *LocalStore) Evict() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
}

func (s *LocalStore) evictLocked() {
	items, err := s.ListPending()
	if err != nil {
		s.logger.Warn("eviction skipped", "error", err)
		return
	}

	remaining := items

	if s.retention > 0 {
		cutoff := time.Now().Add(-s.retention)
		kept := remaining[:0]
		for _, item := range remaining {
			if item.CreatedAt.Before(cutoff) {
				s.deleteForEviction(item, "age")
			} else {
				kept = append(kept, item)
			}
		}
		remaining = kept
	}

	if s.maxFiles > 0 && len(remaining) > s.maxFiles {
		for _, item := range remaining[:len(remaining)-s.maxFiles] {
			s.deleteForEviction(item, "count")
		}
	}
}

func (s *LocalStore) deleteForEviction(item PendingItem, limit string) {
	if err := os.Remove(item.Path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to evict item", "path", item.Path, "error", err)
		return
	}
	s.logger.Info("evicted buffered image", "path", item.Path, "limit", limit)
}

// Remove deletes a specific item after a successful retry. Removing an item
// that is already gone is not an error.
func (s *LocalStore) Remove(item PendingItem) {
	if err := os.Remove(item.Path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove pending item", "path", item.Path, "error", err)
		return
	}
	s.logger.Debug("removed pending item", "path", item.Path)
}
