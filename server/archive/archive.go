package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ChIIChI1230/screenshot/ccc/logging"
)

// maxSequenceAttempts bounds the sequential disambiguation loop before the
// writer falls back to a random suffix.
const maxSequenceAttempts = 100

// StoredFile is the result of archiving one upload.
type StoredFile struct {
	AbsPath  string
	RelPath  string // relative to the storage root, slash-separated
	FileName string
}

// Archive writes uploads into a date-partitioned directory tree under a
// single storage root. It is safe for concurrent use: files are created with
// O_EXCL and renamed suffixes resolve collisions, so two writers can never
// clobber each other.
type Archive struct {
	root   string
	logger logging.Logger
}

// NewArchive creates an Archive rooted at root, creating the directory if
// needed.
func NewArchive(root string, logger logging.Logger) (*Archive, error) {
	if logger == nil {
		logger = logging.NopLogger
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Archive{root: root, logger: logger}, nil
}

// Root returns the storage root directory.
func (a *Archive) Root() string {
	return a.root
}

// Store writes data under <root>/YYYY/MM/DD/ using the server-local date.
// The file name is built from the capture timestamp and the sanitized source;
// on a collision a sequence suffix and finally a random suffix keep the name
// unique. The stored bytes are exactly the bytes given.
func (a *Archive) Store(data []byte, timestamp time.Time, source, ext string) (*StoredFile, error) {
	now := time.Now()
	datePart := filepath.Join(now.Format("2006"), now.Format("01"), now.Format("02"))
	dateDir := filepath.Join(a.root, datePart)

	// idempotent create, safe under concurrent requests
	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create date directory: %w", err)
	}

	if timestamp.IsZero() {
		timestamp = now.UTC()
	}
	if ext == "" {
		ext = ".jpg"
	}

	base := timestamp.UTC().Format("20060102T150405.000000000") + "Z_" + SanitizeSource(source)

	name, err := a.createUnique(dateDir, base, ext, data)
	if err != nil {
		return nil, err
	}

	return &StoredFile{
		AbsPath:  filepath.Join(dateDir, name),
		RelPath:  filepath.ToSlash(filepath.Join(datePart, name)),
		FileName: name,
	}, nil
}

// createUnique writes data to a new file derived from base+ext, extending the
// name until the create succeeds. Returns the final file name.
func (a *Archive) createUnique(dir, base, ext string, data []byte) (string, error) {
	for attempt := 0; ; attempt++ {
		var name string
		switch {
		case attempt == 0:
			name = base + ext
		case attempt <= maxSequenceAttempts:
			name = fmt.Sprintf("%s_%d%s", base, attempt, ext)
		default:
			// many concurrent writers on the same timestamp+source;
			// a random suffix cannot collide in practice
			name = base + "_" + uuid.NewString()[:8] + ext
		}

		err := writeNew(filepath.Join(dir, name), data)
		if err == nil {
			return name, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to write upload: %w", err)
		}
		if attempt > maxSequenceAttempts {
			return "", fmt.Errorf("failed to find a unique file name for %s%s: %w", base, ext, err)
		}
	}
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

// SanitizeSource strips everything but letters, digits, '-' and '_' from a
// client-supplied source identifier. An empty result becomes "unknown".
func SanitizeSource(source string) string {
	var b strings.Builder
	for _, r := range source {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
