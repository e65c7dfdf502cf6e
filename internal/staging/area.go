package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"secure-scrub/internal/domain"
	"secure-scrub/internal/pathsafe"
)

// ErrReleased is returned when a cleaned-up area is used again.
var ErrReleased = errors.New("staging area already released")

// Area is the process-wide scratch directory for one batch run.
// Only its creator may release it.
type Area struct {
	mu       sync.Mutex
	dir      string
	released bool

	mkdir     func(path string, perm os.FileMode) error
	removeAll func(path string) error
}

// Acquire creates a private, owner-only staging directory under root
// (the OS temp directory when root is empty).
func Acquire(root string) (*Area, error) {
	return acquire(root, os.MkdirTemp, os.Mkdir, os.RemoveAll)
}

// AcquireForTests creates an area with injectable filesystem dependencies.
func AcquireForTests(
	root string,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
) (*Area, error) {
	return acquire(root, mkdirTemp, os.Mkdir, removeAll)
}

func acquire(
	root string,
	mkdirTemp func(dir, pattern string) (string, error),
	mkdir func(path string, perm os.FileMode) error,
	removeAll func(path string) error,
) (*Area, error) {
	dir, err := mkdirTemp(root, "secure-scrub-*")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	// owner-only regardless of umask
	if err := os.Chmod(dir, 0o700); err != nil {
		_ = removeAll(dir)
		return nil, fmt.Errorf("restrict staging directory: %w", err)
	}

	return &Area{
		dir:       dir,
		mkdir:     mkdir,
		removeAll: removeAll,
	}, nil
}

// Dir returns the staging directory path.
func (a *Area) Dir() string {
	return a.dir
}

// Partition creates a private sub-directory for one file's artifacts.
func (a *Area) Partition() (*Partition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return nil, ErrReleased
	}

	dir := filepath.Join(a.dir, uuid.NewString())
	if err := a.mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging partition: %w", err)
	}
	return &Partition{dir: dir, removeAll: a.removeAll}, nil
}

// Cleanup recursively removes the staging directory. Safe to call repeatedly.
func (a *Area) Cleanup() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return nil
	}
	if err := a.removeAll(a.dir); err != nil {
		return err
	}
	a.released = true
	return nil
}

// Partition holds staged artifacts of a single file.
type Partition struct {
	dir       string
	removeAll func(path string) error
}

// Dir returns the partition directory.
func (p *Partition) Dir() string {
	return p.dir
}

// Path returns the staged path for base at stage. The base name is sanitized
// so crafted source names cannot escape the partition. '%' is replaced since
// Ghostscript reads it as a page template in its output file name.
func (p *Partition) Path(base string, stage domain.Stage) string {
	clean := strings.ReplaceAll(pathsafe.SanitizeBaseName(base), "%", "_")
	ext := filepath.Ext(clean)
	stem := strings.TrimSuffix(clean, ext)
	if stem == "" {
		stem = "file"
	}
	return filepath.Join(p.dir, stem+"."+string(stage)+ext)
}

// Discard removes the partition and everything staged in it.
func (p *Partition) Discard() error {
	return p.removeAll(p.dir)
}
