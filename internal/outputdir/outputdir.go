// Package outputdir provides a capability-style handle scoped to a single
// download run's output directory, so later pipeline stages only ever
// address files relative to the handle. The escape check on relative
// paths is lexical; symlinks inside the directory are followed, not
// checked.
package outputdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/rescale-labs/carfw/internal/constants"
)

// Handle is the pre-opened output directory capability. All relative
// paths passed to its methods are resolved against the directory root and
// rejected if they would escape it.
type Handle struct {
	root *flock.Flock
	path string
}

// Open resolves dir to an absolute path, creates it if missing, and takes
// the run's advisory lock so two concurrent invocations against the same
// directory don't race on the same lifecycle tokens. The caller must
// Close the handle when the run finishes.
func Open(dir string) (*Handle, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", abs, err)
	}

	lock := flock.New(filepath.Join(abs, constants.LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock output directory %s: %w", abs, err)
	}
	if !locked {
		return nil, fmt.Errorf("output directory %s is already in use by another run", abs)
	}

	return &Handle{root: lock, path: abs}, nil
}

// Path returns the absolute path of the output directory, for display and
// for callers that need a real filesystem path (JoinedView pieces and the
// disk-space probe).
func (h *Handle) Path() string { return h.path }

// Close releases the advisory lock. It does not touch any files.
func (h *Handle) Close() error {
	return h.root.Unlock()
}

// resolve rejects any relative path that is absolute or, once cleaned,
// climbs out of the handle's root through ".." components, as
// manifest-derived names could. The check is lexical only: a symlink
// inside the directory that points elsewhere is followed, not rejected.
func (h *Handle) resolve(rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes output directory", rel)
	}
	return filepath.Join(h.path, clean), nil
}

// Stat resolves rel and stats it.
func (h *Handle) Stat(rel string) (os.FileInfo, error) {
	abs, err := h.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Stat(abs)
}

// Exists reports whether rel exists on disk under the handle.
func (h *Handle) Exists(rel string) bool {
	_, err := h.Stat(rel)
	return err == nil
}

// Open opens rel for reading.
func (h *Handle) Open(rel string) (*os.File, error) {
	abs, err := h.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(abs)
}

// OpenFile opens rel with the given flags and permissions, creating parent
// directories as needed.
func (h *Handle) OpenFile(rel string, flag int, perm os.FileMode) (*os.File, error) {
	abs, err := h.resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create parent directory for %s: %w", rel, err)
	}
	return os.OpenFile(abs, flag, perm)
}

// Create truncates-or-creates rel for writing.
func (h *Handle) Create(rel string) (*os.File, error) {
	return h.OpenFile(rel, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

// MkdirAll ensures rel (and any parents) exist as directories.
func (h *Handle) MkdirAll(rel string) error {
	abs, err := h.resolve(rel)
	if err != nil {
		return err
	}
	return os.MkdirAll(abs, 0o755)
}

// Remove deletes rel. Missing files are not an error.
func (h *Handle) Remove(rel string) error {
	abs, err := h.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Rename moves oldRel to newRel, both resolved against the handle.
func (h *Handle) Rename(oldRel, newRel string) error {
	oldAbs, err := h.resolve(oldRel)
	if err != nil {
		return err
	}
	newAbs, err := h.resolve(newRel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return fmt.Errorf("create parent directory for %s: %w", newRel, err)
	}
	return os.Rename(oldAbs, newAbs)
}

// AbsPath exposes the resolved absolute path for rel, for callers (like the
// ZIP extractor and JoinedView) that must hand a path to a third-party API
// expecting a real filesystem path rather than *os.File.
func (h *Handle) AbsPath(rel string) (string, error) {
	return h.resolve(rel)
}
