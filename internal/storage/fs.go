package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/starford/mem/internal/apperr"
	"github.com/starford/mem/internal/models"
	"github.com/starford/mem/internal/parser"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root   string // absolute path to the store directory
	logger *slog.Logger
}

// Option configures an FS.
type Option func(*FS)

// WithLogger sets the logger used for non-fatal listing warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FS) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...Option) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NotFound(root)
		}
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	f := &FS{root: abs, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute store root.
func (f *FS) Root() string {
	return f.root
}

// Resolve maps a logical path to root/<path>.md.
func (f *FS) Resolve(path string) string {
	return filepath.Join(f.root, filepath.FromSlash(path)+Extension)
}

// safePath resolves a logical path against base and rejects any result that
// escapes it.
func (f *FS) safePath(base, rel, ext string) (string, error) {
	if rel == "" {
		return base, nil
	}
	if strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute paths not allowed: %q", apperr.ErrInvalidPath, rel)
	}
	abs := filepath.Join(base, filepath.FromSlash(rel)+ext)
	if abs != base && !strings.HasPrefix(abs, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: path escapes store root: %q", apperr.ErrInvalidPath, rel)
	}
	return abs, nil
}

func (f *FS) archiveDir() string {
	return filepath.Join(f.root, ArchiveDir)
}

func (f *FS) resolveLive(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path cannot be empty", apperr.ErrInvalidPath)
	}
	return f.safePath(f.root, path, Extension)
}

func (f *FS) resolveArchived(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path cannot be empty", apperr.ErrInvalidPath)
	}
	return f.safePath(f.archiveDir(), path, Extension)
}

// Exists reports whether a live mem file exists at path.
func (f *FS) Exists(path string) bool {
	abs, err := f.resolveLive(path)
	return err == nil && isFile(abs)
}

// Write encodes m and atomically replaces the file at m.Path.
func (f *FS) Write(m models.Mem) error {
	abs, err := f.resolveLive(m.Path)
	if err != nil {
		return err
	}
	if err := parser.CheckTimes(m); err != nil {
		return fmt.Errorf("storage: write %s: %w", m.Path, err)
	}
	return writeAtomic(abs, parser.Encode(m))
}

// Read loads the live mem at path.
func (f *FS) Read(path string) (models.Mem, error) {
	abs, err := f.resolveLive(path)
	if err != nil {
		return models.Mem{}, err
	}
	return readMem(abs, path)
}

// ReadArchived loads the archived mem at path.
func (f *FS) ReadArchived(path string) (models.Mem, error) {
	abs, err := f.resolveArchived(path)
	if err != nil {
		return models.Mem{}, err
	}
	return readMem(abs, path)
}

// Delete removes the mem at path, then removes every ancestor directory left
// empty, stopping below the root.
func (f *FS) Delete(path string) error {
	abs, err := f.resolveLive(path)
	if err != nil {
		return err
	}
	if !isFile(abs) {
		return apperr.NotFound(path)
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.NotFound(path)
		}
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	f.prune(filepath.Dir(abs))
	return nil
}

// Archive renames the mem at path to archive/<path>.md and prunes the
// directories it leaves empty. An occupied archive slot is replaced only
// when overwrite is set.
func (f *FS) Archive(path string, overwrite bool) error {
	src, err := f.resolveLive(path)
	if err != nil {
		return err
	}
	if !isFile(src) {
		return apperr.NotFound(path)
	}
	dst, err := f.resolveArchived(path)
	if err != nil {
		return err
	}
	if !overwrite && isFile(dst) {
		return apperr.AlreadyExists(ArchiveDir + "/" + path)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for archive: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("storage: archive %s: %w", path, err)
	}
	f.prune(filepath.Dir(src))
	return nil
}

// List walks the live tree (or the subtree at prefix) and decodes every mem.
// Undecodable files are logged and skipped. A prefix inside the archive
// subtree lists nothing.
func (f *FS) List(prefix string) ([]models.Mem, error) {
	return f.list(f.root, prefix, true)
}

// ListArchived walks the archive subtree (or the part of it at prefix).
func (f *FS) ListArchived(prefix string) ([]models.Mem, error) {
	return f.list(f.archiveDir(), prefix, false)
}

func (f *FS) list(base, prefix string, live bool) ([]models.Mem, error) {
	dir, err := f.safePath(base, strings.Trim(prefix, "/"), "")
	if err != nil {
		return nil, err
	}
	prefix = ""
	if dir != base {
		rel, err := filepath.Rel(base, dir)
		if err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", dir, err)
		}
		prefix = filepath.ToSlash(rel)
	}
	if live && (prefix == ArchiveDir || strings.HasPrefix(prefix, ArchiveDir+"/")) {
		return nil, nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list %s: %w", prefix, err)
	}
	if !info.IsDir() {
		return nil, nil
	}

	var out []models.Mem
	if err := f.walk(dir, prefix, live && prefix == "", &out); err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b models.Mem) int {
		return strings.Compare(a.Path, b.Path)
	})
	return out, nil
}

func (f *FS) walk(dir, prefix string, skipArchive bool, out *[]models.Mem) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("storage: list %s: %w", dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if skipArchive && name == ArchiveDir && e.IsDir() {
			continue
		}
		// Hidden entries and temp files of in-flight writes.
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, tempSuffix) {
			continue
		}

		abs := filepath.Join(dir, name)
		if e.IsDir() {
			if err := f.walk(abs, joinPath(prefix, name), false, out); err != nil {
				return err
			}
			continue
		}

		stem, ok := strings.CutSuffix(name, Extension)
		if !ok {
			continue
		}
		path := joinPath(prefix, stem)
		m, err := readMem(abs, path)
		switch {
		case err == nil:
			*out = append(*out, m)
		case errors.Is(err, apperr.ErrCorrupt), errors.Is(err, apperr.ErrNotFound):
			f.logger.Warn("skipping invalid mem", slog.String("path", path), slog.String("error", err.Error()))
		default:
			return err
		}
	}
	return nil
}

// prune removes dir and its ancestors while they are empty. It never removes
// the root or the archive directory.
func (f *FS) prune(dir string) {
	archive := f.archiveDir()
	for dir != f.root && dir != archive && strings.HasPrefix(dir, f.root+string(os.PathSeparator)) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// writeAtomic writes content: tmp file → fsync → rename.
func writeAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(abs)+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

func readMem(abs, path string) (models.Mem, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Mem{}, apperr.NotFound(path)
		}
		return models.Mem{}, fmt.Errorf("storage: read %s: %w", path, err)
	}
	m, err := parser.Decode(data)
	if err != nil {
		return models.Mem{}, &apperr.CorruptError{Path: path, Err: err}
	}
	m.Path = path
	return m, nil
}

func isFile(abs string) bool {
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
