package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/mem/internal/apperr"
)

// Locate walks from workdir up through its ancestors and returns the first
// .mems directory it finds.
func Locate(workdir string) (string, error) {
	dir, err := filepath.Abs(workdir)
	if err != nil {
		return "", fmt.Errorf("storage: resolve workdir: %w", err)
	}
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no %s/ directory found (run `mem init` to create one)", apperr.ErrNotFound, DirName)
		}
		dir = parent
	}
}

// Init creates workdir/.mems and its archive directory.
func Init(workdir string) (string, error) {
	dir, err := filepath.Abs(workdir)
	if err != nil {
		return "", fmt.Errorf("storage: resolve workdir: %w", err)
	}
	root := filepath.Join(dir, DirName)
	if _, err := os.Lstat(root); err == nil {
		return "", apperr.AlreadyExists(DirName + "/")
	}
	if err := os.Mkdir(root, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", apperr.AlreadyExists(DirName + "/")
		}
		return "", fmt.Errorf("storage: create %s: %w", DirName, err)
	}
	if err := os.Mkdir(filepath.Join(root, ArchiveDir), 0o755); err != nil {
		return "", fmt.Errorf("storage: create %s/%s: %w", DirName, ArchiveDir, err)
	}
	return root, nil
}

// ValidatePath checks that p is usable as the logical path of a new mem:
// relative, clean, free of hidden or temp-suffixed segments, and outside the
// reserved archive subtree.
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: path cannot be empty", apperr.ErrInvalidPath)
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		return fmt.Errorf("%w: path must be relative, got %q", apperr.ErrInvalidPath, p)
	}
	if strings.Contains(p, `\`) {
		return fmt.Errorf("%w: use forward slashes: %q", apperr.ErrInvalidPath, p)
	}
	segments := strings.Split(p, "/")
	for _, seg := range segments {
		switch {
		case seg == "..":
			return fmt.Errorf("%w: path cannot reference parent directories: %q", apperr.ErrInvalidPath, p)
		case strings.HasPrefix(seg, "."):
			return fmt.Errorf("%w: hidden path segment %q", apperr.ErrInvalidPath, seg)
		case strings.HasSuffix(seg, tempSuffix):
			return fmt.Errorf("%w: segment %q uses the reserved %s suffix", apperr.ErrInvalidPath, seg, tempSuffix)
		}
	}
	if path.Clean(p) != p {
		return fmt.Errorf("%w: path contains invalid components: %q", apperr.ErrInvalidPath, p)
	}
	if segments[0] == ArchiveDir {
		return fmt.Errorf("%w: %s/ is reserved for archived mems", apperr.ErrInvalidPath, ArchiveDir)
	}
	return nil
}
