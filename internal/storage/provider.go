// Package storage maps mems to Markdown files under a store root directory.
package storage

import "github.com/starford/mem/internal/models"

const (
	// Extension is the document-file suffix.
	Extension = ".md"
	// ArchiveDir is the reserved subtree holding archived mems.
	ArchiveDir = "archive"
	// DirName is the store directory looked up from the working directory.
	DirName = ".mems"

	tempSuffix = ".tmp"
)

// Provider is the interface for mem file operations. Paths are logical
// (slash-separated, no extension).
type Provider interface {
	// Root returns the absolute store root.
	Root() string
	// Resolve maps a logical path to its file path.
	Resolve(path string) string
	// Exists reports whether a live mem exists at path.
	Exists(path string) bool
	// Write atomically persists m at m.Path, creating parent directories.
	Write(m models.Mem) error
	// Read loads and decodes the mem at path.
	Read(path string) (models.Mem, error)
	// Delete removes the mem at path and prunes empty parent directories.
	Delete(path string) error
	// Archive moves the mem at path into the archive subtree.
	Archive(path string, overwrite bool) error
	// List returns every live mem under prefix ("" for all), sorted by path.
	List(prefix string) ([]models.Mem, error)
	// ListArchived returns every archived mem under prefix, sorted by path.
	ListArchived(prefix string) ([]models.Mem, error)
	// ReadArchived loads an archived mem.
	ReadArchived(path string) (models.Mem, error)
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
