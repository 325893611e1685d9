// Package testutil provides shared test helpers for setting up stores.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/mem/internal/models"
	"github.com/starford/mem/internal/storage"
)

// Logger returns a logger that discards everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestStore creates a temporary .mems directory (with its archive
// subdirectory) and an FS provider rooted at it.
func TestStore(t *testing.T) *storage.FS {
	t.Helper()
	root, err := storage.Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewFS(root, storage.WithLogger(Logger()))
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// WriteMem writes a mem with fixed timestamps and returns it.
func WriteMem(t *testing.T, store storage.Provider, path, title, content string, tags ...string) models.Mem {
	t.Helper()
	ts := time.Date(2025, 1, 19, 12, 0, 0, 0, time.UTC)
	m := models.Mem{
		Path:      path,
		Title:     title,
		CreatedAt: ts,
		UpdatedAt: ts,
		Tags:      tags,
		Content:   content,
	}
	if err := store.Write(m); err != nil {
		t.Fatalf("Write %s: %v", path, err)
	}
	return m
}

// WriteRaw writes raw bytes at a path relative to the store root, bypassing
// the encoder.
func WriteRaw(t *testing.T, store storage.Provider, rel, content string) {
	t.Helper()
	abs := filepath.Join(store.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
