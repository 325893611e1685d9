// Package watch reports changes to a store made by any process.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mem/internal/apperr"
	"github.com/starford/mem/internal/models"
	"github.com/starford/mem/internal/storage"
)

// Kind is the type of a change.
type Kind string

const (
	Created  Kind = "created"
	Updated  Kind = "updated"
	Deleted  Kind = "deleted"
	Archived Kind = "archived"
)

// Event describes one change. Mem is nil for deletions.
type Event struct {
	Kind Kind
	Path string
	Mem  *models.Mem
}

// Callback is called for every change, from the watcher goroutine.
type Callback func(Event)

// DefaultDebounce is how long a removal waits for a matching archive or
// re-create before it is reported as a deletion.
const DefaultDebounce = 200 * time.Millisecond

type watcher struct {
	fsw      *fsnotify.Watcher
	store    storage.Provider
	root     string
	logger   *slog.Logger
	cb       Callback
	known    map[string]struct{}
	removed  map[string]struct{}
	debounce time.Duration
}

// Watch follows the store until ctx is cancelled. New directories are
// watched as they appear. Hidden and temp files are ignored, as are files
// that fail to decode.
func Watch(ctx context.Context, store storage.Provider, logger *slog.Logger, debounce time.Duration, cb Callback) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &watcher{
		fsw:      fsw,
		store:    store,
		root:     store.Root(),
		logger:   logger,
		cb:       cb,
		known:    make(map[string]struct{}),
		removed:  make(map[string]struct{}),
		debounce: debounce,
	}

	mems, err := store.List("")
	if err != nil {
		return err
	}
	for _, m := range mems {
		w.known[m.Path] = struct{}{}
	}
	if err := addDirsRecursive(fsw, w.root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", w.root))

	var flushTimer *time.Timer
	var flushCh <-chan time.Time
	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(w.debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(w.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			w.flushRemoved()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				scheduleFlush()
			}

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// handle processes one fsnotify event. It reports whether a removal is
// pending.
func (w *watcher) handle(ev fsnotify.Event) bool {
	abs := ev.Name
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || ignored(rel) {
		return false
	}
	rel = filepath.ToSlash(rel)

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(w.fsw, abs); addErr != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", rel),
					slog.String("error", addErr.Error()))
			} else {
				w.logger.Debug("watcher: watching new dir", slog.String("path", rel))
			}
			w.scanNewDir(abs)
			return false
		}
	}

	p, ok := strings.CutSuffix(rel, storage.Extension)
	if !ok {
		return false
	}
	archived, inArchive := strings.CutPrefix(p, storage.ArchiveDir+"/")

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if inArchive {
			if ev.Op&fsnotify.Create != 0 {
				w.emitArchived(archived)
			}
			return false
		}
		w.emitWritten(p)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if inArchive {
			return false
		}
		// The new name of a rename arrives as a separate Create.
		w.removed[p] = struct{}{}
		return true
	}
	return false
}

func (w *watcher) emitWritten(p string) {
	m, err := w.store.Read(p)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			w.logger.Warn("watcher: read failed", slog.String("path", p), slog.String("error", err.Error()))
		}
		return
	}
	kind := Created
	if _, seen := w.known[p]; seen {
		kind = Updated
	}
	w.known[p] = struct{}{}
	delete(w.removed, p)
	w.logger.Debug("watcher: changed", slog.String("path", p), slog.String("op", string(kind)))
	w.emit(Event{Kind: kind, Path: p, Mem: &m})
}

func (w *watcher) emitArchived(p string) {
	m, err := w.store.ReadArchived(p)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			w.logger.Warn("watcher: read archived failed", slog.String("path", p), slog.String("error", err.Error()))
		}
		return
	}
	delete(w.removed, p)
	delete(w.known, p)
	w.logger.Debug("watcher: archived", slog.String("path", p))
	w.emit(Event{Kind: Archived, Path: p, Mem: &m})
}

// flushRemoved reports pending removals that were neither archived nor
// written back in the meantime.
func (w *watcher) flushRemoved() {
	for p := range w.removed {
		delete(w.removed, p)
		if w.store.Exists(p) {
			continue
		}
		if _, seen := w.known[p]; !seen {
			continue
		}
		delete(w.known, p)
		w.logger.Debug("watcher: deleted", slog.String("path", p))
		w.emit(Event{Kind: Deleted, Path: p})
	}
}

// scanNewDir reports mems already present in a directory that appeared
// before it could be watched.
func (w *watcher) scanNewDir(dir string) {
	_ = filepath.WalkDir(dir, func(abs string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, abs)
		if relErr != nil || ignored(rel) {
			return nil
		}
		p, ok := strings.CutSuffix(filepath.ToSlash(rel), storage.Extension)
		if !ok {
			return nil
		}
		if archived, inArchive := strings.CutPrefix(p, storage.ArchiveDir+"/"); inArchive {
			w.emitArchived(archived)
			return nil
		}
		if _, seen := w.known[p]; !seen {
			w.emitWritten(p)
		}
		return nil
	})
}

func (w *watcher) emit(ev Event) {
	if w.cb != nil {
		w.cb(ev)
	}
}

// ignored reports whether any segment of rel is hidden or a temp file.
func ignored(rel string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") || strings.HasSuffix(seg, ".tmp") {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
