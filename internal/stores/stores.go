// Package stores fans read operations out over one or more stores and
// merges the results with a provenance label.
package stores

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/starford/mem/internal/apperr"
	"github.com/starford/mem/internal/lint"
	"github.com/starford/mem/internal/models"
	"github.com/starford/mem/internal/storage"
	"github.com/starford/mem/internal/tree"
)

// Labeled is a store with its provenance label. The implicit store carries
// the empty label.
type Labeled struct {
	Label string
	Store storage.Provider
}

// Entry is a mem tagged with the label of the store it came from.
type Entry struct {
	Label string
	Mem   models.Mem
}

// Tree is the hierarchy of one store.
type Tree struct {
	Label string
	Root  *tree.Node
}

// Set is an ordered collection of stores.
type Set struct {
	stores []Labeled
}

// New returns a set over the given stores, in order.
func New(stores ...Labeled) *Set {
	return &Set{stores: stores}
}

// Open builds the set for a command invocation. Each explicit dir must be an
// existing store directory and is labeled as given. Without dirs the store is
// located from workdir and carries no label.
func Open(dirs []string, workdir string, opts ...storage.Option) (*Set, error) {
	if len(dirs) == 0 {
		root, err := storage.Locate(workdir)
		if err != nil {
			return nil, err
		}
		fs, err := storage.NewFS(root, opts...)
		if err != nil {
			return nil, err
		}
		return New(Labeled{Store: fs}), nil
	}

	set := &Set{}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: directory %s", apperr.ErrNotFound, dir)
			}
			return nil, fmt.Errorf("stores: stat %s: %w", dir, err)
		}
		fs, err := storage.NewFS(dir, opts...)
		if err != nil {
			return nil, err
		}
		set.stores = append(set.stores, Labeled{Label: dir, Store: fs})
	}
	return set, nil
}

// Stores returns the stores of the set in order.
func (s *Set) Stores() []Labeled {
	return s.stores
}

// Multi reports whether results need labels to be told apart.
func (s *Set) Multi() bool {
	return len(s.stores) > 1
}

// Filter narrows listing results. The zero value matches everything.
type Filter struct {
	Match glob.Glob
	Tag   string
}

// NewFilter compiles pattern with "/" as the separator, so "*" stays within
// one path segment and "**" crosses them.
func NewFilter(pattern, tag string) (Filter, error) {
	f := Filter{Tag: tag}
	if pattern != "" {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return Filter{}, fmt.Errorf("stores: invalid pattern %q: %w", pattern, err)
		}
		f.Match = g
	}
	return f, nil
}

// Allows reports whether m passes the filter.
func (f Filter) Allows(m models.Mem) bool {
	if f.Match != nil && !f.Match.Match(m.Path) {
		return false
	}
	if f.Tag != "" && !m.HasTag(f.Tag) {
		return false
	}
	return true
}

// List returns the live mems under prefix in every store that pass f.
func (s *Set) List(prefix string, f Filter) ([]Entry, error) {
	return s.collect(func(p storage.Provider) ([]models.Mem, error) {
		return p.List(prefix)
	}, f.Allows)
}

// ListArchived returns the archived mems under prefix that pass f.
func (s *Set) ListArchived(prefix string, f Filter) ([]Entry, error) {
	return s.collect(func(p storage.Provider) ([]models.Mem, error) {
		return p.ListArchived(prefix)
	}, f.Allows)
}

// Search returns the mems whose title or body contains query, ignoring case.
func (s *Set) Search(query string) ([]Entry, error) {
	q := strings.ToLower(query)
	return s.collect(listAll, func(m models.Mem) bool {
		return strings.Contains(strings.ToLower(m.Title), q) ||
			strings.Contains(strings.ToLower(m.Content), q)
	})
}

// Stale returns the mems last updated more than threshold before now.
func (s *Set) Stale(now time.Time, threshold time.Duration) ([]Entry, error) {
	return s.collect(listAll, func(m models.Mem) bool {
		return now.Sub(m.UpdatedAt) > threshold
	})
}

// Lint checks every live mem of every store. Links resolve within the store
// holding the mem.
func (s *Set) Lint() (lint.Report, error) {
	r := lint.Report{Findings: []lint.Finding{}}
	for _, ls := range s.stores {
		mems, err := ls.Store.List("")
		if err != nil {
			return lint.Report{}, err
		}
		r.Checked += len(mems)
		for _, f := range lint.Check(ls.Store, mems) {
			if s.Multi() {
				f.Label = ls.Label
			}
			r.Findings = append(r.Findings, f)
		}
	}
	return r, nil
}

// Trees returns the hierarchy under prefix for each store holding at least
// one mem there.
func (s *Set) Trees(prefix string) ([]Tree, error) {
	var out []Tree
	for _, ls := range s.stores {
		mems, err := ls.Store.List(prefix)
		if err != nil {
			return nil, err
		}
		if len(mems) == 0 {
			continue
		}
		root := tree.Build(mems).Find(prefix)
		if root == nil {
			continue
		}
		out = append(out, Tree{Label: ls.Label, Root: root})
	}
	return out, nil
}

// Find reads path from the first store that holds it.
func (s *Set) Find(path string) (Entry, error) {
	if err := storage.ValidatePath(path); err != nil {
		return Entry{}, err
	}
	for _, ls := range s.stores {
		if !ls.Store.Exists(path) {
			continue
		}
		m, err := ls.Store.Read(path)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Label: ls.Label, Mem: m}, nil
	}
	return Entry{}, apperr.NotFound(path)
}

func listAll(p storage.Provider) ([]models.Mem, error) {
	return p.List("")
}

func (s *Set) collect(list func(storage.Provider) ([]models.Mem, error), keep func(models.Mem) bool) ([]Entry, error) {
	var out []Entry
	for _, ls := range s.stores {
		mems, err := list(ls.Store)
		if err != nil {
			return nil, err
		}
		for _, m := range mems {
			if keep(m) {
				out = append(out, Entry{Label: ls.Label, Mem: m})
			}
		}
	}
	return out, nil
}
