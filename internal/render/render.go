// Package render formats mems and reports for terminal output.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/starford/mem/internal/checksum"
	"github.com/starford/mem/internal/lint"
	"github.com/starford/mem/internal/models"
	"github.com/starford/mem/internal/stores"
	"github.com/starford/mem/internal/tree"
)

const (
	rule = "<!-- ═══════════════════════════════════════════════════════════════════ -->"
	day  = 24 * time.Hour
)

// Mem is the JSON shape of a mem.
type Mem struct {
	Store     string   `json:"store,omitempty"`
	Path      string   `json:"path"`
	Title     string   `json:"title"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
	Tags      []string `json:"tags"`
	Content   string   `json:"content"`
	Checksum  string   `json:"checksum"`
}

// FromMem converts m to its JSON shape under the given store label.
func FromMem(label string, m models.Mem) Mem {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	return Mem{
		Store:     label,
		Path:      m.Path,
		Title:     m.Title,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: m.UpdatedAt.UTC().Format(time.RFC3339),
		Tags:      tags,
		Content:   m.Content,
		Checksum:  checksum.Of(m),
	}
}

// FromEntries converts entries to JSON shapes. Labels are kept only when
// multi is set.
func FromEntries(entries []stores.Entry, multi bool) []Mem {
	out := make([]Mem, 0, len(entries))
	for _, e := range entries {
		out = append(out, FromMem(label(e.Label, multi), e.Mem))
	}
	return out
}

// JSON writes v as indented JSON followed by a newline.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// List writes one line per entry: path, title and bracketed tags.
func List(w io.Writer, entries []stores.Entry, multi bool) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No mems found")
		return err
	}
	for _, e := range entries {
		tags := ""
		if len(e.Mem.Tags) > 0 {
			tags = " [" + strings.Join(e.Mem.Tags, ", ") + "]"
		}
		if _, err := fmt.Fprintf(w, "%s%s: %s%s\n", prefix(e.Label, multi), e.Mem.Path, e.Mem.Title, tags); err != nil {
			return err
		}
	}
	return nil
}

// Find writes the search hits for query.
func Find(w io.Writer, entries []stores.Entry, multi bool, query string) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintf(w, "No matches found for: %s\n", query)
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s%s: %s\n", prefix(e.Label, multi), e.Mem.Path, e.Mem.Title); err != nil {
			return err
		}
	}
	return nil
}

// Stale writes the mems not updated within days of now, with their age.
func Stale(w io.Writer, entries []stores.Entry, multi bool, now time.Time, days int) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintf(w, "No stale mems (threshold: %d days)\n", days)
		return err
	}
	if _, err := fmt.Fprintf(w, "Stale mems (not updated in %d+ days):\n", days); err != nil {
		return err
	}
	for _, e := range entries {
		age := int(now.Sub(e.Mem.UpdatedAt) / day)
		if _, err := fmt.Fprintf(w, "  %s%s: %s (%d days)\n", prefix(e.Label, multi), e.Mem.Path, e.Mem.Title, age); err != nil {
			return err
		}
	}
	return nil
}

// Show writes a single mem as Markdown.
func Show(w io.Writer, m models.Mem) error {
	var b strings.Builder
	writeDocument(&b, m)
	_, err := io.WriteString(w, b.String())
	return err
}

// Lint writes the report summary. It returns an error when the report has
// findings.
func Lint(w io.Writer, r lint.Report) error {
	if !r.Failed() {
		_, err := fmt.Fprintf(w, "No issues found (%d mems checked)\n", r.Checked)
		return err
	}
	if _, err := fmt.Fprintf(w, "Found %d issues:\n", len(r.Findings)); err != nil {
		return err
	}
	for _, f := range r.Findings {
		if _, err := fmt.Fprintf(w, "  %s\n", f); err != nil {
			return err
		}
	}
	return fmt.Errorf("lint failed with %d issues", len(r.Findings))
}

// Trees writes the outline of each store. The root is named after the store
// label when several stores are shown, otherwise after the prefix.
func Trees(w io.Writer, trees []stores.Tree, multi bool, prefix string) error {
	if len(trees) == 0 {
		_, err := fmt.Fprintln(w, "No mems found")
		return err
	}
	for i, t := range trees {
		if multi && i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		name := strings.Trim(prefix, "/")
		switch {
		case multi:
			name = t.Label
		case name == "":
			name = ".mems"
		}
		if err := tree.Render(w, t.Root, name); err != nil {
			return err
		}
	}
	return nil
}

// Group is the set of mems of one store in a dump.
type Group struct {
	Label string
	Mems  []models.Mem
}

// Dump concatenates mems into one Markdown document with comment separators.
// Empty groups are skipped. A header names each store when multi is set.
func Dump(w io.Writer, groups []Group, multi bool) error {
	var b strings.Builder
	first := true
	for _, g := range groups {
		if len(g.Mems) == 0 {
			continue
		}
		if multi {
			if !first {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "<!-- ═══ %s ═══ -->\n\n", g.Label)
		}
		first = false
		for _, m := range g.Mems {
			fmt.Fprintf(&b, "%s\n<!-- %s -->\n%s\n\n", rule, m.Path, rule)
			writeDocument(&b, m)
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeDocument(b *strings.Builder, m models.Mem) {
	fmt.Fprintf(b, "# %s\n\n", m.Title)
	if len(m.Tags) > 0 {
		fmt.Fprintf(b, "Tags: %s\n\n", strings.Join(m.Tags, ", "))
	}
	b.WriteString(m.Content)
	b.WriteString("\n")
}

func label(l string, multi bool) string {
	if !multi {
		return ""
	}
	return l
}

func prefix(l string, multi bool) string {
	if !multi {
		return ""
	}
	return "[" + l + "] "
}
