// Package lint checks mem bodies for broken structural links and flags mems
// with an empty title or body.
package lint

import (
	"fmt"
	"path"
	"strings"

	"github.com/starford/mem/internal/models"
	"github.com/starford/mem/internal/storage"
)

// Kind classifies a finding.
type Kind string

const (
	KindEmptyTitle   Kind = "empty_title"
	KindEmptyContent Kind = "empty_content"
	KindBrokenLink   Kind = "broken_link"
)

// Finding is one problem attributed to a mem.
type Finding struct {
	Label  string `json:"store,omitempty"`
	Path   string `json:"path"`
	Kind   Kind   `json:"kind"`
	Target string `json:"target,omitempty"`
}

func (f Finding) String() string {
	var b strings.Builder
	if f.Label != "" {
		fmt.Fprintf(&b, "[%s] ", f.Label)
	}
	b.WriteString(f.Path)
	switch f.Kind {
	case KindEmptyTitle:
		b.WriteString(": empty title")
	case KindEmptyContent:
		b.WriteString(": empty content")
	case KindBrokenLink:
		b.WriteString(": broken link to ")
		b.WriteString(f.Target)
	}
	return b.String()
}

// Report aggregates the findings of one or more stores.
type Report struct {
	Checked  int       `json:"checked"`
	Findings []Finding `json:"findings"`
}

// Failed reports whether any finding was collected.
func (r Report) Failed() bool {
	return len(r.Findings) > 0
}

// Exister is the part of a store the checker needs.
type Exister interface {
	Exists(path string) bool
}

// Check returns the findings for mems, resolving link targets against store.
// Findings are ordered by mem, then title, content, and links in body order.
func Check(store Exister, mems []models.Mem) []Finding {
	var out []Finding
	for _, m := range mems {
		if strings.TrimSpace(m.Title) == "" {
			out = append(out, Finding{Path: m.Path, Kind: KindEmptyTitle})
		}
		if strings.TrimSpace(m.Content) == "" {
			out = append(out, Finding{Path: m.Path, Kind: KindEmptyContent})
		}
		for _, target := range ScanLinks(m.Content) {
			if !IsStructural(target) {
				continue
			}
			if resolved, ok := Resolve(m.Path, target); !ok || !store.Exists(resolved) {
				out = append(out, Finding{Path: m.Path, Kind: KindBrokenLink, Target: target})
			}
		}
	}
	return out
}

// ScanLinks returns the targets of every [label](target) link in body. A
// label may nest brackets; the target must open immediately after the
// closing bracket. Unterminated targets are dropped.
func ScanLinks(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		out = scanLine(line, out)
	}
	return out
}

func scanLine(line string, out []string) []string {
	i := 0
	for i < len(line) {
		if line[i] != '[' {
			i++
			continue
		}
		depth := 1
		i++
		for i < len(line) && depth > 0 {
			switch line[i] {
			case '[':
				depth++
			case ']':
				depth--
			}
			i++
		}
		if depth > 0 || i >= len(line) || line[i] != '(' {
			continue
		}
		start := i + 1
		end := strings.IndexByte(line[start:], ')')
		if end < 0 {
			return out
		}
		if target := line[start : start+end]; target != "" {
			out = append(out, target)
		}
		i = start + end + 1
	}
	return out
}

// IsStructural reports whether target refers to another mem in the same
// store: a relative .md reference without a network scheme.
func IsStructural(target string) bool {
	return strings.HasSuffix(target, storage.Extension) &&
		!strings.HasPrefix(target, "http") &&
		!strings.Contains(target, "://")
}

// Resolve maps target, as written in the mem at from, to a logical path.
// Targets starting with "/" are taken from the store root. ok is false when
// the target escapes the store.
func Resolve(from, target string) (string, bool) {
	target = strings.TrimSuffix(target, storage.Extension)
	var p string
	if strings.HasPrefix(target, "/") {
		p = path.Clean(target[1:])
	} else {
		p = path.Join(path.Dir(from), target)
	}
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}
