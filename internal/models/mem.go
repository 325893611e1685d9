// Package models defines the domain types for mem.
package models

import (
	"strings"
	"time"
)

// Mem is one document of the store: a titled, timestamped, tagged unit of
// Markdown addressed by a slash-separated logical path (no extension).
type Mem struct {
	Path      string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Tags      []string
	Content   string
}

// New returns a mem whose created and updated timestamps are both now.
// An empty tag list is stored as nil.
func New(path, title, content string, tags ...string) Mem {
	if len(tags) == 0 {
		tags = nil
	}
	now := time.Now().UTC()
	return Mem{
		Path:      path,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      tags,
		Content:   content,
	}
}

// Touch refreshes UpdatedAt. CreatedAt is never modified.
func (m *Mem) Touch() {
	now := time.Now().UTC()
	if now.Before(m.CreatedAt) {
		now = m.CreatedAt
	}
	m.UpdatedAt = now
}

// Dir returns the logical parent path, or "" for a top-level mem.
func (m Mem) Dir() string {
	i := strings.LastIndexByte(m.Path, '/')
	if i < 0 {
		return ""
	}
	return m.Path[:i]
}

// Name returns the last segment of the logical path.
func (m Mem) Name() string {
	return m.Path[strings.LastIndexByte(m.Path, '/')+1:]
}

// HasTag reports whether tag is among the mem's tags.
func (m Mem) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
