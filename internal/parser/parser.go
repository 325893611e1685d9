// Package parser encodes and decodes mem files: a YAML frontmatter block
// between two "---" lines followed by the Markdown body.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/mem/internal/models"
)

const delim = "---"

var (
	ErrMalformedHeader    = errors.New("missing frontmatter: file must start with ---")
	ErrUnterminatedHeader = errors.New("missing frontmatter: no closing --- found")
	ErrInvalidMetadata    = errors.New("invalid frontmatter")
	ErrTimestampRange     = errors.New("timestamp outside years 0000-9999")
)

// CheckTimes reports whether m's timestamps fit the RFC 3339 year range,
// the only range Encode output can be decoded from.
func CheckTimes(m models.Mem) error {
	for _, ts := range []time.Time{m.CreatedAt, m.UpdatedAt} {
		if y := ts.UTC().Year(); y < 0 || y > 9999 {
			return fmt.Errorf("%w: %s", ErrTimestampRange, ts.UTC().Format(time.RFC3339))
		}
	}
	return nil
}

// stamp decodes an RFC 3339 timestamp from its raw scalar text, so quoted
// and unquoted forms behave the same.
type stamp time.Time

func (s *stamp) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: timestamp must be a scalar", n.Line)
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(n.Value))
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*s = stamp(t.UTC())
	return nil
}

// header is the decoding view; pointers distinguish absent keys.
type header struct {
	Title     *string  `yaml:"title"`
	CreatedAt *stamp   `yaml:"created-at"`
	UpdatedAt *stamp   `yaml:"updated-at"`
	Tags      []string `yaml:"tags"`
}

type encodedHeader struct {
	Title     string    `yaml:"title"`
	CreatedAt time.Time `yaml:"created-at"`
	UpdatedAt time.Time `yaml:"updated-at"`
	Tags      []string  `yaml:"tags,omitempty"`
}

// Decode parses a mem file. The returned mem has an empty Path; the store
// assigns it from the file location.
func Decode(raw []byte) (models.Mem, error) {
	rest, ok := cutOpening(string(raw))
	if !ok {
		return models.Mem{}, ErrMalformedHeader
	}
	block, body, ok := splitHeader(rest)
	if !ok {
		return models.Mem{}, ErrUnterminatedHeader
	}

	var h header
	if err := yaml.Unmarshal([]byte(block), &h); err != nil {
		return models.Mem{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	switch {
	case h.Title == nil:
		return models.Mem{}, fmt.Errorf("%w: missing title", ErrInvalidMetadata)
	case h.CreatedAt == nil:
		return models.Mem{}, fmt.Errorf("%w: missing created-at", ErrInvalidMetadata)
	case h.UpdatedAt == nil:
		return models.Mem{}, fmt.Errorf("%w: missing updated-at", ErrInvalidMetadata)
	}

	tags := h.Tags
	if len(tags) == 0 {
		tags = nil
	}
	return models.Mem{
		Title:     *h.Title,
		CreatedAt: time.Time(*h.CreatedAt),
		UpdatedAt: time.Time(*h.UpdatedAt),
		Tags:      tags,
		Content:   stripBlankLine(body),
	}, nil
}

// Encode renders m as a mem file. It never fails for an in-memory mem, but
// only mems passing CheckTimes decode again.
func Encode(m models.Mem) []byte {
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	// A struct of strings and times always marshals.
	_ = enc.Encode(encodedHeader{
		Title:     m.Title,
		CreatedAt: m.CreatedAt.UTC().Truncate(time.Second),
		UpdatedAt: m.UpdatedAt.UTC().Truncate(time.Second),
		Tags:      m.Tags,
	})
	_ = enc.Close()

	buf.WriteString(delim + "\n")
	// Decode drops one leading blank line; keep a body that starts with a
	// newline intact.
	if strings.HasPrefix(m.Content, "\n") || strings.HasPrefix(m.Content, "\r\n") {
		buf.WriteByte('\n')
	}
	buf.WriteString(m.Content)
	return buf.Bytes()
}

// cutOpening returns the text after the opening delimiter line.
func cutOpening(text string) (string, bool) {
	line, rest, found := strings.Cut(text, "\n")
	if strings.TrimSuffix(line, "\r") != delim {
		return "", false
	}
	if !found {
		return "", true
	}
	return rest, true
}

// splitHeader finds the closing delimiter line and returns the YAML block
// before it and everything after it.
func splitHeader(rest string) (block, body string, ok bool) {
	off := 0
	for {
		end := strings.IndexByte(rest[off:], '\n')
		line, next := rest[off:], len(rest)
		if end >= 0 {
			line, next = rest[off:off+end], off+end+1
		}
		if strings.TrimSuffix(line, "\r") == delim {
			return rest[:off], rest[next:], true
		}
		if end < 0 {
			return "", "", false
		}
		off = next
	}
}

func stripBlankLine(body string) string {
	if s, ok := strings.CutPrefix(body, "\r\n"); ok {
		return s
	}
	return strings.TrimPrefix(body, "\n")
}
