// Package tree rebuilds the directory hierarchy of a flat, sorted mem list
// and renders it as an outline.
package tree

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/starford/mem/internal/models"
)

// Node is a directory (Mem == nil) or a document in the hierarchy.
type Node struct {
	Name     string
	Path     string
	Mem      *models.Mem
	Children []*Node
}

// IsDir reports whether n is a directory node.
func (n *Node) IsDir() bool {
	return n.Mem == nil
}

// Build returns the root directory node for mems. Every strict prefix of a
// mem path on a "/" boundary becomes a directory. At each level child
// directories come first in alphabetical order, then documents in input
// order.
func Build(mems []models.Mem) *Node {
	dirs := make(map[string]struct{})
	byParent := make(map[string][]*models.Mem)
	for i := range mems {
		m := &mems[i]
		parts := strings.Split(m.Path, "/")
		for j := 1; j < len(parts); j++ {
			dirs[strings.Join(parts[:j], "/")] = struct{}{}
		}
		parent := m.Dir()
		byParent[parent] = append(byParent[parent], m)
	}

	sorted := make([]string, 0, len(dirs))
	for d := range dirs {
		sorted = append(sorted, d)
	}
	slices.Sort(sorted)

	root := &Node{}
	fill(root, sorted, byParent)
	return root
}

func fill(n *Node, dirs []string, byParent map[string][]*models.Mem) {
	for _, d := range childDirs(n.Path, dirs) {
		child := &Node{Name: d[strings.LastIndexByte(d, '/')+1:], Path: d}
		fill(child, dirs, byParent)
		n.Children = append(n.Children, child)
	}
	for _, m := range byParent[n.Path] {
		n.Children = append(n.Children, &Node{Name: m.Name(), Path: m.Path, Mem: m})
	}
}

// childDirs returns the direct subdirectories of parent, keeping the order
// of dirs.
func childDirs(parent string, dirs []string) []string {
	var out []string
	for _, d := range dirs {
		rest := d
		if parent != "" {
			var ok bool
			rest, ok = strings.CutPrefix(d, parent+"/")
			if !ok {
				continue
			}
		}
		if !strings.Contains(rest, "/") {
			out = append(out, d)
		}
	}
	return out
}

// Find returns the directory node at path, or nil when there is none.
// The empty path is the root itself.
func (n *Node) Find(path string) *Node {
	path = strings.Trim(path, "/")
	if path == "" {
		return n
	}
	cur := n
	for _, seg := range strings.Split(path, "/") {
		var next *Node
		for _, c := range cur.Children {
			if c.IsDir() && c.Name == seg {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// Render prints rootName followed by the outline of root's children using
// box-drawing connectors.
func Render(w io.Writer, root *Node, rootName string) error {
	if _, err := fmt.Fprintf(w, "%s/\n", rootName); err != nil {
		return err
	}
	return render(w, root, "")
}

func render(w io.Writer, n *Node, prefix string) error {
	for i, c := range n.Children {
		last := i == len(n.Children)-1
		connector, childPrefix := "├── ", prefix+"│   "
		if last {
			connector, childPrefix = "└── ", prefix+"    "
		}
		if c.IsDir() {
			if _, err := fmt.Fprintf(w, "%s%s%s/\n", prefix, connector, c.Name); err != nil {
				return err
			}
			if err := render(w, c, childPrefix); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%s%s%s - %s\n", prefix, connector, c.Name, c.Mem.Title); err != nil {
			return err
		}
	}
	return nil
}
