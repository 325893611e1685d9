// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the mem stores to LLM clients via stdio transport.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mem/internal/memservice"
	"github.com/starford/mem/internal/render"
	"github.com/starford/mem/internal/stores"
)

const formatURI = "mem://format"

// Server wraps the MCP server with mem tools.
type Server struct {
	mcp       *server.MCPServer
	set       *stores.Set
	svc       *memservice.Service
	staleDays int
	now       func() time.Time
}

// New creates a new MCP server. Read tools fan out over set. svc, when
// non-nil, backs add_mem.
func New(set *stores.Set, svc *memservice.Service, staleDays int, version string) *Server {
	s := &Server{set: set, svc: svc, staleDays: staleDays, now: time.Now}

	s.mcp = server.NewMCPServer(
		"mem",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_mems",
		mcp.WithDescription("List mems as 'path: title [tags]' lines, optionally under a path prefix."),
		mcp.WithString("prefix", mcp.Description("Optional path prefix (e.g. arch)")),
		mcp.WithString("match", mcp.Description("Optional glob over the path; * stays within a segment, ** crosses them")),
		mcp.WithString("tag", mcp.Description("Optional tag every listed mem must carry")),
	), s.listMems)

	s.mcp.AddTool(mcp.NewTool("read_mem",
		mcp.WithDescription("Read one mem as JSON (path, title, timestamps, tags, content)."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Logical path without extension (e.g. arch/adr-001)")),
	), s.readMem)

	s.mcp.AddTool(mcp.NewTool("search_mems",
		mcp.WithDescription("Case-insensitive substring search over mem titles and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for")),
	), s.searchMems)

	s.mcp.AddTool(mcp.NewTool("tree",
		mcp.WithDescription("Show the mem hierarchy as an outline."),
		mcp.WithString("prefix", mcp.Description("Optional subtree to show")),
	), s.tree)

	s.mcp.AddTool(mcp.NewTool("lint",
		mcp.WithDescription("Report broken links between mems and mems with an empty title or body."),
	), s.lint)

	s.mcp.AddTool(mcp.NewTool("stale_mems",
		mcp.WithDescription("List mems not updated within a number of days."),
		mcp.WithNumber("days", mcp.Description("Age threshold in days (defaults to the configured value)")),
	), s.staleMems)

	s.mcp.AddTool(mcp.NewTool("get_mem_format",
		mcp.WithDescription("Returns the mem file format and the linking rules. "+
			"Call this before creating mems."),
	), s.getMemFormat)

	if svc != nil {
		s.mcp.AddTool(mcp.NewTool("add_mem",
			mcp.WithDescription("Create a mem. The header is generated; pass only the Markdown body as content. "+
				"Read get_mem_format or the "+formatURI+" resource first."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Logical path without extension (e.g. notes/standup)")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Markdown body")),
			mcp.WithString("title", mcp.Description("Optional title; derived from the path when empty")),
			mcp.WithString("tags", mcp.Description("Optional comma-separated tags")),
			mcp.WithBoolean("force", mcp.Description("Overwrite an existing mem at the same path")),
		), s.addMem)
	}

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Mem Format",
			mcp.WithResourceDescription("On-disk format of a mem and the linking rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listMems(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter, err := stores.NewFilter(req.GetString("match", ""), req.GetString("tag", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.set.List(req.GetString("prefix", ""), filter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var buf bytes.Buffer
	if err := render.List(&buf, entries, s.set.Multi()); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.TrimSuffix(buf.String(), "\n")), nil
}

func (s *Server) readMem(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := s.set.Find(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	label := ""
	if s.set.Multi() {
		label = e.Label
	}
	out, _ := json.MarshalIndent(render.FromMem(label, e.Mem), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchMems(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.set.Search(query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var buf bytes.Buffer
	if err := render.Find(&buf, entries, s.set.Multi(), query); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.TrimSuffix(buf.String(), "\n")), nil
}

func (s *Server) tree(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix := req.GetString("prefix", "")
	trees, err := s.set.Trees(prefix)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var buf bytes.Buffer
	if err := render.Trees(&buf, trees, s.set.Multi(), prefix); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) lint(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.set.Lint()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var buf bytes.Buffer
	// Findings are the answer here, not a tool failure.
	_ = render.Lint(&buf, report)
	return mcp.NewToolResultText(strings.TrimSuffix(buf.String(), "\n")), nil
}

func (s *Server) staleMems(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days := req.GetInt("days", s.staleDays)
	if days < 0 {
		return mcp.NewToolResultError("days must be non-negative"), nil
	}
	now := s.now()
	entries, err := s.set.Stale(now, time.Duration(days)*24*time.Hour)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var buf bytes.Buffer
	if err := render.Stale(&buf, entries, s.set.Multi(), now, days); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.TrimSuffix(buf.String(), "\n")), nil
}

func (s *Server) addMem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.svc.Add(ctx, memservice.AddRequest{
		Path:    path,
		Title:   req.GetString("title", ""),
		Content: content,
		Tags:    memservice.ParseTags(req.GetString("tags", "")),
		Force:   req.GetBool("force", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created: %s", m.Path)), nil
}

func (s *Server) getMemFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MemFormat), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     MemFormat,
		},
	}, nil
}
