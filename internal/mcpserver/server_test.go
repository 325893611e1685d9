package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mem/internal/memservice"
	"github.com/starford/mem/internal/render"
	"github.com/starford/mem/internal/storage"
	"github.com/starford/mem/internal/stores"
	"github.com/starford/mem/internal/testutil"
)

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()
	store := testutil.TestStore(t)
	set := stores.New(stores.Labeled{Store: store})
	srv := New(set, memservice.NewService(store, testutil.Logger()), 90, "test")
	srv.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return srv, store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "list_mems":
		result, err = srv.listMems(ctx, req)
	case "read_mem":
		result, err = srv.readMem(ctx, req)
	case "search_mems":
		result, err = srv.searchMems(ctx, req)
	case "tree":
		result, err = srv.tree(ctx, req)
	case "lint":
		result, err = srv.lint(ctx, req)
	case "stale_mems":
		result, err = srv.staleMems(ctx, req)
	case "add_mem":
		result, err = srv.addMem(ctx, req)
	case "get_mem_format":
		result, err = srv.getMemFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	require.NoError(t, err, "tool %s", name)
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListMems(t *testing.T) {
	srv, store := testServer(t)
	testutil.WriteMem(t, store, "arch/adr-1", "ADR 1", "body", "arch")
	testutil.WriteMem(t, store, "notes/standup", "Standup", "body")

	res := callTool(t, srv, "list_mems", nil)
	assert.False(t, res.IsError)
	assert.Equal(t, "arch/adr-1: ADR 1 [arch]\nnotes/standup: Standup", resultText(res))

	res = callTool(t, srv, "list_mems", map[string]interface{}{"prefix": "notes"})
	assert.Equal(t, "notes/standup: Standup", resultText(res))

	res = callTool(t, srv, "list_mems", map[string]interface{}{"tag": "arch"})
	assert.Equal(t, "arch/adr-1: ADR 1 [arch]", resultText(res))

	res = callTool(t, srv, "list_mems", map[string]interface{}{"match": "*/standup"})
	assert.Equal(t, "notes/standup: Standup", resultText(res))
}

func TestListMemsEmpty(t *testing.T) {
	srv, _ := testServer(t)
	res := callTool(t, srv, "list_mems", nil)
	assert.Equal(t, "No mems found", resultText(res))
}

func TestReadMem(t *testing.T) {
	srv, store := testServer(t)
	m := testutil.WriteMem(t, store, "arch/adr-1", "ADR 1", "Use Go.", "arch")

	res := callTool(t, srv, "read_mem", map[string]interface{}{"path": "arch/adr-1"})
	require.False(t, res.IsError, resultText(res))

	var got render.Mem
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &got))
	assert.Equal(t, render.FromMem("", m), got)
}

func TestReadMemErrors(t *testing.T) {
	srv, _ := testServer(t)

	res := callTool(t, srv, "read_mem", map[string]interface{}{"path": "missing"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "not found")

	res = callTool(t, srv, "read_mem", nil)
	assert.True(t, res.IsError)
}

func TestReadToolsStayInsideStore(t *testing.T) {
	srv, store := testServer(t)
	testutil.WriteRaw(t, store, "../secret.md", "---\ntitle: secret\n---\nTOP SECRET\n")

	res := callTool(t, srv, "read_mem", map[string]interface{}{"path": "../secret"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "invalid path")

	res = callTool(t, srv, "list_mems", map[string]interface{}{"prefix": ".."})
	assert.True(t, res.IsError)
	assert.NotContains(t, resultText(res), "secret:")

	res = callTool(t, srv, "tree", map[string]interface{}{"prefix": "../.."})
	assert.True(t, res.IsError)
}

func TestSearchMems(t *testing.T) {
	srv, store := testServer(t)
	testutil.WriteMem(t, store, "a", "Alpha", "mentions Postgres")
	testutil.WriteMem(t, store, "b", "Beta", "nothing here")

	res := callTool(t, srv, "search_mems", map[string]interface{}{"query": "postgres"})
	assert.Equal(t, "a: Alpha", resultText(res))

	res = callTool(t, srv, "search_mems", map[string]interface{}{"query": "redis"})
	assert.Equal(t, "No matches found for: redis", resultText(res))
}

func TestTree(t *testing.T) {
	srv, store := testServer(t)
	testutil.WriteMem(t, store, "arch/adr-1", "ADR 1", "body")
	testutil.WriteMem(t, store, "readme", "Readme", "body")

	res := callTool(t, srv, "tree", nil)
	want := ".mems/\n" +
		"├── arch/\n" +
		"│   └── adr-1 - ADR 1\n" +
		"└── readme - Readme\n"
	assert.Equal(t, want, resultText(res))

	res = callTool(t, srv, "tree", map[string]interface{}{"prefix": "arch"})
	assert.Equal(t, "arch/\n└── adr-1 - ADR 1\n", resultText(res))
}

func TestLint(t *testing.T) {
	srv, store := testServer(t)
	testutil.WriteMem(t, store, "a", "Alpha", "see [b](b.md)")

	res := callTool(t, srv, "lint", nil)
	assert.False(t, res.IsError)
	assert.Equal(t, "Found 1 issues:\n  a: broken link to b.md", resultText(res))

	testutil.WriteMem(t, store, "b", "Beta", "body")
	res = callTool(t, srv, "lint", nil)
	assert.Equal(t, "No issues found (2 mems checked)", resultText(res))
}

func TestStaleMems(t *testing.T) {
	srv, store := testServer(t)
	testutil.WriteMem(t, store, "a", "Alpha", "body")

	res := callTool(t, srv, "stale_mems", map[string]interface{}{"days": 30})
	assert.Equal(t, "Stale mems (not updated in 30+ days):\n  a: Alpha (133 days)", resultText(res))

	res = callTool(t, srv, "stale_mems", map[string]interface{}{"days": 200})
	assert.Equal(t, "No stale mems (threshold: 200 days)", resultText(res))

	res = callTool(t, srv, "stale_mems", nil)
	assert.Contains(t, resultText(res), "not updated in 90+ days")

	res = callTool(t, srv, "stale_mems", map[string]interface{}{"days": -1})
	assert.True(t, res.IsError)
}

func TestAddMem(t *testing.T) {
	srv, store := testServer(t)

	res := callTool(t, srv, "add_mem", map[string]interface{}{
		"path":    "notes/standup",
		"content": "Daily notes",
		"tags":    "team, daily",
	})
	require.False(t, res.IsError, resultText(res))
	assert.Equal(t, "Created: notes/standup", resultText(res))

	m, err := store.Read("notes/standup")
	require.NoError(t, err)
	assert.Equal(t, "standup", m.Title)
	assert.Equal(t, []string{"team", "daily"}, m.Tags)
	assert.Equal(t, "Daily notes", m.Content)

	res = callTool(t, srv, "add_mem", map[string]interface{}{"path": "notes/standup", "content": "again"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "--force")

	res = callTool(t, srv, "add_mem", map[string]interface{}{
		"path": "notes/standup", "content": "again", "title": "Renamed", "force": true,
	})
	require.False(t, res.IsError, resultText(res))
	m, err = store.Read("notes/standup")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", m.Title)
}

func TestAddMemValidation(t *testing.T) {
	srv, _ := testServer(t)

	res := callTool(t, srv, "add_mem", map[string]interface{}{"path": "x"})
	assert.True(t, res.IsError)

	res = callTool(t, srv, "add_mem", map[string]interface{}{"path": "archive/x", "content": "c"})
	assert.True(t, res.IsError)

	res = callTool(t, srv, "add_mem", map[string]interface{}{"path": "../x", "content": "c"})
	assert.True(t, res.IsError)
}

func TestGetMemFormat(t *testing.T) {
	srv, _ := testServer(t)
	res := callTool(t, srv, "get_mem_format", nil)
	assert.Equal(t, MemFormat, resultText(res))
}

func TestFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readFormatResource(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	tc, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, formatURI, tc.URI)
	assert.Equal(t, MemFormat, tc.Text)
}

func TestReadOnlyServerHasNoAddTool(t *testing.T) {
	store := testutil.TestStore(t)
	srv := New(stores.New(stores.Labeled{Store: store}), nil, 90, "test")
	assert.NotNil(t, srv.MCPServer())
	assert.Nil(t, srv.svc)
}
