package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mem/internal/apperr"
	"github.com/starford/mem/internal/checksum"
	"github.com/starford/mem/internal/memservice"
	"github.com/starford/mem/internal/render"
	"github.com/starford/mem/internal/stores"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	set       *stores.Set
	svc       *memservice.Service
	staleDays int
	now       func() time.Time
}

// NewHandler creates a new Handler. svc may be nil, in which case write
// handlers are not mounted.
func NewHandler(set *stores.Set, svc *memservice.Service, staleDays int) *Handler {
	return &Handler{set: set, svc: svc, staleDays: staleDays, now: time.Now}
}

// memPath extracts the logical path from the URL (everything after /mems/).
// Encoded slashes (arch%2Fadr-1) are accepted.
func memPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListMems handles GET /mems.
//
// With q set it searches title and body; otherwise it lists under prefix.
// match is a glob over the path, tag keeps mems carrying that tag, and
// archived=true lists the archive instead of live mems.
func (h *Handler) ListMems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := stores.NewFilter(q.Get("match"), q.Get("tag"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	var entries []stores.Entry
	switch {
	case q.Get("q") != "":
		entries, err = h.set.Search(q.Get("q"))
		entries = keep(entries, filter)
	case q.Get("archived") == "true":
		entries, err = h.set.ListArchived(q.Get("prefix"), filter)
	default:
		entries, err = h.set.List(q.Get("prefix"), filter)
	}
	if err != nil {
		writeError(w, "list mems failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mems":  render.FromEntries(entries, h.set.Multi()),
		"total": len(entries),
	})
}

// GetMem handles GET /mems/*. The first store holding the path wins.
func (h *Handler) GetMem(w http.ResponseWriter, r *http.Request) {
	path := memPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	e, err := h.set.Find(path)
	if err != nil {
		writeError(w, "get mem failed", err)
		return
	}
	body := render.FromMem(label(e.Label, h.set.Multi()), e.Mem)
	w.Header().Set("ETag", `"`+body.Checksum+`"`)
	writeJSON(w, http.StatusOK, body)
}

// Tree handles GET /tree and answers with the same outline as `mem tree`.
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	trees, err := h.set.Trees(prefix)
	if err != nil {
		writeError(w, "tree failed", err)
		return
	}
	var buf bytes.Buffer
	if err := render.Trees(&buf, trees, h.set.Multi(), prefix); err != nil {
		writeError(w, "tree render failed", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Lint handles GET /lint. A report with findings is served as 422.
func (h *Handler) Lint(w http.ResponseWriter, r *http.Request) {
	report, err := h.set.Lint()
	if err != nil {
		writeError(w, "lint failed", err)
		return
	}
	status := http.StatusOK
	if report.Failed() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

// Stale handles GET /stale?days=N.
func (h *Handler) Stale(w http.ResponseWriter, r *http.Request) {
	days := h.staleDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("days must be a non-negative integer"))
			return
		}
		days = n
	}
	entries, err := h.set.Stale(h.now(), time.Duration(days)*24*time.Hour)
	if err != nil {
		writeError(w, "stale failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":  days,
		"mems":  render.FromEntries(entries, h.set.Multi()),
		"total": len(entries),
	})
}

type createMemRequest struct {
	Path    string   `json:"path"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Force   bool     `json:"force"`
}

// CreateMem handles POST /mems.
func (h *Handler) CreateMem(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req createMemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	m, err := h.svc.Add(r.Context(), memservice.AddRequest{
		Path:    req.Path,
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
		Force:   req.Force,
	})
	if err != nil {
		writeError(w, "create mem failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, render.FromMem("", m))
}

type updateMemRequest struct {
	Title   *string   `json:"title"`
	Content *string   `json:"content"`
	Tags    *[]string `json:"tags"`
}

// UpdateMem handles PUT /mems/*. Absent fields are kept. An If-Match header
// must carry the current checksum.
func (h *Handler) UpdateMem(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	path := memPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req updateMemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Title == nil && req.Content == nil && req.Tags == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("nothing to update"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	m, err := h.svc.Edit(r.Context(), memservice.EditRequest{
		Path:    path,
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
		IfMatch: ifMatch,
	})
	if err != nil {
		writeError(w, "update mem failed", err)
		return
	}
	w.Header().Set("ETag", `"`+checksum.Of(m)+`"`)
	writeJSON(w, http.StatusOK, render.FromMem("", m))
}

// DeleteMem handles DELETE /mems/*.
func (h *Handler) DeleteMem(w http.ResponseWriter, r *http.Request) {
	path := memPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.Remove(r.Context(), path); err != nil {
		writeError(w, "delete mem failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ArchiveMem handles POST /archive/*. force=true replaces an archived mem at
// the same path.
func (h *Handler) ArchiveMem(w http.ResponseWriter, r *http.Request) {
	path := memPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	force := r.URL.Query().Get("force") == "true"
	if err := h.svc.Archive(r.Context(), path, force); err != nil {
		writeError(w, "archive mem failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps err onto a status code. Unexpected errors are logged and
// hidden behind a generic message.
func writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("mem already exists"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrInvalidPath):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrCorrupt):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	default:
		slog.Error(msg, slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func keep(entries []stores.Entry, f stores.Filter) []stores.Entry {
	out := entries[:0]
	for _, e := range entries {
		if f.Allows(e.Mem) {
			out = append(out, e)
		}
	}
	return out
}

func label(l string, multi bool) string {
	if multi {
		return l
	}
	return ""
}
