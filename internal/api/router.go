package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mem/internal/memservice"
	"github.com/starford/mem/internal/stores"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// AuthEnabled controls whether Bearer token auth is enforced.
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// Service, if non-nil, enables the write routes.
	Service   *memservice.Service
	StaleDays int
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(set *stores.Set, cfg RouterConfig) chi.Router {
	h := NewHandler(set, cfg.Service, cfg.StaleDays)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	r.Get("/mems", h.ListMems)
	r.Get("/mems/*", h.GetMem)
	r.Get("/tree", h.Tree)
	r.Get("/lint", h.Lint)
	r.Get("/stale", h.Stale)

	if cfg.Service != nil {
		r.Post("/mems", h.CreateMem)
		r.Put("/mems/*", h.UpdateMem)
		r.Delete("/mems/*", h.DeleteMem)
		r.Post("/archive/*", h.ArchiveMem)
	}

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
