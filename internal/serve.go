package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mem/internal/api"
	"github.com/starford/mem/internal/mcpserver"
	"github.com/starford/mem/internal/memservice"
	"github.com/starford/mem/internal/sse"
	"github.com/starford/mem/internal/stores"
	"github.com/starford/mem/internal/watch"
)

var timeNow = time.Now

func daysToDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// writableService returns a service over the implicit store, or nil when the
// set was opened from --dir or writes are disabled.
func writableService(cmd *cli.Command, set *stores.Set, logger *slog.Logger) *memservice.Service {
	if cmd.Bool("read-only") || len(cmd.StringSlice("dir")) > 0 {
		return nil
	}
	return memservice.NewService(set.Stores()[0].Store, logger)
}

// newHTTPHandler builds the root router: health checks, the API under /api
// and the event stream at /api/events.
func (a *application) newHTTPHandler(set *stores.Set, svc *memservice.Service, broker *sse.Broker) http.Handler {
	cfg := a.config

	apiRouter := api.NewRouter(set, api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
		Service:     svc,
		StaleDays:   cfg.Stale.Days,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)
	return r
}

// watchStores runs one watcher per store and passes each event on with the
// store label. It returns when ctx is cancelled or a watcher fails.
func (a *application) watchStores(ctx context.Context, set *stores.Set, cb func(label string, ev watch.Event)) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, ls := range set.Stores() {
		g.Go(func() error {
			err := watch.Watch(gCtx, ls.Store, a.logger, a.config.Watch.Debounce, func(ev watch.Event) {
				cb(ls.Label, ev)
			})
			if err != nil {
				return fmt.Errorf("watch %s: %w", ls.Store.Root(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *application) serve(ctx context.Context, cmd *cli.Command) error {
	set, err := a.openSet(cmd)
	if err != nil {
		return err
	}
	cfg := a.config
	if cmd.IsSet("port") {
		cfg.App.HTTP.Port = int(cmd.Int("port"))
		if err := cfg.App.HTTP.Validate(); err != nil {
			return err
		}
	}
	logger := a.logger

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := sse.NewBroker(2 * time.Second)
	svc := writableService(cmd, set, logger)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           a.newHTTPHandler(set, svc, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Int("stores", len(set.Stores())),
		slog.Bool("writable", svc != nil),
		slog.String("auth_mode", cfg.Auth.Mode))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watchers with SSE callback.
	g.Go(func() error {
		return a.watchStores(gCtx, set, func(label string, ev watch.Event) {
			change := sse.MemChange{Path: ev.Path}
			if set.Multi() {
				change.Store = label
			}
			if ev.Mem != nil {
				change.Title = ev.Mem.Title
			}
			broker.PublishMemEvent(string(ev.Kind), change)
		})
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Shut down on signal or on the first failure.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		// Event streams never go idle; end them before Shutdown waits.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped successfully")
	return nil
}

func (a *application) watch(ctx context.Context, cmd *cli.Command) error {
	set, err := a.openSet(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	return a.watchStores(ctx, set, func(label string, ev watch.Event) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintln(a.stdout, formatEvent(label, set.Multi(), ev))
	})
}

// formatEvent renders one change as "kind: path", with the store label in
// brackets when several stores are watched.
func formatEvent(label string, multi bool, ev watch.Event) string {
	line := fmt.Sprintf("%s: %s", ev.Kind, ev.Path)
	if ev.Mem != nil && ev.Mem.Title != "" {
		line += " - " + ev.Mem.Title
	}
	if multi {
		line = "[" + label + "] " + line
	}
	return line
}

func (a *application) mcp(_ context.Context, cmd *cli.Command) error {
	set, err := a.openSet(cmd)
	if err != nil {
		return err
	}
	srv := mcpserver.New(set, writableService(cmd, set, a.logger), a.config.Stale.Days, a.version)
	a.logger.Info("MCP server starting", slog.Int("stores", len(set.Stores())))
	return srv.ServeStdio()
}
