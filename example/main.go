package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pthm/hxstate"
	"github.com/pthm/hxstate/lib/payload"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := loadConfig("hxstate.yaml")
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	cfg.Logger = logger

	store := NewStore(50 * time.Millisecond)
	payloads := payload.New("payload", payload.WithCache(time.Minute))

	// Pre-render the index so client navigations can hydrate from a file.
	if err := prerender(cfg, payloads, "/", listView{store: store}); err != nil {
		logger.Warn("prerender failed", "route", "/", "error", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(hxstate.Middleware(cfg))

	r.Method(http.MethodGet, "/", viewHandler(func(r *http.Request) hxstate.View {
		return listView{store: store, status: Status(r.URL.Query().Get("status"))}
	}))
	r.Method(http.MethodGet, "/todos/{id}", viewHandler(func(r *http.Request) hxstate.View {
		return detailView{store: store, id: chi.URLParam(r, "id")}
	}))
	r.Post("/todos/{id}/toggle", func(w http.ResponseWriter, r *http.Request) {
		if !store.Toggle(chi.URLParam(r, "id")) {
			http.NotFound(w, r)
			return
		}
		if err := payloads.Remove("/"); err != nil {
			logger.Warn("drop payload", "error", err)
		}
		page := hxstate.MustFromContext(r.Context())
		if err := hxstate.ServePage(w, r, page, listView{store: store}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	r.Get("/_payload", func(w http.ResponseWriter, r *http.Request) {
		st, err := payloads.Read(r.URL.Query().Get("route"))
		if errors.Is(err, payload.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := writeJSON(w, st); err != nil {
			logger.Error("write payload", "error", err)
		}
	})

	addr := ":8080"
	logger.Info("listening", "addr", "http://localhost"+addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (hxstate.Config, error) {
	cfg, err := hxstate.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return hxstate.DefaultConfig(), nil
	}
	return cfg, err
}

// viewHandler renders the view built for each request on the request's page.
func viewHandler(build func(*http.Request) hxstate.View) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := hxstate.MustFromContext(r.Context())
		if err := hxstate.ServePage(w, r, page, build(r)); err != nil {
			page.Logger().Error("render failed", "path", r.URL.Path, "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})
}

func prerender(cfg hxstate.Config, payloads *payload.Store, route string, v hxstate.View) error {
	p := hxstate.NewServerPage(hxstate.WithConfig(cfg))
	if err := hxstate.RenderPage(context.Background(), io.Discard, p, v); err != nil {
		return err
	}
	return payloads.Write(route, p.State())
}

func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
