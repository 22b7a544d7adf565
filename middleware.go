package hxstate

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type pageKey struct{}

// WithPage returns a context carrying p.
func WithPage(ctx context.Context, p *Page) context.Context {
	return context.WithValue(ctx, pageKey{}, p)
}

// FromContext returns the page stored by WithPage or Middleware.
func FromContext(ctx context.Context) (*Page, bool) {
	p, ok := ctx.Value(pageKey{}).(*Page)
	return p, ok
}

// MustFromContext is FromContext that panics when no page is present.
func MustFromContext(ctx context.Context) *Page {
	p, ok := FromContext(ctx)
	if !ok {
		panic("hxstate: no page in context (missing Middleware?)")
	}
	return p
}

// Middleware creates a fresh server page for every request and stores it in
// the request context. When chi's RequestID middleware runs first, the
// request ID becomes the page ID so logs of both correlate.
//
//	r := chi.NewRouter()
//	r.Use(middleware.RequestID)
//	r.Use(hxstate.Middleware(cfg))
func Middleware(cfg Config, opts ...PageOption) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pageOpts := append([]PageOption{WithConfig(cfg)}, opts...)
			if id := middleware.GetReqID(r.Context()); id != "" {
				pageOpts = append(pageOpts, WithPageID(id))
			}
			p := NewServerPage(pageOpts...)
			next.ServeHTTP(w, r.WithContext(WithPage(r.Context(), p)))
		})
	}
}

// Handler serves v with the request's page, or a new server page when no
// Middleware is installed.
func Handler(cfg Config, v View) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		if !ok {
			p = NewServerPage(WithConfig(cfg))
		}
		if err := ServePage(w, r, p, v); err != nil {
			p.Logger().Error("render failed", "path", r.URL.Path, "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})
}
