// Package hxstateecho provides Echo framework integration for hxstate pages.
//
// Install the middleware, then render views with the request's page:
//
//	e := echo.New()
//	e.Use(middleware.RequestID())
//	e.Use(hxstateecho.Middleware(cfg))
//	e.GET("/posts/:id", func(c echo.Context) error {
//	    return hxstateecho.Render(c, postView)
//	})
package hxstateecho

import (
	"github.com/labstack/echo/v4"
	"github.com/pthm/hxstate"
)

// ContextKey is the echo.Context key the page is stored under.
const ContextKey = "hxstate.page"

// Middleware creates a server page for every request. The page is stored on
// the echo.Context and in the request context, so both Page and
// hxstate.FromContext find it. The X-Request-ID response header, when set
// by Echo's RequestID middleware, becomes the page ID.
func Middleware(cfg hxstate.Config, opts ...hxstate.PageOption) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			pageOpts := append([]hxstate.PageOption{hxstate.WithConfig(cfg)}, opts...)
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				pageOpts = append(pageOpts, hxstate.WithPageID(id))
			}
			p := hxstate.NewServerPage(pageOpts...)
			c.Set(ContextKey, p)
			c.SetRequest(c.Request().WithContext(hxstate.WithPage(c.Request().Context(), p)))
			return next(c)
		}
	}
}

// Page returns the request's page, creating a default server page when the
// middleware is not installed.
func Page(c echo.Context) *hxstate.Page {
	if p, ok := c.Get(ContextKey).(*hxstate.Page); ok {
		return p
	}
	p := hxstate.NewServerPage()
	c.Set(ContextKey, p)
	return p
}

// Render runs v on the request's page and writes the page with its state.
//
//	func handler(c echo.Context) error {
//	    return hxstateecho.Render(c, view)
//	}
func Render(c echo.Context, v hxstate.View) error {
	return hxstate.ServePage(c.Response(), c.Request(), Page(c), v)
}
