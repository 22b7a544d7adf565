package hxstate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
	"github.com/pthm/hxstate/lib/htmlstate"
)

// ServePage runs the server pass of v on p and writes the result: setup,
// prefetch, render, then the embedded state script. Output is buffered so a
// failing render leaves the response untouched.
//
// HTMX partial requests get the state script marked hx-swap-oob, so the
// swapped fragment does not have to contain it.
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    p := hxstate.NewServerPage(hxstate.WithConfig(cfg))
//	    if err := hxstate.ServePage(w, r, p, view); err != nil {
//	        http.Error(w, err.Error(), http.StatusInternalServerError)
//	    }
//	}
func ServePage(w http.ResponseWriter, r *http.Request, p *Page, v View) error {
	var buf bytes.Buffer
	oob := IsHTMX(r) && !IsBoosted(r)
	if err := renderPage(r.Context(), &buf, p, v, oob); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

// RenderPage runs the server pass of v on p and writes markup plus state to
// w.
func RenderPage(ctx context.Context, w io.Writer, p *Page, v View) error {
	return renderPage(ctx, w, p, v, false)
}

func renderPage(ctx context.Context, w io.Writer, p *Page, v View, oob bool) error {
	if !p.IsServer() {
		return fmt.Errorf("hxstate: RenderPage needs a server page")
	}
	comp, err := v.Setup(ctx, p)
	if err != nil {
		return err
	}
	p.Prefetch(ctx)
	if err := comp.Render(ctx, w); err != nil {
		return err
	}
	if p.stateWritten.Load() {
		return nil
	}
	// State is read after rendering so writes made while rendering are kept.
	return stateScript(p, oob).Render(ctx, w)
}

// StateScript renders the element carrying the page state. Pages that
// render a full document place it at the end of the body; RenderPage then
// does not append another. Place it after everything that reads or writes
// synchronized values.
func StateScript(p *Page) templ.Component {
	return stateScript(p, false)
}

func stateScript(p *Page, oob bool) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p.stateWritten.Store(true)
		cfg := p.Config()
		id := htmlstate.StateID(cfg.GlobalContext)
		extra := ""
		if oob {
			extra = ` hx-swap-oob="true"`
		}

		if cfg.Transport == TransportSealed {
			enc, err := cfg.sealer()
			if err != nil {
				return err
			}
			sealed, err := SealState(enc, p.State(), cfg.Sensitive)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, `<script id="%s" type="application/hxstate" %s="%s"%s></script>`,
				templ.EscapeString(id), htmlstate.SealedAttr, templ.EscapeString(sealed), extra)
			return err
		}

		// json.Marshal escapes <, > and & so the literal cannot close the
		// script element.
		data, err := json.Marshal(p.State())
		if err != nil {
			return fmt.Errorf("hxstate: serialize state: %w", err)
		}
		_, err = fmt.Fprintf(w, `<script id="%s"%s>window[%s]=%s;</script>`,
			templ.EscapeString(id), extra, strconv.Quote(cfg.GlobalContext), data)
		return err
	})
}

// IsHTMX returns true if the request originated from HTMX.
func IsHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// IsBoosted returns true if the request is a boosted navigation (hx-boost).
// Boosted responses replace the whole body, so their state script is
// swapped in place rather than out of band.
func IsBoosted(r *http.Request) bool {
	return r.Header.Get("HX-Boosted") == "true"
}
