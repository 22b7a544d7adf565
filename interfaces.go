package hxstate

import (
	"context"

	"github.com/a-h/templ"
)

// View is implemented by pages. Setup declares the page's instances, refs
// and fetches against p and returns the component that renders them.
//
// The same Setup runs for the server render and for hydration, so it must
// create synchronized values with the same keys in the same order on both:
//
//	func (v PostView) Setup(ctx context.Context, p *hxstate.Page) (templ.Component, error) {
//	    inst := hxstate.NewInstance(p, "post", hxstate.FromMarkers())
//	    title := hxstate.NewRef(p, "", "title-Xk2b9Qa0c1dE")
//	    inst.Expose("title", title)
//	    hxstate.UseFetch(inst, func(ctx context.Context, _ *hxstate.Instance) error {
//	        title.Set(v.store.Title(ctx))
//	        return nil
//	    })
//	    return postTemplate(inst, title), nil
//	}
//
// Setup should not block on data; put that in fetch callbacks or promises,
// which Page.Prefetch awaits before rendering.
type View interface {
	Setup(ctx context.Context, p *Page) (templ.Component, error)
}

// ViewFunc adapts a function to View.
type ViewFunc func(ctx context.Context, p *Page) (templ.Component, error)

// Setup calls f.
func (f ViewFunc) Setup(ctx context.Context, p *Page) (templ.Component, error) {
	return f(ctx, p)
}
