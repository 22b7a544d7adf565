// Package hxstate synchronizes state between a server render and the
// client hydration of the same page, for Go pages rendered with templ and
// driven by HTMX.
//
// Values created during the server render are captured under stable keys,
// embedded in the page, and replayed on the client so it neither recomputes
// them nor renders markup that disagrees with the server's.
//
// # Pages
//
// Every render gets its own *Page. Nothing mutable is shared between
// pages, so concurrent requests never see each other's state:
//
//	p := hxstate.NewServerPage(hxstate.WithConfig(cfg))
//
// A client page is built from the embedded state. The state can come from
// markup (lib/htmlstate), a sealed string (NewClientPageFromSealed) or a
// pre-rendered payload file (lib/payload):
//
//	p := hxstate.NewClientPage(state, hxstate.WithMarkers(doc.MarkerMap()))
//
// # Synchronized References
//
// A Ref is a reactive cell. On the server every observed write is captured;
// on a hydrating client the initial value comes from the snapshot:
//
//	count := hxstate.NewRef(p, 0, "count-1xQ4mZbT0aKc")
//	user := hxstate.NewRef(p, User{}, "user-9eWq2LmN0bVc")
//	user.At("address", "city").Set("Paris") // captured, deep ref
//
// Shallow refs (NewShallowRef) only observe Set. Use them for large values
// that would otherwise be re-serialized on every nested write.
//
// Keys must be identical on server and client. Run `hxstate keys ./...` to
// stamp them onto call sites; a constructor called without a key panics
// with a *MissingKeyError.
//
// # Fetches
//
// An Instance is one component on the page. UseFetch registers callbacks
// that load its data:
//
//	inst := hxstate.NewInstance(p, "post", hxstate.FromMarkers())
//	inst.Expose("post", post)
//	hxstate.UseFetch(inst, func(ctx context.Context, _ *hxstate.Instance) error {
//	    return loadPost(ctx, post)
//	})
//
// On the server Page.Prefetch runs them and records the instance's exposed
// fields in the page state; inst.Attrs() marks the root element with the
// resulting data-fetch-key. A hydrating client instance merges that entry on
// Mount instead of fetching again. Errors are captured in FetchState and
// never returned from lifecycle calls.
//
// # Rendering
//
// A View's Setup declares the page; ServePage runs setup, prefetch and
// render, and embeds the state:
//
//	r.Use(hxstate.Middleware(cfg))
//	r.Method("GET", "/posts/{id}", hxstate.Handler(cfg, postView))
//
// # Head
//
// Instances created with WithHead or WithHeadFunc expose a reactive head
// through UseMeta. Page.Head merges all of them and RenderHead writes the
// tags.
package hxstate
