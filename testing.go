package hxstate

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/pthm/hxstate/lib/htmlstate"
)

// TestResult holds the output of a server render for testing.
//
// Provides convenience methods for asserting on HTML content, headers and
// status codes, and for replaying the render as a hydration.
type TestResult struct {
	// HTML is the full output, state script included.
	HTML string
	// Markup is the component output (TestServerRender only). It excludes
	// the state script unless the view placed that itself.
	Markup     string
	StatusCode int
	Headers    http.Header
	// Page is the server page (TestServerRender only).
	Page *Page

	cfg Config
}

// TestServerRender runs the server pass of v on a fresh server page.
//
//	res, err := hxstate.TestServerRender(view)
//	client, err := res.Hydrate(ctx, view)
//	if client.HTML != res.Markup { ... }
func TestServerRender(v View, opts ...PageOption) (*TestResult, error) {
	return TestServerRenderWithContext(context.Background(), v, opts...)
}

// TestServerRenderWithContext is TestServerRender with a custom context.
func TestServerRenderWithContext(ctx context.Context, v View, opts ...PageOption) (*TestResult, error) {
	p := NewServerPage(opts...)
	comp, err := v.Setup(ctx, p)
	if err != nil {
		return nil, err
	}
	p.Prefetch(ctx)

	var markup bytes.Buffer
	if err := comp.Render(ctx, &markup); err != nil {
		return nil, err
	}
	var script bytes.Buffer
	if !p.stateWritten.Load() {
		if err := StateScript(p).Render(ctx, &script); err != nil {
			return nil, err
		}
	}

	return &TestResult{
		HTML:       markup.String() + script.String(),
		Markup:     markup.String(),
		StatusCode: http.StatusOK,
		Headers:    make(http.Header),
		Page:       p,
		cfg:        p.Config(),
	}, nil
}

// TestGet sends a GET request to h and records the response. cfg must
// match the configuration h renders with, so the state can be read back.
func TestGet(h http.Handler, url string, cfg Config, headers ...string) *TestResult {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	cfg.defaults()
	return &TestResult{
		HTML:       rec.Body.String(),
		StatusCode: rec.Code,
		Headers:    rec.Header(),
		cfg:        cfg,
	}
}

// Document extracts the embedded state and markers from the HTML.
func (r *TestResult) Document() (*htmlstate.Document, error) {
	return htmlstate.ExtractString(r.HTML, r.cfg.GlobalContext)
}

// State returns the page state embedded in the HTML.
func (r *TestResult) State() (*State, error) {
	doc, err := r.Document()
	if err != nil {
		return nil, err
	}
	return r.stateFrom(doc)
}

func (r *TestResult) stateFrom(doc *htmlstate.Document) (*State, error) {
	switch {
	case doc.Sealed != "":
		enc, err := r.cfg.sealer()
		if err != nil {
			return nil, err
		}
		return OpenState(enc, doc.Sealed, r.cfg.Sensitive)
	case len(doc.StateJSON) > 0:
		return ParseState(doc.StateJSON)
	}
	return nil, fmt.Errorf("%w: no state in output", ErrInvalidState)
}

// ClientPage builds the hydration page a browser would build from the HTML:
// state from the state script and the fetch-key markers.
func (r *TestResult) ClientPage(opts ...PageOption) (*Page, error) {
	doc, err := r.Document()
	if err != nil {
		return nil, err
	}
	s, err := r.stateFrom(doc)
	if err != nil {
		return nil, err
	}
	all := append([]PageOption{WithConfig(r.cfg), WithMarkers(doc.MarkerMap())}, opts...)
	return NewClientPage(s, all...), nil
}

// HydrateResult is the output of replaying a render on a client page.
type HydrateResult struct {
	Page *Page
	HTML string
}

// Hydrate runs v on a client page built from the HTML, mounts every
// instance, renders, and ends hydration.
func (r *TestResult) Hydrate(ctx context.Context, v View, opts ...PageOption) (*HydrateResult, error) {
	p, err := r.ClientPage(opts...)
	if err != nil {
		return nil, err
	}
	comp, err := v.Setup(ctx, p)
	if err != nil {
		return nil, err
	}
	for _, inst := range p.Instances() {
		inst.Mount(ctx)
	}
	var buf bytes.Buffer
	if err := comp.Render(ctx, &buf); err != nil {
		return nil, err
	}
	p.EndHydration()
	return &HydrateResult{Page: p, HTML: buf.String()}, nil
}

// HTMLContains checks if the HTML contains a substring.
func (r *TestResult) HTMLContains(substr string) bool {
	return strings.Contains(r.HTML, substr)
}

// HTMLContainsAll checks if the HTML contains all the given substrings.
func (r *TestResult) HTMLContainsAll(substrs ...string) bool {
	for _, s := range substrs {
		if !strings.Contains(r.HTML, s) {
			return false
		}
	}
	return true
}

// IsOK checks if the status code is 200.
func (r *TestResult) IsOK() bool {
	return r.StatusCode == http.StatusOK
}

// HasHeader checks if a header is set with the given value.
func (r *TestResult) HasHeader(key, value string) bool {
	return r.Headers.Get(key) == value
}
