package hxstate

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Side identifies which pass a page belongs to.
type Side int

const (
	// Server is the render pass that captures state.
	Server Side = iota
	// Client is the hydration pass that replays captured state.
	Client
)

func (s Side) String() string {
	if s == Client {
		return "client"
	}
	return "server"
}

// Page is the per-render context. Every synchronized value, instance and
// fetch controller is created against a Page, and nothing mutable is shared
// between pages: concurrent requests each get their own.
//
// A server page owns the capture store and the fetch array that become the
// embedded State. A client page owns the snapshot read back from that State.
type Page struct {
	cfg  Config
	side Side
	id   string
	log  *slog.Logger

	store *Store
	snap  *snapshot

	mu          sync.Mutex
	fetch       []any
	keys        map[string]struct{}
	instances   []*Instance
	prefetch    []PrefetchFunc
	prefetchEnd []PrefetchFunc
	hydrating   bool
	markers     map[string]int

	track        tracker
	fetching     atomic.Int32
	stateWritten atomic.Bool
}

// PageOption configures a Page.
type PageOption func(*Page)

// WithConfig sets the page configuration.
func WithConfig(cfg Config) PageOption {
	return func(p *Page) { p.cfg = cfg }
}

// WithLogger overrides the configured logger.
func WithLogger(l *slog.Logger) PageOption {
	return func(p *Page) { p.cfg.Logger = l }
}

// WithHotReload marks a client page as running under a dev refresh session.
// Refs then ignore the snapshot and recompute their initial value.
func WithHotReload(on bool) PageOption {
	return func(p *Page) { p.cfg.HotReload = on }
}

// WithPageID sets the page ID used for log correlation.
func WithPageID(id string) PageOption {
	return func(p *Page) { p.id = id }
}

// WithMarkers supplies the hydration markers read from server markup,
// instance key to fetch key. Instances opt in with FromMarkers.
func WithMarkers(m map[string]int) PageOption {
	return func(p *Page) { p.markers = maps.Clone(m) }
}

func newPage(side Side, opts []PageOption) *Page {
	p := &Page{
		side: side,
		keys: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	p.cfg.defaults()
	if p.id == "" {
		p.id = uuid.NewString()
	}
	p.log = p.cfg.Logger.With("page", p.id, "side", side.String())
	return p
}

// NewServerPage creates a page for a server render with an empty capture
// store.
func NewServerPage(opts ...PageOption) *Page {
	p := newPage(Server, opts)
	p.store = NewStore()
	return p
}

// NewClientPage creates a hydration page that reads from state. A nil state
// yields a client-only page with nothing to hydrate.
func NewClientPage(state *State, opts ...PageOption) *Page {
	p := newPage(Client, opts)
	if state != nil {
		p.snap = newSnapshot(state)
		p.hydrating = true
	}
	return p
}

// ResetServerCapture clears the page's capture store and fetch array. Call
// it once per render before any synchronized value is constructed; pages
// from NewServerPage start out reset.
func ResetServerCapture(p *Page) {
	if p.side != Server {
		return
	}
	p.store.Reset()
	p.mu.Lock()
	p.fetch = nil
	p.keys = make(map[string]struct{})
	p.mu.Unlock()
}

// Side returns the page's render pass.
func (p *Page) Side() Side { return p.side }

// IsServer reports whether this is a server page.
func (p *Page) IsServer() bool { return p.side == Server }

// IsClient reports whether this is a client page.
func (p *Page) IsClient() bool { return p.side == Client }

// ID returns the page ID.
func (p *Page) ID() string { return p.id }

// Config returns the page configuration.
func (p *Page) Config() Config { return p.cfg }

// Logger returns the page logger.
func (p *Page) Logger() *slog.Logger { return p.log }

// Store returns the capture store (nil on client pages).
func (p *Page) Store() *Store { return p.store }

// Hydrating reports whether a client page still has an unconsumed snapshot.
func (p *Page) Hydrating() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hydrating
}

// EndHydration discards the snapshot. Values created afterwards compute
// their own initial state, as on a client-side navigation.
func (p *Page) EndHydration() {
	p.mu.Lock()
	p.hydrating = false
	p.mu.Unlock()
	p.snap.discard()
}

// State returns the page state to embed. Only meaningful on server pages.
func (p *Page) State() *State {
	s := &State{SSRRefs: map[string]any{}, Fetch: []any{}}
	if p.store != nil {
		s.SSRRefs = p.store.Serialize()
	}
	p.mu.Lock()
	s.Fetch = append(s.Fetch, p.fetch...)
	p.mu.Unlock()
	return s
}

// Marker returns the fetch key recorded in server markup for an instance.
func (p *Page) Marker(instanceKey string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, ok := p.markers[instanceKey]
	return k, ok
}

// Instances returns the instances created on this page, in creation order.
func (p *Page) Instances() []*Instance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.instances)
}

// Fetching returns the number of fetch controllers currently running.
func (p *Page) Fetching() int {
	return int(p.fetching.Load())
}

// claimKey records a key used in this render and warns when a second live
// cell reuses it; the later write wins in the capture store.
func (p *Page) claimKey(key string) {
	p.mu.Lock()
	_, dup := p.keys[key]
	p.keys[key] = struct{}{}
	p.mu.Unlock()
	if dup && p.cfg.Dev {
		p.log.Warn("duplicate synchronization key", "key", key)
	}
}

// capture writes v to the store on server pages.
func (p *Page) capture(key string, v any) {
	if p.store == nil {
		return
	}
	if err := p.store.Put(key, v); err != nil {
		p.log.Error("capture failed", "key", key, "error", err)
	}
}

// resolve returns the hydrated value for key, if the client snapshot holds
// one and hot reload is off.
func (p *Page) resolve(key string) (any, bool) {
	if p.side != Client || p.cfg.HotReload {
		return nil, false
	}
	return p.snap.take(key)
}

// pushFetch appends an entry to the fetch array and returns its index.
func (p *Page) pushFetch(entry any) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetch = append(p.fetch, entry)
	return len(p.fetch) - 1
}

func (p *Page) addInstance(inst *Instance) {
	p.mu.Lock()
	p.instances = append(p.instances, inst)
	p.mu.Unlock()
}
