package hxstate

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/a-h/templ"
	"github.com/pthm/hxstate/lib/htmlstate"
)

// FetchKeyAttr is the markup attribute carrying an instance's index into the
// embedded fetch array.
const FetchKeyAttr = htmlstate.FetchKeyAttr

// InstanceAttr is the markup attribute carrying the instance key next to
// FetchKeyAttr, so markers can be matched back to instances.
const InstanceAttr = htmlstate.InstanceAttr

// Instance is one component instance on a page: the scope that owns its
// refs, exposed fields, fetch controller, head and lifecycle hooks.
//
// Whether a client instance hydrates from server output is an explicit
// construction option (Hydrating), never sniffed from markup at runtime.
type Instance struct {
	page *Page
	key  string

	hydrating bool
	markerKey int

	mu          sync.Mutex
	fields      map[string]any
	beforeMount []func(context.Context)
	onUnmount   []func()
	mountQueue  *MountQueue
	mounted     bool
	unmounted   bool
	fetchKey    int
	fetch       *Fetch
	head        headState
	warnings    []*HydrationMismatchWarning
}

// InstanceOption configures an Instance.
type InstanceOption func(*Instance)

// Hydrating marks a client instance as the live counterpart of a
// server-rendered one whose markup carried data-fetch-key=fetchKey.
func Hydrating(fetchKey int) InstanceOption {
	return func(i *Instance) {
		i.hydrating = true
		i.markerKey = fetchKey
	}
}

// FromMarkers applies Hydrating with the fetch key the page's markers
// record for this instance, if any (see WithMarkers).
func FromMarkers() InstanceOption {
	return func(i *Instance) {
		if k, ok := i.page.Marker(i.key); ok {
			Hydrating(k)(i)
		}
	}
}

// NewInstance creates an instance on p. key identifies the instance within
// the page and prefixes keys generated on its behalf (async data), so it
// must match between server and client.
func NewInstance(p *Page, key string, opts ...InstanceOption) *Instance {
	if key == "" {
		panic(&MissingKeyError{Func: "NewInstance"})
	}
	inst := &Instance{
		page:       p,
		key:        key,
		fields:     make(map[string]any),
		mountQueue: NewMountQueue(),
		fetchKey:   -1,
	}
	for _, o := range opts {
		o(inst)
	}
	if p.IsServer() || !p.Hydrating() {
		inst.hydrating = false
	}
	p.addInstance(inst)
	return inst
}

// Key returns the instance key.
func (i *Instance) Key() string { return i.key }

// Page returns the owning page.
func (i *Instance) Page() *Page { return i.page }

// IsHydrating reports whether this client instance hydrates from server
// output.
func (i *Instance) IsHydrating() bool { return i.hydrating }

// Expose registers a field of the instance's state under name. target must
// be a pointer or a *Ref; it is serialized into the fetch snapshot on the
// server and assigned from it on the client.
func (i *Instance) Expose(name string, target any) {
	i.mu.Lock()
	i.fields[name] = target
	i.mu.Unlock()
}

// Data returns the exposed fields as sanitized JSON values.
func (i *Instance) Data() (map[string]any, error) {
	i.mu.Lock()
	fields := make(map[string]any, len(i.fields))
	for k, v := range i.fields {
		fields[k] = v
	}
	i.mu.Unlock()
	clean, err := sanitize(fields)
	if err != nil {
		return nil, fmt.Errorf("hxstate: instance %s data: %w", i.key, err)
	}
	out, _ := clean.(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// OnBeforeMount registers fn to run at the start of Mount.
func (i *Instance) OnBeforeMount(fn func(context.Context)) {
	i.mu.Lock()
	i.beforeMount = append(i.beforeMount, fn)
	i.mu.Unlock()
}

// OnMounted queues fn until the instance mounts. After the first mount it
// runs immediately.
func (i *Instance) OnMounted(ctx context.Context, fn func(context.Context)) {
	i.mountQueue.Push(ctx, fn)
}

// OnUnmount registers fn to run on Unmount.
func (i *Instance) OnUnmount(fn func()) {
	i.mu.Lock()
	i.onUnmount = append(i.onUnmount, fn)
	i.mu.Unlock()
}

// MountQueue returns the instance's deferred mount queue.
func (i *Instance) MountQueue() *MountQueue { return i.mountQueue }

// Mount runs the client mount sequence once: before-mount hooks (snapshot
// merge or first fetch), then the deferred mount queue. It is a no-op on
// server pages and on later calls.
func (i *Instance) Mount(ctx context.Context) {
	if i.page.IsServer() {
		return
	}
	i.mu.Lock()
	if i.mounted || i.unmounted {
		i.mu.Unlock()
		return
	}
	i.mounted = true
	hooks := slices.Clone(i.beforeMount)
	i.mu.Unlock()

	for _, fn := range hooks {
		fn(ctx)
	}
	i.mountQueue.Drain(ctx)
}

// Navigate re-runs the instance's fetches, as on a client-side navigation
// that reuses a mounted instance.
func (i *Instance) Navigate(ctx context.Context) {
	if f := i.Fetch(); f != nil {
		f.Refresh(ctx)
	}
}

// Unmount tears the instance down. Registered fetch callbacks are dropped
// and results of fetches still in flight are ignored.
func (i *Instance) Unmount() {
	i.mu.Lock()
	if i.unmounted {
		i.mu.Unlock()
		return
	}
	i.unmounted = true
	hooks := i.onUnmount
	i.onUnmount = nil
	f := i.fetch
	i.mu.Unlock()

	i.mountQueue.Clear()
	if f != nil {
		f.teardown()
	}
	for _, fn := range hooks {
		fn()
	}
}

// Mounted reports whether Mount has run.
func (i *Instance) Mounted() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mounted
}

// Fetch returns the instance's fetch controller, or nil.
func (i *Instance) Fetch() *Fetch {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.fetch
}

// FetchKey returns the index assigned in the fetch array, if any.
func (i *Instance) FetchKey() (int, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.fetchKey, i.fetchKey >= 0
}

func (i *Instance) setFetchKey(k int) {
	i.mu.Lock()
	i.fetchKey = k
	i.mu.Unlock()
}

// Attrs returns the hydration marker attributes for the instance's root
// element. Empty until a server prefetch assigned a fetch key; a hydrating
// client instance repeats the server's marker so both passes render the
// same markup.
//
//	<div { inst.Attrs()... }>
func (i *Instance) Attrs() templ.Attributes {
	attrs := templ.Attributes{}
	k, ok := i.FetchKey()
	if !ok && i.hydrating {
		k, ok = i.markerKey, true
	}
	if ok {
		attrs[FetchKeyAttr] = strconv.Itoa(k)
		attrs[InstanceAttr] = i.key
	}
	return attrs
}

// Warnings returns hydration mismatches recorded while merging snapshot
// data.
func (i *Instance) Warnings() []*HydrationMismatchWarning {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.warnings)
}

// merge assigns each field of a fetch snapshot entry onto the exposed
// targets. Fields are independent, so one failure does not stop the rest.
func (i *Instance) merge(data any) {
	m, ok := data.(map[string]any)
	if !ok {
		if data != nil {
			i.warn("", fmt.Errorf("snapshot entry is %T, not an object", data))
		}
		return
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	slices.Sort(names)

	for _, name := range names {
		i.mu.Lock()
		target, ok := i.fields[name]
		i.mu.Unlock()
		if !ok {
			i.warn(name, fmt.Errorf("no exposed field"))
			continue
		}
		if err := assignJSON(target, m[name]); err != nil {
			i.warn(name, err)
		}
	}
}

func assignJSON(target, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("assign panicked: %v", r)
		}
	}()
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func (i *Instance) warn(field string, err error) {
	w := &HydrationMismatchWarning{Instance: i.key, Field: field, Err: err}
	i.mu.Lock()
	i.warnings = append(i.warnings, w)
	i.mu.Unlock()
	if i.page.cfg.Dev {
		i.page.log.Warn("could not hydrate field", "instance", i.key, "field", field, "error", err)
	}
}
