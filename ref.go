package hxstate

import (
	"encoding/json"
	"reflect"
	"sync"
)

// Ref is a reactive value cell synchronized between the server render and
// client hydration.
//
// On a server page every observed write re-sanitizes the whole value into
// the capture store under the ref's key. On a client page the initial value
// comes from the embedded snapshot when present and writes stay local.
//
// A deep ref observes nested writes made through At and Mutate. A shallow
// ref applies them in place but only Set is captured and notified; use it for
// large values where re-serializing on every nested write is too costly.
type Ref[T any] struct {
	page  *Page
	key   string
	deep  bool
	local bool
	dep   dep

	// write orders read-modify-write updates; mu guards value.
	write sync.Mutex
	mu    sync.RWMutex
	value T
}

// NewRef creates a deep-tracking synchronized ref with an initial value.
//
//	count := hxstate.NewRef(p, 0, "count")
//
// The key is normally appended by `hxstate keys`. NewRef panics with a
// *MissingKeyError when none is given.
func NewRef[T any](p *Page, value T, key ...string) *Ref[T] {
	k := validateKey("NewRef", key)
	return makeRef(p, k, true, func() T { return value }, false)
}

// NewRefFunc creates a deep-tracking synchronized ref whose initial value
// comes from factory. On the server the result is captured immediately, so
// the client finds it even if the ref is never written. On a hydrating
// client the factory is not called.
func NewRefFunc[T any](p *Page, factory func() T, key ...string) *Ref[T] {
	k := validateKey("NewRefFunc", key)
	return makeRef(p, k, true, factory, true)
}

// NewShallowRef creates a shallow-tracking synchronized ref.
func NewShallowRef[T any](p *Page, value T, key ...string) *Ref[T] {
	k := validateKey("NewShallowRef", key)
	return makeRef(p, k, false, func() T { return value }, false)
}

// NewShallowRefFunc creates a shallow-tracking synchronized ref from a
// factory.
func NewShallowRefFunc[T any](p *Page, factory func() T, key ...string) *Ref[T] {
	k := validateKey("NewShallowRefFunc", key)
	return makeRef(p, k, false, factory, true)
}

func makeRef[T any](p *Page, key string, deep bool, initial func() T, isFactory bool) *Ref[T] {
	r := &Ref[T]{page: p, key: key, deep: deep}
	if v, ok := p.resolve(key); ok {
		decoded, err := decodeInto[T](v)
		if err == nil {
			r.value = decoded
			return r
		}
		p.log.Warn("snapshot value does not fit ref type", "key", key, "error", err)
	}
	r.value = initial()
	if p.IsServer() {
		p.claimKey(key)
		if isFactory {
			p.capture(key, r.value)
		}
	}
	return r
}

// Key returns the synchronization key.
func (r *Ref[T]) Key() string { return r.key }

// Deep reports whether nested writes are tracked.
func (r *Ref[T]) Deep() bool { return r.deep }

// Get returns the value and registers the running effect as a dependent.
func (r *Ref[T]) Get() T {
	r.page.track.depend(&r.dep)
	return r.Peek()
}

// Peek returns the value without tracking.
func (r *Ref[T]) Peek() T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

// Set replaces the value, captures it on the server and notifies
// dependents.
func (r *Ref[T]) Set(v T) {
	r.write.Lock()
	r.store(v)
	r.write.Unlock()
	r.capture(v)
	r.dep.notify()
}

// Update replaces the value with fn applied to the current one. fn may read
// r but must not write it.
func (r *Ref[T]) Update(fn func(T) T) {
	r.write.Lock()
	v := fn(r.Peek())
	r.store(v)
	r.write.Unlock()
	r.capture(v)
	r.dep.notify()
}

// Mutate changes the value through a pointer to a copy of it, then stores
// the copy. Maps and slices in the value are shared with the copy. fn may
// read r but must not write it. On a deep ref the full value is then
// re-captured and dependents notified; on a shallow ref the change is not
// observed.
func (r *Ref[T]) Mutate(fn func(v *T)) {
	r.write.Lock()
	v := r.Peek()
	fn(&v)
	r.store(v)
	r.write.Unlock()
	r.written(v)
}

func (r *Ref[T]) store(v T) {
	r.mu.Lock()
	r.value = v
	r.mu.Unlock()
}

// At returns an accessor for a nested value.
//
//	user.At("address", "city").Set("Paris")
//
// Segments name map keys, slice indexes or struct fields (json tag or Go
// name).
func (r *Ref[T]) At(path ...string) *Accessor[T] {
	return &Accessor[T]{ref: r, path: path}
}

func (r *Ref[T]) written(v T) {
	if !r.deep {
		return
	}
	r.capture(v)
	r.dep.notify()
}

func (r *Ref[T]) capture(v T) {
	if r.local {
		return
	}
	r.page.capture(r.key, v)
}

// newLocalRef creates a deep ref that is reactive but never synchronized.
func newLocalRef[T any](p *Page, value T) *Ref[T] {
	return &Ref[T]{page: p, deep: true, local: true, value: value}
}

// MarshalJSON encodes the current value.
func (r *Ref[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Peek())
}

// UnmarshalJSON decodes into the ref and goes through Set, so hydration
// merges notify dependents like any other write.
func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r.Set(v)
	return nil
}

// Accessor reads and writes one nested location inside a Ref.
type Accessor[T any] struct {
	ref  *Ref[T]
	path []string
}

// At extends the accessor path.
func (a *Accessor[T]) At(path ...string) *Accessor[T] {
	return &Accessor[T]{ref: a.ref, path: append(append([]string(nil), a.path...), path...)}
}

// Get returns the nested value, tracking the ref as a dependency.
func (a *Accessor[T]) Get() (any, error) {
	a.ref.page.track.depend(&a.ref.dep)
	a.ref.mu.RLock()
	defer a.ref.mu.RUnlock()
	v, err := lookupPath(reflect.ValueOf(&a.ref.value).Elem(), a.path)
	if err != nil {
		return nil, err
	}
	if !v.IsValid() || !v.CanInterface() {
		return nil, nil
	}
	return v.Interface(), nil
}

// Set writes the nested value. Numeric values are converted to the target
// type.
func (a *Accessor[T]) Set(v any) error {
	a.ref.write.Lock()
	a.ref.mu.Lock()
	root := reflect.ValueOf(&a.ref.value).Elem()
	out, err := assignPath(root, a.path, v)
	if err != nil {
		a.ref.mu.Unlock()
		a.ref.write.Unlock()
		return err
	}
	root.Set(out)
	cur := a.ref.value
	a.ref.mu.Unlock()
	a.ref.write.Unlock()
	a.ref.written(cur)
	return nil
}
