package hxstate

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// AsyncDataFunc loads a set of fields for an instance.
type AsyncDataFunc func(ctx context.Context) (map[string]any, error)

// AsyncDataOptions control when an async data handler runs.
type AsyncDataOptions struct {
	// ClientOnly skips the handler on the server; a hydrating client then
	// runs it after mount.
	ClientOnly bool

	// Defer makes client navigations run the handler after mount instead of
	// waiting for it.
	Defer bool

	// Watch, if set, is a reactive source; the handler runs again whenever a
	// value it reads changes (client only).
	Watch func()
}

// AsyncDataOption configures AsyncDataOptions.
type AsyncDataOption func(*AsyncDataOptions)

// ClientOnly runs the handler on the client only.
func ClientOnly() AsyncDataOption {
	return func(o *AsyncDataOptions) { o.ClientOnly = true }
}

// Deferred runs the handler after mount on client navigations.
func Deferred() AsyncDataOption {
	return func(o *AsyncDataOptions) { o.Defer = true }
}

// WatchSource re-runs the handler when values read by source change.
func WatchSource(source func()) AsyncDataOption {
	return func(o *AsyncDataOptions) { o.Watch = source }
}

// AsyncData is the result of one AsyncDataScope.Load call.
type AsyncData struct {
	// Data holds the merged handler results. It is synchronized, so a
	// hydrating client starts with the server's data.
	Data    *Ref[map[string]any]
	Pending *Ref[bool]
	Error   *Ref[*ErrorInfo]

	load func(ctx context.Context)
}

// Refresh runs the handler again.
func (a *AsyncData) Refresh(ctx context.Context) {
	a.load(ctx)
}

// AsyncDataScope issues async data loads for one instance. Loads are
// numbered in call order, so server and client must call Load in the same
// order.
type AsyncDataScope struct {
	inst     *Instance
	defaults AsyncDataOptions

	mu   sync.Mutex
	next int
}

// UseAsyncData creates a scope for inst with default options.
func UseAsyncData(inst *Instance, defaults ...AsyncDataOption) *AsyncDataScope {
	s := &AsyncDataScope{inst: inst, next: 1}
	for _, o := range defaults {
		o(&s.defaults)
	}
	return s
}

// Load registers handler and, depending on the page and options, runs it
// now, after mount, or not at all (hydrated from the server):
//
//   - server: runs now unless ClientOnly
//   - hydrating client: no run; ClientOnly handlers run after mount
//   - client navigation: runs now, or after mount with Defer
//
// Handler errors end up in AsyncData.Error. Load only fails for a nil
// handler.
func (s *AsyncDataScope) Load(ctx context.Context, handler AsyncDataFunc, opts ...AsyncDataOption) (*AsyncData, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: async data handler is nil", ErrInvalidHandler)
	}
	o := s.defaults
	for _, fn := range opts {
		fn(&o)
	}

	s.mu.Lock()
	n := s.next
	s.next++
	s.mu.Unlock()

	p := s.inst.page
	base := s.inst.key + ":asyncdata:" + strconv.Itoa(n)
	ad := &AsyncData{
		Data:    NewRef(p, map[string]any{}, base),
		Pending: NewRef(p, true, base+":pending"),
		Error:   NewRef[*ErrorInfo](p, nil, base+":error"),
	}
	ad.load = func(ctx context.Context) {
		ad.Pending.Set(true)
		result, err := callAsyncData(ctx, handler)
		if err != nil {
			ad.Error.Set(NormalizeError(err))
			ad.Pending.Set(false)
			return
		}
		ad.Data.Mutate(func(m *map[string]any) {
			if *m == nil {
				*m = make(map[string]any, len(result))
			}
			for k, v := range result {
				(*m)[k] = v
			}
		})
		ad.Error.Set(nil)
		ad.Pending.Set(false)
	}

	if p.IsServer() {
		if !o.ClientOnly {
			ad.load(ctx)
		}
		return ad, nil
	}

	hydrating := s.inst.hydrating || p.Hydrating()
	switch {
	case hydrating && !o.ClientOnly:
		ad.Pending.Set(false)
	case hydrating && o.ClientOnly:
		s.inst.OnMounted(ctx, ad.load)
	case o.Defer:
		s.inst.OnMounted(ctx, ad.load)
	default:
		ad.load(ctx)
	}

	if o.Watch != nil {
		w := p.Watch(o.Watch, func() { ad.load(context.WithoutCancel(ctx)) })
		s.inst.OnUnmount(w.Stop)
	}
	return ad, nil
}

func callAsyncData(ctx context.Context, handler AsyncDataFunc) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("async data handler panicked: %v", r)
		}
	}()
	return handler(ctx)
}
