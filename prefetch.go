package hxstate

import (
	"context"
	"sync"
)

// PrefetchFunc is server work that must finish before the page state is
// serialized.
type PrefetchFunc func(ctx context.Context)

// OnServerPrefetch registers fn to run during Page.Prefetch. It is a no-op on
// client pages.
func OnServerPrefetch(p *Page, fn PrefetchFunc) {
	if !p.IsServer() || fn == nil {
		return
	}
	p.mu.Lock()
	p.prefetch = append(p.prefetch, fn)
	p.mu.Unlock()
}

// OnServerPrefetchEnd registers fn to run after every OnServerPrefetch hook
// has finished.
func OnServerPrefetchEnd(p *Page, fn PrefetchFunc) {
	if !p.IsServer() || fn == nil {
		return
	}
	p.mu.Lock()
	p.prefetchEnd = append(p.prefetchEnd, fn)
	p.mu.Unlock()
}

// Prefetch runs the server prefetch phase: instance fetches and
// OnServerPrefetch hooks concurrently, then OnServerPrefetchEnd hooks. Hooks
// registered while a phase runs are picked up before Prefetch returns.
func (p *Page) Prefetch(ctx context.Context) {
	if !p.IsServer() {
		return
	}
	for {
		p.mu.Lock()
		hooks := p.prefetch
		p.prefetch = nil
		p.mu.Unlock()
		if len(hooks) == 0 {
			break
		}
		runAll(ctx, hooks)
	}
	for {
		p.mu.Lock()
		hooks := p.prefetchEnd
		p.prefetchEnd = nil
		p.mu.Unlock()
		if len(hooks) == 0 {
			break
		}
		runAll(ctx, hooks)
	}
}

// runAll runs fns concurrently and waits for all of them.
func runAll(ctx context.Context, fns []PrefetchFunc) {
	var wg sync.WaitGroup
	for _, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	wg.Wait()
}
