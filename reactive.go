package hxstate

import "sync"

// dep is the set of effects depending on one reactive source.
type dep struct {
	mu   sync.Mutex
	subs map[*Effect]struct{}
}

func (d *dep) add(e *Effect) {
	d.mu.Lock()
	if d.subs == nil {
		d.subs = make(map[*Effect]struct{})
	}
	d.subs[e] = struct{}{}
	d.mu.Unlock()
}

func (d *dep) remove(e *Effect) {
	d.mu.Lock()
	delete(d.subs, e)
	d.mu.Unlock()
}

func (d *dep) notify() {
	d.mu.Lock()
	subs := make([]*Effect, 0, len(d.subs))
	for e := range d.subs {
		subs = append(subs, e)
	}
	d.mu.Unlock()
	for _, e := range subs {
		e.trigger()
	}
}

// tracker owns the reactive state of one page: the stack of running
// effects and the queue of triggered ones. Effects only run while a
// goroutine holds exec, so the stack is never shared by two runs. A write
// made while another goroutine holds exec queues its effects for that
// goroutine to run before it releases the page.
//
// Reads on goroutines other than the one running effects see the same
// stack, so they can add a dependency to the running effect. That costs
// an extra run, never a missed one.
type tracker struct {
	exec sync.Mutex

	mu    sync.Mutex
	stack []*Effect
	queue []*Effect
}

func (t *tracker) push(e *Effect) {
	t.mu.Lock()
	t.stack = append(t.stack, e)
	t.mu.Unlock()
}

func (t *tracker) pop() {
	t.mu.Lock()
	t.stack = t.stack[:len(t.stack)-1]
	t.mu.Unlock()
}

func (t *tracker) current() *Effect {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

// depend registers the running effect, if any, as a dependent of d.
func (t *tracker) depend(d *dep) {
	e := t.current()
	if e == nil {
		return
	}
	d.add(e)
	e.mu.Lock()
	e.deps = append(e.deps, d)
	e.mu.Unlock()
}

// schedule queues e and runs the queue unless another run owns the page.
func (t *tracker) schedule(e *Effect) {
	e.mu.Lock()
	if e.stopped || e.queued {
		e.mu.Unlock()
		return
	}
	e.queued = true
	e.mu.Unlock()

	t.mu.Lock()
	t.queue = append(t.queue, e)
	t.mu.Unlock()
	t.flush()
}

func (t *tracker) next() *Effect {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return nil
	}
	e := t.queue[0]
	t.queue[0] = nil
	t.queue = t.queue[1:]
	return e
}

func (t *tracker) pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue) > 0
}

// flush drains the queue. A writer that finds the page owned returns at
// once; the owner re-checks the queue after releasing exec so no effect
// is left behind.
func (t *tracker) flush() {
	for t.exec.TryLock() {
		t.drain()
		if !t.pending() {
			return
		}
	}
}

func (t *tracker) drain() {
	defer t.exec.Unlock()
	for e := t.next(); e != nil; e = t.next() {
		e.fire()
	}
}

// Effect re-runs a function whenever a reactive value it read changes.
type Effect struct {
	page *Page
	fn   func()
	// then runs after every re-run caused by a change, not after the
	// first evaluation.
	then func()

	mu      sync.Mutex
	deps    []*dep
	ran     bool
	queued  bool
	stopped bool
}

// Effect runs fn, tracking every Ref, Computed or Fetch state it reads, and
// runs it again after any of them changes. When called from inside another
// effect, or while another goroutine is running the page's effects, the
// first run happens once that run finishes.
func (p *Page) Effect(fn func()) *Effect {
	e := &Effect{page: p, fn: fn}
	p.track.schedule(e)
	return e
}

// Watch calls cb each time a value read by source changes. Unlike Effect,
// cb does not run on the initial evaluation.
func (p *Page) Watch(source func(), cb func()) *Effect {
	e := &Effect{page: p, fn: source, then: cb}
	p.track.schedule(e)
	return e
}

// Stop detaches the effect from all of its sources.
func (e *Effect) Stop() {
	e.mu.Lock()
	e.stopped = true
	deps := e.deps
	e.deps = nil
	e.mu.Unlock()
	for _, d := range deps {
		d.remove(e)
	}
}

func (e *Effect) trigger() {
	e.page.track.schedule(e)
}

// fire runs a dequeued effect. Callers hold the page's exec lock.
func (e *Effect) fire() {
	e.mu.Lock()
	e.queued = false
	if e.stopped {
		e.mu.Unlock()
		return
	}
	first := !e.ran
	e.ran = true
	e.mu.Unlock()

	e.run()
	if !first && e.then != nil {
		e.then()
	}
}

func (e *Effect) run() {
	e.mu.Lock()
	deps := e.deps
	e.deps = nil
	e.mu.Unlock()
	for _, d := range deps {
		d.remove(e)
	}

	e.page.track.push(e)
	defer e.page.track.pop()
	e.fn()
}

// Computed is a cached value derived from other reactive values. It is
// recomputed by the page's effect queue, so a write is reflected once the
// writer's run of the queue returns.
type Computed[T any] struct {
	page   *Page
	fn     func() T
	effect *Effect
	dep    dep

	mu    sync.Mutex
	value T
}

// NewComputed creates a derived value. fn runs now and again after one of
// its sources changes; dependents are notified after each recomputation.
func NewComputed[T any](p *Page, fn func() T) *Computed[T] {
	c := &Computed[T]{page: p, fn: fn}
	c.effect = &Effect{page: p, fn: func() {
		v := c.fn()
		c.mu.Lock()
		c.value = v
		c.mu.Unlock()
	}, then: c.dep.notify}
	p.track.schedule(c.effect)
	return c
}

// Get returns the current value.
func (c *Computed[T]) Get() T {
	c.page.track.depend(&c.dep)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
