package hxstate

import (
	"context"
	"fmt"
)

// Promise is an asynchronous value resolved once on the server and replayed
// on the client.
type Promise[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// NewPromise starts factory on a server page and captures its result under
// key before the page state is serialized. On a client page with a snapshot
// entry the promise is already resolved and factory never runs.
//
//	user := hxstate.NewPromise(p, loadUser, "user")
//	u, err := user.Await(ctx)
func NewPromise[T any](p *Page, factory func(ctx context.Context) (T, error), key ...string) *Promise[T] {
	k := validateKey("NewPromise", key)
	pr := &Promise[T]{done: make(chan struct{})}

	if v, ok := p.resolve(k); ok {
		pr.value, pr.err = decodeInto[T](v)
		close(pr.done)
		return pr
	}

	if !p.IsServer() {
		go pr.run(context.Background(), factory)
		return pr
	}

	p.claimKey(k)
	OnServerPrefetch(p, func(ctx context.Context) {
		pr.run(ctx, factory)
		if pr.err == nil {
			p.capture(k, pr.value)
		}
	})
	return pr
}

func (pr *Promise[T]) run(ctx context.Context, factory func(ctx context.Context) (T, error)) {
	defer close(pr.done)
	defer func() {
		if r := recover(); r != nil {
			pr.err = fmt.Errorf("hxstate: promise panicked: %v", r)
		}
	}()
	pr.value, pr.err = factory(ctx)
}

// Await blocks until the promise settles or ctx is done.
func (pr *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-pr.done:
		return pr.value, pr.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Settled reports whether the promise has resolved or failed.
func (pr *Promise[T]) Settled() bool {
	select {
	case <-pr.done:
		return true
	default:
		return false
	}
}
