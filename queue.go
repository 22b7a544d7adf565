package hxstate

import (
	"context"
	"sync"
)

// QueueState is the state of a MountQueue.
type QueueState int

const (
	// QueueAccumulating holds pushed callbacks until the first drain.
	QueueAccumulating QueueState = iota
	// QueuePassthrough invokes pushed callbacks immediately.
	QueuePassthrough
)

func (s QueueState) String() string {
	if s == QueuePassthrough {
		return "passthrough"
	}
	return "accumulating"
}

// MountQueue defers callbacks until an instance first mounts. It drains
// exactly once; after that Push runs callbacks directly, so an instance
// reused across client navigations never re-queues work for a mount that
// will not happen again.
type MountQueue struct {
	mu    sync.Mutex
	state QueueState
	queue []func(context.Context)
}

// NewMountQueue returns an accumulating queue.
func NewMountQueue() *MountQueue {
	return &MountQueue{}
}

// State returns the queue state.
func (q *MountQueue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Len returns the number of queued callbacks.
func (q *MountQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Push queues cb, or runs it now if the queue has already drained.
func (q *MountQueue) Push(ctx context.Context, cb func(context.Context)) {
	q.mu.Lock()
	if q.state == QueueAccumulating {
		q.queue = append(q.queue, cb)
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()
	cb(ctx)
}

// Drain runs queued callbacks in order and switches to passthrough. Later
// calls do nothing.
func (q *MountQueue) Drain(ctx context.Context) {
	q.mu.Lock()
	if q.state == QueuePassthrough {
		q.mu.Unlock()
		return
	}
	pending := q.queue
	q.queue = nil
	q.state = QueuePassthrough
	q.mu.Unlock()
	for _, cb := range pending {
		cb(ctx)
	}
}

// Clear drops queued callbacks without running them.
func (q *MountQueue) Clear() {
	q.mu.Lock()
	q.queue = nil
	q.mu.Unlock()
}
