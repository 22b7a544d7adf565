package hxstate

import (
	"context"
	"testing"
)

func TestMountQueueDrainsOnce(t *testing.T) {
	ctx := context.Background()
	q := NewMountQueue()
	var order []string

	q.Push(ctx, func(context.Context) { order = append(order, "a") })
	q.Push(ctx, func(context.Context) { order = append(order, "b") })
	if len(order) != 0 {
		t.Fatalf("callbacks ran before drain: %v", order)
	}
	if q.Len() != 2 || q.State() != QueueAccumulating {
		t.Errorf("Len() = %d, State() = %v; want 2, accumulating", q.Len(), q.State())
	}

	q.Drain(ctx)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v, want [a b]", order)
	}
	if q.State() != QueuePassthrough {
		t.Errorf("State() = %v, want passthrough", q.State())
	}

	q.Push(ctx, func(context.Context) { order = append(order, "c") })
	if len(order) != 3 || order[2] != "c" {
		t.Errorf("push after drain did not run immediately: %v", order)
	}

	q.Drain(ctx)
	if len(order) != 3 {
		t.Errorf("second Drain re-ran callbacks: %v", order)
	}
}

func TestMountQueueClear(t *testing.T) {
	ctx := context.Background()
	q := NewMountQueue()
	ran := false
	q.Push(ctx, func(context.Context) { ran = true })
	q.Clear()
	q.Drain(ctx)
	if ran {
		t.Error("cleared callback ran")
	}
}

func TestOnMountedAfterMountRunsImmediately(t *testing.T) {
	ctx := context.Background()
	inst := NewInstance(NewClientPage(nil), "widget")
	var order []string
	inst.OnMounted(ctx, func(context.Context) { order = append(order, "queued") })
	inst.Mount(ctx)
	inst.OnMounted(ctx, func(context.Context) { order = append(order, "direct") })

	if len(order) != 2 || order[0] != "queued" || order[1] != "direct" {
		t.Errorf("order = %v, want [queued direct]", order)
	}
	if !inst.Mounted() {
		t.Error("Mounted() = false")
	}
}

func TestMountIsNoopOnServer(t *testing.T) {
	ctx := context.Background()
	inst := NewInstance(NewServerPage(), "widget")
	ran := false
	inst.OnMounted(ctx, func(context.Context) { ran = true })
	inst.Mount(ctx)
	if ran || inst.Mounted() {
		t.Error("server instance mounted")
	}
}

func TestUnmountHooks(t *testing.T) {
	inst := NewInstance(NewClientPage(nil), "widget")
	calls := 0
	inst.OnUnmount(func() { calls++ })
	inst.Unmount()
	inst.Unmount()
	if calls != 1 {
		t.Errorf("unmount hooks ran %d times, want 1", calls)
	}
}

func TestNewInstanceRequiresKey(t *testing.T) {
	defer func() {
		err, _ := recover().(error)
		if !IsMissingKey(err) {
			t.Errorf("recover() = %v, want MissingKeyError", err)
		}
	}()
	NewInstance(NewServerPage(), "")
}
