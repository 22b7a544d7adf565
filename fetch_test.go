package hxstate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type notFound struct{}

func (notFound) Error() string   { return "no such post" }
func (notFound) StatusCode() int { return 404 }

func TestFetchErrorFirstInRegistrationOrder(t *testing.T) {
	p := NewServerPage()
	inst := NewInstance(p, "post")

	UseFetch(inst, func(ctx context.Context, _ *Instance) error { return nil })
	f := UseFetch(inst, func(ctx context.Context, _ *Instance) error { return errors.New("boom") })
	UseFetch(inst, func(ctx context.Context, _ *Instance) error { return errors.New("second") })

	p.Prefetch(context.Background())

	st := f.State()
	if st.Pending {
		t.Error("Pending = true after prefetch")
	}
	if st.Error == nil {
		t.Fatal("Error = nil, want boom")
	}
	if st.Error.Message != "boom" || st.Error.StatusCode != 500 {
		t.Errorf("Error = %+v, want {500 boom}", st.Error)
	}
	if f.Status() != FetchErrored {
		t.Errorf("Status() = %v, want %v", f.Status(), FetchErrored)
	}

	info, ok := p.State().ErrorEntry(0)
	if !ok || info.Message != "boom" {
		t.Errorf("fetch[0] error marker = %+v, %v; want boom", info, ok)
	}
}

func TestServerPrefetchPushesInstanceData(t *testing.T) {
	p := NewServerPage()
	first := NewInstance(p, "first")
	second := NewInstance(p, "second")

	var title string
	first.Expose("title", &title)
	UseFetch(first, func(ctx context.Context, _ *Instance) error {
		title = "hello"
		return nil
	})
	count := NewRef(p, 0, "count")
	second.Expose("count", count)
	UseFetch(second, func(ctx context.Context, _ *Instance) error {
		count.Set(3)
		return nil
	})

	p.Prefetch(context.Background())

	st := p.State()
	if len(st.Fetch) != 2 {
		t.Fatalf("len(fetch) = %d, want 2", len(st.Fetch))
	}
	for _, inst := range []*Instance{first, second} {
		k, ok := inst.FetchKey()
		if !ok {
			t.Fatalf("%s has no fetch key", inst.Key())
		}
		entry, _ := st.Fetch[k].(map[string]any)
		switch inst.Key() {
		case "first":
			if entry["title"] != "hello" {
				t.Errorf("fetch[%d] = %v, want title=hello", k, entry)
			}
		case "second":
			if entry["count"] != float64(3) {
				t.Errorf("fetch[%d] = %v, want count=3", k, entry)
			}
		}
		attrs := inst.Attrs()
		if attrs[FetchKeyAttr] == nil || attrs[InstanceAttr] != inst.Key() {
			t.Errorf("Attrs() = %v, want fetch key and instance", attrs)
		}
	}
	if st.SSRRefs["count"] != float64(3) {
		t.Errorf("ssrRefs.count = %v, want 3", st.SSRRefs["count"])
	}
}

func TestAttrsEmptyWithoutFetch(t *testing.T) {
	inst := NewInstance(NewServerPage(), "plain")
	if attrs := inst.Attrs(); len(attrs) != 0 {
		t.Errorf("Attrs() = %v, want empty", attrs)
	}
}

func TestFetchStatusCoder(t *testing.T) {
	p := NewServerPage()
	inst := NewInstance(p, "post")
	f := UseFetch(inst, func(ctx context.Context, _ *Instance) error {
		return notFound{}
	})
	p.Prefetch(context.Background())

	if got := f.State().Error; got == nil || got.StatusCode != 404 {
		t.Errorf("Error = %+v, want status 404", got)
	}
}

func TestFetchPanicIsCaptured(t *testing.T) {
	p := NewServerPage()
	inst := NewInstance(p, "post")
	f := UseFetch(inst, func(ctx context.Context, _ *Instance) error {
		panic("bad")
	})
	p.Prefetch(context.Background())

	if got := f.State().Error; got == nil || got.StatusCode != 500 {
		t.Errorf("Error = %+v, want 500", got)
	}
}

func TestUseFetchNilPanics(t *testing.T) {
	defer func() {
		err, _ := recover().(error)
		if !errors.Is(err, ErrInvalidHandler) {
			t.Errorf("recover() = %v, want ErrInvalidHandler", err)
		}
	}()
	UseFetch(NewInstance(NewServerPage(), "x"), nil)
}

// serverFetchState renders an instance exposing title on the server and
// returns the state a client would receive.
func serverFetchState(t *testing.T, fail bool) *State {
	t.Helper()
	p := NewServerPage()
	inst := NewInstance(p, "post")
	var title string
	inst.Expose("title", &title)
	UseFetch(inst, func(ctx context.Context, _ *Instance) error {
		if fail {
			return notFound{}
		}
		title = "from server"
		return nil
	})
	p.Prefetch(context.Background())
	return roundTrip(t, p).snap.state
}

func TestHydratingClientMergesSnapshot(t *testing.T) {
	client := NewClientPage(serverFetchState(t, false))
	inst := NewInstance(client, "post", Hydrating(0))

	var title string
	inst.Expose("title", &title)
	var calls atomic.Int32
	f := UseFetch(inst, func(ctx context.Context, _ *Instance) error {
		calls.Add(1)
		return nil
	})

	if f.Status() != FetchHydrating {
		t.Errorf("Status() before mount = %v, want %v", f.Status(), FetchHydrating)
	}
	inst.Mount(context.Background())

	if title != "from server" {
		t.Errorf("title = %q, want from server", title)
	}
	if calls.Load() != 0 {
		t.Errorf("callbacks ran %d times during hydration, want 0", calls.Load())
	}
	if !f.Hydrated() || f.Status() != FetchIdle {
		t.Errorf("Hydrated() = %v, Status() = %v; want true, idle", f.Hydrated(), f.Status())
	}
	if len(inst.Warnings()) != 0 {
		t.Errorf("Warnings() = %v, want none", inst.Warnings())
	}
}

func TestHydratingClientFromMarkers(t *testing.T) {
	client := NewClientPage(serverFetchState(t, false), WithMarkers(map[string]int{"post": 0}))
	inst := NewInstance(client, "post", FromMarkers())
	if !inst.IsHydrating() {
		t.Fatal("IsHydrating() = false, want true")
	}
	other := NewInstance(client, "sidebar", FromMarkers())
	if other.IsHydrating() {
		t.Error("instance without marker is hydrating")
	}
}

func TestHydratingClientErrorMarker(t *testing.T) {
	client := NewClientPage(serverFetchState(t, true))
	inst := NewInstance(client, "post", Hydrating(0))
	var calls atomic.Int32
	f := UseFetch(inst, func(ctx context.Context, _ *Instance) error {
		calls.Add(1)
		return nil
	})
	inst.Mount(context.Background())

	st := f.State()
	if st.Error == nil || st.Error.StatusCode != 404 || st.Error.Message != "no such post" {
		t.Errorf("Error = %+v, want {404 no such post}", st.Error)
	}
	if calls.Load() != 0 {
		t.Error("callbacks ran for an errored snapshot entry")
	}
}

func TestHydrationMismatchWarnings(t *testing.T) {
	client := NewClientPage(serverFetchState(t, false), WithConfig(Config{Dev: true}))
	inst := NewInstance(client, "post", Hydrating(0))
	var title int
	inst.Expose("title", &title)
	UseFetch(inst, func(ctx context.Context, _ *Instance) error { return nil })
	inst.Mount(context.Background())

	warnings := inst.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("len(Warnings()) = %d, want 1", len(warnings))
	}
	if !errors.Is(warnings[0], ErrHydrationMismatch) || warnings[0].Field != "title" {
		t.Errorf("warning = %v, want mismatch on title", warnings[0])
	}
}

func TestMissingSnapshotEntryFetchesOnMount(t *testing.T) {
	client := NewClientPage(&State{})
	inst := NewInstance(client, "post", Hydrating(5))
	var calls atomic.Int32
	f := UseFetch(inst, func(ctx context.Context, _ *Instance) error {
		calls.Add(1)
		return nil
	})
	inst.Mount(context.Background())

	if calls.Load() != 1 || f.Hydrated() {
		t.Errorf("calls = %d, Hydrated() = %v; want 1, false", calls.Load(), f.Hydrated())
	}
}

func TestClientNavigationFetchesOnMount(t *testing.T) {
	client := NewClientPage(nil)
	inst := NewInstance(client, "post", Hydrating(0))
	if inst.IsHydrating() {
		t.Error("instance hydrating on a page without state")
	}
	var calls atomic.Int32
	f := UseFetch(inst, func(ctx context.Context, _ *Instance) error {
		calls.Add(1)
		return nil
	})
	if f.Status() != FetchPendingClient {
		t.Errorf("Status() = %v, want %v", f.Status(), FetchPendingClient)
	}
	inst.Mount(context.Background())
	inst.Mount(context.Background())

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if f.Status() != FetchIdle || f.State().Pending {
		t.Errorf("Status() = %v, Pending = %v; want idle, false", f.Status(), f.State().Pending)
	}
}

func TestRefreshIsRepeatable(t *testing.T) {
	client := NewClientPage(nil)
	inst := NewInstance(client, "post")
	var calls atomic.Int32
	f := UseFetch(inst, func(ctx context.Context, _ *Instance) error {
		calls.Add(1)
		return nil
	})
	inst.Mount(context.Background())

	for n := 0; n < 3; n++ {
		f.Refresh(context.Background())
		if f.State().Pending {
			t.Fatalf("Pending = true after Refresh %d", n)
		}
	}
	inst.Navigate(context.Background())
	if calls.Load() != 5 {
		t.Errorf("calls = %d, want 5", calls.Load())
	}
}

func TestRefreshClearsPreviousError(t *testing.T) {
	client := NewClientPage(nil)
	inst := NewInstance(client, "post")
	var fail atomic.Bool
	fail.Store(true)
	f := UseFetch(inst, func(ctx context.Context, _ *Instance) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	})
	inst.Mount(context.Background())
	if f.State().Error == nil {
		t.Fatal("Error = nil after failing mount")
	}

	fail.Store(false)
	f.Refresh(context.Background())
	if f.State().Error != nil || f.Status() != FetchIdle {
		t.Errorf("Error = %v, Status() = %v; want nil, idle", f.State().Error, f.Status())
	}
}

func TestOverlappingRefreshKeepsLatestResult(t *testing.T) {
	client := NewClientPage(nil)
	inst := NewInstance(client, "post")
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	f := UseFetch(inst, func(ctx context.Context, _ *Instance) error {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return errors.New("stale")
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Refresh(context.Background())
	}()
	<-started

	f.Refresh(context.Background())
	if st := f.State(); st.Pending || st.Error != nil {
		t.Errorf("after second Refresh: Pending = %v, Error = %v; want false, nil", st.Pending, st.Error)
	}

	close(release)
	<-done
	if st := f.State(); st.Error != nil || f.Status() != FetchIdle {
		t.Errorf("after first Refresh settled: Error = %v, Status() = %v; want nil, idle", st.Error, f.Status())
	}
}

func TestConcurrentFetchWritesKeepEffects(t *testing.T) {
	client := NewClientPage(nil)
	inst := NewInstance(client, "post")
	title := NewRef(client, "", "title")
	body := NewRef(client, "", "body")

	var titleRuns, bodyRuns atomic.Int32
	client.Effect(func() {
		title.Get()
		titleRuns.Add(1)
		time.Sleep(5 * time.Millisecond)
	})
	client.Effect(func() {
		body.Get()
		bodyRuns.Add(1)
		time.Sleep(20 * time.Millisecond)
	})

	UseFetch(inst, func(ctx context.Context, _ *Instance) error {
		title.Set("hello")
		return nil
	})
	UseFetch(inst, func(ctx context.Context, _ *Instance) error {
		body.Set("world")
		return nil
	})
	inst.Mount(context.Background())

	titleRuns.Store(0)
	bodyRuns.Store(0)
	title.Set("changed")
	if a, b := titleRuns.Load(), bodyRuns.Load(); a != 1 || b != 0 {
		t.Errorf("after title.Set runs = title %d, body %d; want 1, 0", a, b)
	}
}

func TestUnmountDropsFetch(t *testing.T) {
	client := NewClientPage(nil)
	inst := NewInstance(client, "post")
	release := make(chan struct{})
	var calls atomic.Int32
	f := UseFetch(inst, func(ctx context.Context, _ *Instance) error {
		calls.Add(1)
		<-release
		return errors.New("late")
	})

	done := make(chan struct{})
	go func() {
		inst.Mount(context.Background())
		close(done)
	}()
	for client.Fetching() == 0 {
		time.Sleep(time.Millisecond)
	}
	inst.Unmount()
	close(release)
	<-done

	if f.State().Error != nil {
		t.Errorf("Error = %v, want in-flight result ignored", f.State().Error)
	}
	f.Refresh(context.Background())
	if calls.Load() != 1 {
		t.Errorf("calls = %d after unmount, want 1", calls.Load())
	}
}

func TestFetchDelay(t *testing.T) {
	client := NewClientPage(nil, WithConfig(Config{FetchDelay: 30 * time.Millisecond}))
	inst := NewInstance(client, "post")
	f := UseFetch(inst, func(ctx context.Context, _ *Instance) error { return nil })

	start := time.Now()
	inst.Mount(context.Background())
	if el := time.Since(start); el < 30*time.Millisecond {
		t.Errorf("mount took %v, want at least 30ms", el)
	}

	f.Delay(0)
	start = time.Now()
	f.Refresh(context.Background())
	if el := time.Since(start); el >= 30*time.Millisecond {
		t.Errorf("refresh took %v with no delay", el)
	}
}

func TestServerIgnoresFetchDelay(t *testing.T) {
	p := NewServerPage(WithConfig(Config{FetchDelay: time.Second}))
	inst := NewInstance(p, "post")
	UseFetch(inst, func(ctx context.Context, _ *Instance) error { return nil })

	start := time.Now()
	p.Prefetch(context.Background())
	if el := time.Since(start); el >= time.Second {
		t.Errorf("prefetch took %v, want no delay", el)
	}
}

func TestFetchStateIsReactive(t *testing.T) {
	client := NewClientPage(nil)
	inst := NewInstance(client, "post")
	f := UseFetch(inst, func(ctx context.Context, _ *Instance) error { return nil })

	var seen []bool
	e := client.Effect(func() { seen = append(seen, f.State().Pending) })
	defer e.Stop()
	inst.Mount(context.Background())

	if len(seen) < 3 || seen[len(seen)-1] {
		t.Errorf("observed pending = %v, want false, true, false", seen)
	}
}

func TestFetchStatusString(t *testing.T) {
	tests := []struct {
		s    FetchStatus
		want string
	}{
		{FetchUninitialized, "uninitialized"},
		{FetchHydrating, "hydratingFromSnapshot"},
		{FetchErrored, "errored"},
		{FetchStatus(42), "FetchStatus(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
