package hxstate

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// FetchFunc loads data for an instance, typically by setting its exposed
// refs. Errors are captured in FetchState, never returned to callers of the
// lifecycle hooks.
type FetchFunc func(ctx context.Context, inst *Instance) error

// FetchStatus is the state of an instance's fetch controller.
type FetchStatus int

const (
	FetchUninitialized FetchStatus = iota
	FetchPendingServer
	FetchPendingClient
	FetchHydrating
	FetchIdle
	FetchRefreshing
	FetchErrored
)

var fetchStatusNames = [...]string{
	FetchUninitialized: "uninitialized",
	FetchPendingServer: "pendingServerFetch",
	FetchPendingClient: "pendingClientFetch",
	FetchHydrating:     "hydratingFromSnapshot",
	FetchIdle:          "idle",
	FetchRefreshing:    "refreshing",
	FetchErrored:       "errored",
}

func (s FetchStatus) String() string {
	if int(s) < len(fetchStatusNames) {
		return fetchStatusNames[s]
	}
	return fmt.Sprintf("FetchStatus(%d)", int(s))
}

// FetchState is the observable state of an instance's fetches.
type FetchState struct {
	Pending   bool
	Error     *ErrorInfo
	Timestamp time.Time
}

// Fetch is the data-fetch lifecycle controller of one instance.
type Fetch struct {
	inst *Instance
	dep  dep

	mu        sync.Mutex
	callbacks []FetchFunc
	state     FetchState
	status    FetchStatus
	delay     time.Duration
	hydrated  bool
	torn      bool
	gen       uint64
}

// UseFetch registers cb as a fetch callback of inst and returns the
// instance's controller. Callbacks accumulate; all of them run together.
//
// On a server page the callbacks run during Page.Prefetch and the result
// (the instance's exposed data, or an error marker) is appended to the
// embedded fetch array. On a hydrating client instance they are skipped and
// the snapshot entry is merged on Mount instead. Otherwise they run on
// Mount and again on every Refresh.
//
// UseFetch panics with ErrInvalidHandler if cb is nil.
func UseFetch(inst *Instance, cb FetchFunc) *Fetch {
	if cb == nil {
		panic(fmt.Errorf("%w: fetch callback is nil", ErrInvalidHandler))
	}
	inst.mu.Lock()
	f := inst.fetch
	created := f == nil
	if created {
		f = &Fetch{inst: inst}
		inst.fetch = f
	}
	inst.mu.Unlock()

	f.mu.Lock()
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()

	if created {
		f.init()
	}
	return f
}

func (f *Fetch) init() {
	p := f.inst.page
	if !p.IsServer() {
		f.delay = p.cfg.FetchDelay
	}

	switch {
	case p.IsServer():
		f.status = FetchPendingServer
		OnServerPrefetch(p, f.serverPrefetch)

	case f.inst.hydrating:
		entry, errInfo, ok := p.snap.fetchEntry(f.inst.markerKey)
		if !ok {
			f.status = FetchPendingClient
			f.inst.OnBeforeMount(f.mount)
			return
		}
		f.hydrated = true
		if errInfo != nil {
			f.state.Error = errInfo
			f.status = FetchErrored
			return
		}
		f.status = FetchHydrating
		f.inst.OnBeforeMount(func(ctx context.Context) {
			f.inst.merge(entry)
			f.mu.Lock()
			if f.status == FetchHydrating {
				f.status = FetchIdle
			}
			f.mu.Unlock()
			f.dep.notify()
		})

	default:
		f.status = FetchPendingClient
		f.inst.OnBeforeMount(f.mount)
	}
}

// Delay sets the minimum time a client fetch stays pending, overriding
// Config.FetchDelay.
func (f *Fetch) Delay(d time.Duration) *Fetch {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
	return f
}

// State returns a copy of the fetch state and tracks it as a reactive
// dependency.
func (f *Fetch) State() FetchState {
	f.inst.page.track.depend(&f.dep)
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.state
	if s.Error != nil {
		e := *s.Error
		s.Error = &e
	}
	return s
}

// Status returns the controller state.
func (f *Fetch) Status() FetchStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Hydrated reports whether the instance took its data from the snapshot.
func (f *Fetch) Hydrated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hydrated
}

// Refresh runs every registered callback again. It can be called any number
// of times; FetchState is not pending when it returns.
func (f *Fetch) Refresh(ctx context.Context) {
	f.run(ctx)
}

func (f *Fetch) mount(ctx context.Context) {
	f.mu.Lock()
	hydrated := f.hydrated
	f.mu.Unlock()
	if !hydrated {
		f.run(ctx)
	}
}

func (f *Fetch) serverPrefetch(ctx context.Context) {
	f.run(ctx)

	f.mu.Lock()
	if f.torn {
		f.mu.Unlock()
		return
	}
	errInfo := f.state.Error
	f.mu.Unlock()

	var entry any
	if errInfo != nil {
		entry = map[string]any{"_error": *errInfo}
	} else {
		data, err := f.inst.Data()
		if err != nil {
			entry = map[string]any{"_error": *NormalizeError(err)}
		} else {
			entry = data
		}
	}
	clean, err := sanitize(entry)
	if err != nil {
		clean = map[string]any{"_error": map[string]any{"statusCode": 500, "message": err.Error()}}
	}
	f.inst.setFetchKey(f.inst.page.pushFetch(clean))
}

// run calls all callbacks concurrently and waits for every one to settle.
// The first failure in registration order becomes FetchState.Error.
func (f *Fetch) run(ctx context.Context) {
	f.mu.Lock()
	if f.torn {
		f.mu.Unlock()
		return
	}
	callbacks := slices.Clone(f.callbacks)
	// Only the latest run commits; an overlapped run settles silently.
	f.gen++
	gen := f.gen
	delay := f.delay
	f.state.Pending = true
	f.state.Error = nil
	if f.status == FetchIdle || f.status == FetchErrored || f.status == FetchHydrating {
		f.status = FetchRefreshing
	}
	f.hydrated = false
	f.mu.Unlock()
	f.dep.notify()

	page := f.inst.page
	page.fetching.Add(1)
	defer page.fetching.Add(-1)

	start := time.Now()
	errs := make([]error, len(callbacks))
	var wg sync.WaitGroup
	for n, cb := range callbacks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[n] = fmt.Errorf("fetch panicked: %v", r)
				}
			}()
			errs[n] = cb(ctx, f.inst)
		}()
	}
	wg.Wait()

	var first error
	for _, err := range errs {
		if err != nil {
			first = err
			break
		}
	}
	if first != nil {
		page.log.Debug("fetch failed", "instance", f.inst.key, "error", first)
	}

	if left := delay - time.Since(start); left > 0 {
		t := time.NewTimer(left)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	f.mu.Lock()
	if f.torn || f.gen != gen {
		f.mu.Unlock()
		return
	}
	f.state.Error = NormalizeError(first)
	f.state.Pending = false
	f.state.Timestamp = time.Now()
	if first != nil {
		f.status = FetchErrored
	} else {
		f.status = FetchIdle
	}
	f.mu.Unlock()
	f.dep.notify()
}

func (f *Fetch) teardown() {
	f.mu.Lock()
	f.torn = true
	f.callbacks = nil
	f.gen++
	f.mu.Unlock()
}
