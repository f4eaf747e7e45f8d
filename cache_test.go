package typedcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	st "github.com/unkn0wn-root/typedcache/store"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

// memStore is an in-test store with error injection. honorTTL=false
// mimics stores that cannot enforce per-entry TTLs (the envelope
// deadline is then the only expiry).
type memStore struct {
	mu        sync.Mutex
	m         map[string]memEntry
	honorTTL  bool
	rejectSet bool

	errGet   error
	errSet   error
	errDel   error
	errFlush error

	sets int
}

var _ st.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{m: make(map[string]memEntry), honorTTL: true}
}

func (p *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errGet != nil {
		return nil, false, p.errGet
	}
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if p.honorTTL && !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memStore) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errSet != nil {
		return false, p.errSet
	}
	if p.rejectSet {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.m[key] = memEntry{v: value, exp: exp}
	p.sets++
	return true, nil
}

func (p *memStore) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errDel != nil {
		return p.errDel
	}
	delete(p.m, key)
	return nil
}

func (p *memStore) Flush(_ context.Context, prefix string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errFlush != nil {
		return p.errFlush
	}
	for k := range p.m {
		if strings.HasPrefix(k, prefix) {
			delete(p.m, k)
		}
	}
	return nil
}

func (p *memStore) Ping(context.Context) error  { return nil }
func (p *memStore) Close(context.Context) error { return nil }

func (p *memStore) setCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sets
}

func (p *memStore) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

func (p *memStore) has(storageKey string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[storageKey]
	return ok
}

func (p *memStore) inject(storageKey string, raw []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[storageKey] = memEntry{v: raw}
}

func (p *memStore) fail(get, set, del, flush error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errGet, p.errSet, p.errDel, p.errFlush = get, set, del, flush
}

// recordingHooks captures hook events for assertions.
type recordingHooks struct {
	mu        sync.Mutex
	selfHeals []string
	rejected  []string
	shared    int
	loadErrs  []error
	discards  []string
	epochErrs []string
}

var _ Hooks = (*recordingHooks)(nil)

func (h *recordingHooks) SelfHeal(_, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selfHeals = append(h.selfHeals, reason)
}

func (h *recordingHooks) StoreSetRejected(k string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejected = append(h.rejected, k)
}

func (h *recordingHooks) LoadShared(string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shared++
}

func (h *recordingHooks) LoadError(_ string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loadErrs = append(h.loadErrs, err)
}

func (h *recordingHooks) LoadDiscarded(_, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.discards = append(h.discards, reason)
}

func (h *recordingHooks) EpochError(op string, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.epochErrs = append(h.epochErrs, op)
}

func (h *recordingHooks) healReasons() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.selfHeals...)
}

func (h *recordingHooks) discardReasons() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.discards...)
}

type user struct {
	ID   string `msgpack:"id"`
	Name string `msgpack:"name"`
}

func newTestCache(t *testing.T, ns string, ms st.Store, optsOpt func(*Options)) *Cache {
	t.Helper()
	opts := Options{
		Namespace: ns,
		Store:     ms,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cc
}

// ==============================
// Construction
// ==============================

func TestOptionsValidation(t *testing.T) {
	if _, err := New(Options{Namespace: "user"}); err == nil {
		t.Fatal("New without store should fail")
	}
	if _, err := New(Options{Store: newMemStore()}); err == nil {
		t.Fatal("New without namespace should fail")
	}
}

// ==============================
// Typed round trips
// ==============================

// TestSetGetRoundTrip verifies read-your-writes across the kinds the
// cache stores, including records and lists.
func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "vals", newMemStore(), nil)
	defer cc.Close(ctx)

	t.Run("string", func(t *testing.T) {
		if err := cc.Set(ctx, "s", "héllo"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, ok, err := Get[string](ctx, cc, "s")
		if err != nil || !ok || v != "héllo" {
			t.Fatalf("Get = (%q, %v, %v)", v, ok, err)
		}
	})

	t.Run("rune", func(t *testing.T) {
		if err := cc.Set(ctx, "r", '世'); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, ok, err := Get[rune](ctx, cc, "r")
		if err != nil || !ok || v != '世' {
			t.Fatalf("Get = (%q, %v, %v)", v, ok, err)
		}
	})

	t.Run("int64", func(t *testing.T) {
		if err := cc.Set(ctx, "n", int64(-7)); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, ok, err := Get[int64](ctx, cc, "n")
		if err != nil || !ok || v != -7 {
			t.Fatalf("Get = (%d, %v, %v)", v, ok, err)
		}
	})

	t.Run("float64", func(t *testing.T) {
		if err := cc.Set(ctx, "f", 2.5); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, ok, err := Get[float64](ctx, cc, "f")
		if err != nil || !ok || v != 2.5 {
			t.Fatalf("Get = (%v, %v, %v)", v, ok, err)
		}
	})

	t.Run("time", func(t *testing.T) {
		want := time.Date(2024, 6, 1, 12, 0, 0, 987654321, time.UTC)
		if err := cc.Set(ctx, "t", want); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, ok, err := Get[time.Time](ctx, cc, "t")
		if err != nil || !ok || !v.Equal(want) {
			t.Fatalf("Get = (%v, %v, %v)", v, ok, err)
		}
	})

	t.Run("record", func(t *testing.T) {
		want := user{ID: "1", Name: "Ada"}
		if err := cc.Set(ctx, "u", want); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, ok, err := Get[user](ctx, cc, "u")
		if err != nil || !ok || v != want {
			t.Fatalf("Get = (%+v, %v, %v)", v, ok, err)
		}
	})

	t.Run("list", func(t *testing.T) {
		want := []string{"a", "b"}
		if err := cc.Set(ctx, "l", want); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, ok, err := Get[[]string](ctx, cc, "l")
		if err != nil || !ok || len(v) != 2 || v[0] != "a" || v[1] != "b" {
			t.Fatalf("Get = (%v, %v, %v)", v, ok, err)
		}
	})
}

func TestGetMissIsNotAnError(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "vals", newMemStore(), nil)
	defer cc.Close(ctx)

	v, ok, err := Get[string](ctx, cc, "absent")
	if err != nil || ok || v != "" {
		t.Fatalf("Get(absent) = (%q, %v, %v), want clean miss", v, ok, err)
	}
}

// TestKindMismatch verifies that reading a key with the wrong type is a
// miss and the entry survives for readers of the right type.
func TestKindMismatch(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "vals", newMemStore(), nil)
	defer cc.Close(ctx)

	if err := cc.Set(ctx, "k", "a string"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, ok, err := Get[int64](ctx, cc, "k"); err != nil || ok {
		t.Fatalf("Get[int64] on string entry = (ok=%v, err=%v), want miss", ok, err)
	}

	// the mismatch must not self-heal the entry away
	v, ok, err := Get[string](ctx, cc, "k")
	if err != nil || !ok || v != "a string" {
		t.Fatalf("entry should survive a mismatched read, got (%q, %v, %v)", v, ok, err)
	}
}

// ==============================
// Nulls
// ==============================

func TestStoredNull(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	cc := newTestCache(t, "vals", ms, nil)
	defer cc.Close(ctx)

	if err := cc.Set(ctx, "gone", nil); err != nil {
		t.Fatalf("Set(nil): %v", err)
	}

	// Get misses; Exists still sees the entry.
	if _, ok, err := Get[string](ctx, cc, "gone"); err != nil || ok {
		t.Fatalf("Get on null = (ok=%v, err=%v), want miss", ok, err)
	}
	if ok, err := cc.Exists(ctx, "gone"); err != nil || !ok {
		t.Fatalf("Exists on null = (%v, %v), want (true, nil)", ok, err)
	}

	// GetOrElse treats the null as a hit and skips the loader.
	ran := false
	v, err := GetOrElse(ctx, cc, "gone", func(context.Context) (*user, error) {
		ran = true
		return &user{ID: "x"}, nil
	})
	if err != nil || v != nil {
		t.Fatalf("GetOrElse on null = (%v, %v), want (nil, nil)", v, err)
	}
	if ran {
		t.Fatal("loader must not run for a cached null")
	}
}

// ==============================
// Remove / Exists / Clear
// ==============================

func TestRemove(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "vals", newMemStore(), nil)
	defer cc.Close(ctx)

	if err := cc.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cc.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := Get[string](ctx, cc, "k"); ok {
		t.Fatal("removed key should miss")
	}
	if err := cc.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove(absent) = %v, want nil", err)
	}
}

func TestClearIsNamespaceScoped(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	users := newTestCache(t, "user", ms, nil)
	orders := newTestCache(t, "order", ms, nil)

	if err := users.Set(ctx, "1", "u"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := orders.Set(ctx, "1", "o"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := users.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if _, ok, _ := Get[string](ctx, users, "1"); ok {
		t.Fatal("cleared namespace should be empty")
	}
	if v, ok, _ := Get[string](ctx, orders, "1"); !ok || v != "o" {
		t.Fatal("Clear must not touch other namespaces")
	}
}

// ==============================
// Self-heal (corruption/expiry)
// ==============================

// TestSelfHealOnCorrupt ensures corrupt store bytes are deleted and
// missed rather than surfaced as errors.
func TestSelfHealOnCorrupt(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	hooks := &recordingHooks{}
	cc := newTestCache(t, "user", ms, func(o *Options) { o.Hooks = hooks })
	defer cc.Close(ctx)

	sk := cc.storageKey("bad")
	ms.inject(sk, []byte("not-an-envelope"))

	if _, ok, err := Get[string](ctx, cc, "bad"); err != nil || ok {
		t.Fatalf("Get on corrupt should miss, ok=%v err=%v", ok, err)
	}
	if ms.has(sk) {
		t.Fatal("corrupt entry was not deleted by self-heal")
	}
	if got := hooks.healReasons(); len(got) != 1 || got[0] != "corrupt" {
		t.Fatalf("self-heal reasons = %v, want [corrupt]", got)
	}
}

// TestEnvelopeExpiry verifies the cache enforces TTLs itself when the
// store cannot: the entry's deadline lives in the envelope.
func TestEnvelopeExpiry(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	ms.honorTTL = false // the store ignores TTLs entirely
	hooks := &recordingHooks{}
	cc := newTestCache(t, "user", ms, func(o *Options) { o.Hooks = hooks })
	defer cc.Close(ctx)

	if err := cc.SetTTL(ctx, "k", "v", 50*time.Millisecond); err != nil {
		t.Fatalf("SetTTL: %v", err)
	}
	if _, ok, _ := Get[string](ctx, cc, "k"); !ok {
		t.Fatal("fresh entry should hit")
	}

	time.Sleep(80 * time.Millisecond)

	if _, ok, err := Get[string](ctx, cc, "k"); err != nil || ok {
		t.Fatalf("expired entry should miss, ok=%v err=%v", ok, err)
	}
	if ms.has(cc.storageKey("k")) {
		t.Fatal("expired entry was not deleted by self-heal")
	}
	if got := hooks.healReasons(); len(got) != 1 || got[0] != "expired" {
		t.Fatalf("self-heal reasons = %v, want [expired]", got)
	}

	// ttl <= 0 means no deadline at all
	if err := cc.SetTTL(ctx, "forever", "v", 0); err != nil {
		t.Fatalf("SetTTL: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok, _ := Get[string](ctx, cc, "forever"); !ok {
		t.Fatal("ttl 0 entry should never expire")
	}
}

// ==============================
// Store failures
// ==============================

// TestStoreErrorsAreDistinctFromMisses exercises the error path of
// every operation: a failing store surfaces *StoreError, never a miss.
func TestStoreErrorsAreDistinctFromMisses(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	cc := newTestCache(t, "user", ms, nil)
	defer cc.Close(ctx)

	boom := errors.New("connection refused")
	ms.fail(boom, boom, boom, boom)

	_, ok, err := Get[string](ctx, cc, "k")
	if ok {
		t.Fatal("errored Get must not report a hit")
	}
	var se *StoreError
	if !errors.As(err, &se) || se.Op != "get" || !errors.Is(err, boom) {
		t.Fatalf("Get error = %v, want *StoreError wrapping the cause", err)
	}

	if err := cc.Set(ctx, "k", "v"); !IsStoreError(err) {
		t.Fatalf("Set error = %v, want StoreError", err)
	}
	if err := cc.Remove(ctx, "k"); !IsStoreError(err) {
		t.Fatalf("Remove error = %v, want StoreError", err)
	}
	if _, err := cc.Exists(ctx, "k"); !IsStoreError(err) {
		t.Fatalf("Exists error = %v, want StoreError", err)
	}
	if err := cc.Clear(ctx); !IsStoreError(err) {
		t.Fatalf("Clear error = %v, want StoreError", err)
	}

	// GetOrElse propagates the error instead of running the loader
	_, err = GetOrElse(ctx, cc, "k", func(context.Context) (string, error) {
		t.Fatal("loader must not run when the store errors")
		return "", nil
	})
	if !IsStoreError(err) {
		t.Fatalf("GetOrElse error = %v, want StoreError", err)
	}

	// recovery: the same cache works once the store does
	ms.fail(nil, nil, nil, nil)
	if err := cc.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set after recovery: %v", err)
	}
	if _, ok, err := Get[string](ctx, cc, "k"); err != nil || !ok {
		t.Fatalf("Get after recovery = (ok=%v, err=%v)", ok, err)
	}
}

func TestStoreSetRejectedHook(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	ms.rejectSet = true
	hooks := &recordingHooks{}
	cc := newTestCache(t, "user", ms, func(o *Options) { o.Hooks = hooks })
	defer cc.Close(ctx)

	// a rejected write is not an error; the hook observes it
	if err := cc.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	hooks.mu.Lock()
	n := len(hooks.rejected)
	hooks.mu.Unlock()
	if n != 1 {
		t.Fatalf("StoreSetRejected fired %d times, want 1", n)
	}
}

// ==============================
// Load coalescing
// ==============================

// TestGetOrElseComputesOnce runs many concurrent callers against one
// cold key; exactly one loader execution serves them all.
func TestGetOrElseComputesOnce(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	hooks := &recordingHooks{}
	cc := newTestCache(t, "user", ms, func(o *Options) { o.Hooks = hooks })
	defer cc.Close(ctx)

	const callers = 32
	var calls atomic.Int32
	release := make(chan struct{})

	loader := func(context.Context) (user, error) {
		calls.Add(1)
		<-release
		return user{ID: "1", Name: "Ada"}, nil
	}

	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	results := make([]user, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			results[i], errs[i] = GetOrElse(ctx, cc, "u:1", loader)
		}(i)
	}

	started.Wait()
	time.Sleep(100 * time.Millisecond) // let every caller reach the flight
	close(release)
	done.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader ran %d times, want 1", got)
	}
	for i := range results {
		if errs[i] != nil || results[i] != (user{ID: "1", Name: "Ada"}) {
			t.Fatalf("caller %d got (%+v, %v)", i, results[i], errs[i])
		}
	}
	if ms.setCount() != 1 {
		t.Fatalf("store saw %d writes, want 1", ms.setCount())
	}

	// follow-up calls are plain hits
	v, err := GetOrElse(ctx, cc, "u:1", loader)
	if err != nil || v.Name != "Ada" {
		t.Fatalf("GetOrElse after fill = (%+v, %v)", v, err)
	}
	if calls.Load() != 1 {
		t.Fatal("loader must not run on a hit")
	}
}

// TestGetOrElseFailureFansOut verifies a failed load: every waiter gets
// the loader's error verbatim, nothing is cached, and the next call
// starts a fresh load.
func TestGetOrElseFailureFansOut(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	cc := newTestCache(t, "user", ms, nil)
	defer cc.Close(ctx)

	sentinel := errors.New("db down")
	const callers = 16
	var calls atomic.Int32
	release := make(chan struct{})

	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			_, errs[i] = GetOrElse(ctx, cc, "u:1", func(context.Context) (user, error) {
				calls.Add(1)
				<-release
				return user{}, sentinel
			})
		}(i)
	}

	started.Wait()
	time.Sleep(100 * time.Millisecond)
	close(release)
	done.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader ran %d times, want 1", got)
	}
	for i, err := range errs {
		if !errors.Is(err, sentinel) {
			t.Fatalf("caller %d error = %v, want the loader's error", i, err)
		}
	}

	// failure caches nothing
	if ms.len() != 0 {
		t.Fatalf("store holds %d entries after a failed load, want 0", ms.len())
	}
	if _, ok, _ := Get[user](ctx, cc, "u:1"); ok {
		t.Fatal("failed load must not populate the cache")
	}

	// a later call is a fresh episode
	v, err := GetOrElse(ctx, cc, "u:1", func(context.Context) (user, error) {
		calls.Add(1)
		return user{ID: "2"}, nil
	})
	if err != nil || v.ID != "2" {
		t.Fatalf("fresh load = (%+v, %v)", v, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("loader calls = %d, want 2 (one failed episode, one fresh)", calls.Load())
	}
}

// TestGetOrElseDistinctKeys ensures coalescing is per key.
func TestGetOrElseDistinctKeys(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "user", newMemStore(), nil)
	defer cc.Close(ctx)

	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(id string) func(context.Context) (user, error) {
		return func(context.Context) (user, error) {
			calls.Add(1)
			<-release
			return user{ID: id}, nil
		}
	}

	var done sync.WaitGroup
	done.Add(2)
	var va, vb user
	go func() { defer done.Done(); va, _ = GetOrElse(ctx, cc, "a", loader("a")) }()
	go func() { defer done.Done(); vb, _ = GetOrElse(ctx, cc, "b", loader("b")) }()

	time.Sleep(100 * time.Millisecond)
	close(release)
	done.Wait()

	if calls.Load() != 2 {
		t.Fatalf("loader ran %d times, want 2 (one per key)", calls.Load())
	}
	if va.ID != "a" || vb.ID != "b" {
		t.Fatalf("results crossed keys: a=%+v b=%+v", va, vb)
	}
}

// TestGetOrElseNullResult caches a loader's nil pointer as a null and
// serves later calls from it.
func TestGetOrElseNullResult(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "user", newMemStore(), nil)
	defer cc.Close(ctx)

	var calls atomic.Int32
	loader := func(context.Context) (*user, error) {
		calls.Add(1)
		return nil, nil
	}

	if v, err := GetOrElse(ctx, cc, "u:404", loader); err != nil || v != nil {
		t.Fatalf("GetOrElse = (%v, %v), want (nil, nil)", v, err)
	}
	if v, err := GetOrElse(ctx, cc, "u:404", loader); err != nil || v != nil {
		t.Fatalf("GetOrElse = (%v, %v), want (nil, nil)", v, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("loader ran %d times, want 1 (null is cached)", calls.Load())
	}
	if ok, _ := cc.Exists(ctx, "u:404"); !ok {
		t.Fatal("cached null should exist")
	}
}

// TestGetOrElseTypeTakeover: a differently-typed entry under the key is
// a miss for the load, and the load's write-back takes the key over.
func TestGetOrElseTypeTakeover(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "user", newMemStore(), nil)
	defer cc.Close(ctx)

	if err := cc.Set(ctx, "k", "a string"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, err := GetOrElse(ctx, cc, "k", func(context.Context) (int64, error) { return 9, nil })
	if err != nil || v != 9 {
		t.Fatalf("GetOrElse = (%d, %v), want (9, nil)", v, err)
	}

	if _, ok, _ := Get[string](ctx, cc, "k"); ok {
		t.Fatal("write-back should have replaced the string entry")
	}
	if n, ok, _ := Get[int64](ctx, cc, "k"); !ok || n != 9 {
		t.Fatalf("Get[int64] = (%d, %v), want (9, true)", n, ok)
	}
}

// TestClearDiscardsInFlightLoad: a load that was computing while Clear
// ran still returns its value to the caller but must not repopulate the
// cache.
func TestClearDiscardsInFlightLoad(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	hooks := &recordingHooks{}
	cc := newTestCache(t, "user", ms, func(o *Options) { o.Hooks = hooks })
	defer cc.Close(ctx)

	entered := make(chan struct{})
	release := make(chan struct{})

	type result struct {
		v   string
		err error
	}
	resCh := make(chan result, 1)

	go func() {
		v, err := GetOrElse(ctx, cc, "k", func(context.Context) (string, error) {
			close(entered)
			<-release
			return "stale", nil
		})
		resCh <- result{v, err}
	}()

	<-entered
	if err := cc.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	close(release)

	res := <-resCh
	if res.err != nil || res.v != "stale" {
		t.Fatalf("in-flight load = (%q, %v), want the computed value", res.v, res.err)
	}

	// but the store stays empty: the epoch moved mid-load
	if ms.len() != 0 {
		t.Fatalf("store holds %d entries, want 0 (stale load must not be cached)", ms.len())
	}
	if got := hooks.discardReasons(); len(got) != 1 || got[0] != "epoch_moved" {
		t.Fatalf("discard reasons = %v, want [epoch_moved]", got)
	}

	// the next load is fresh and caches normally
	v, err := GetOrElse(ctx, cc, "k", func(context.Context) (string, error) { return "fresh", nil })
	if err != nil || v != "fresh" {
		t.Fatalf("post-clear load = (%q, %v)", v, err)
	}
	if v, ok, _ := Get[string](ctx, cc, "k"); !ok || v != "fresh" {
		t.Fatalf("post-clear entry = (%q, %v), want (fresh, true)", v, ok)
	}
}

// TestGetDoesNotBlockOnPendingLoad: a plain Get issued while a load is
// computing answers from the store immediately instead of joining the
// flight.
func TestGetDoesNotBlockOnPendingLoad(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "user", newMemStore(), nil)
	defer cc.Close(ctx)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = GetOrElse(ctx, cc, "k", func(context.Context) (string, error) {
			close(entered)
			<-release
			return "v", nil
		})
	}()

	<-entered
	// the loader is still blocked; Get must return a miss right now
	if _, ok, err := Get[string](ctx, cc, "k"); err != nil || ok {
		t.Fatalf("Get during pending load = (ok=%v, err=%v), want miss", ok, err)
	}
	close(release)
	<-done

	if v, ok, _ := Get[string](ctx, cc, "k"); !ok || v != "v" {
		t.Fatalf("Get after load = (%q, %v), want (v, true)", v, ok)
	}
}

// TestLoaderOutlivesCaller: the loader's context survives the caller
// canceling; the computation runs to completion and is cached.
func TestLoaderOutlivesCaller(t *testing.T) {
	ms := newMemStore()
	cc := newTestCache(t, "user", ms, nil)
	defer cc.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())

	v, err := GetOrElse(ctx, cc, "k", func(lctx context.Context) (string, error) {
		cancel() // the triggering caller gives up mid-load
		if lctx.Err() != nil {
			return "", lctx.Err()
		}
		return "done", nil
	})
	if err != nil || v != "done" {
		t.Fatalf("GetOrElse = (%q, %v), want (done, nil)", v, err)
	}
	if _, ok, _ := Get[string](context.Background(), cc, "k"); !ok {
		t.Fatal("completed load should be cached despite the canceled caller")
	}
}

// ==============================
// Disabled cache
// ==============================

func TestDisabledCache(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	cc := newTestCache(t, "user", ms, func(o *Options) { o.Disabled = true })
	defer cc.Close(ctx)

	if cc.Enabled() {
		t.Fatal("Enabled() = true, want false")
	}
	if err := cc.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, err := Get[string](ctx, cc, "k"); err != nil || ok {
		t.Fatal("disabled cache should always miss")
	}
	if ok, err := cc.Exists(ctx, "k"); err != nil || ok {
		t.Fatal("disabled cache reports nothing")
	}

	// GetOrElse degrades to calling the loader every time
	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		v, err := GetOrElse(ctx, cc, "k", func(context.Context) (string, error) {
			calls.Add(1)
			return "computed", nil
		})
		if err != nil || v != "computed" {
			t.Fatalf("GetOrElse = (%q, %v)", v, err)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("loader ran %d times, want 3", calls.Load())
	}
	if ms.setCount() != 0 {
		t.Fatal("disabled cache must not touch the store")
	}
}

// ==============================
// Keys and namespaces
// ==============================

func TestNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	users := newTestCache(t, "user", ms, nil)
	orders := newTestCache(t, "order", ms, nil)

	if err := users.Set(ctx, "1", "u"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := orders.Set(ctx, "1", "o"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	u, _, _ := Get[string](ctx, users, "1")
	o, _, _ := Get[string](ctx, orders, "1")
	if u != "u" || o != "o" {
		t.Fatalf("namespaces crossed: user=%q order=%q", u, o)
	}
}

func TestLongKeysRoundTrip(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	cc := newTestCache(t, "user", ms, nil)
	defer cc.Close(ctx)

	long := strings.Repeat("k", 4096)
	if err := cc.Set(ctx, long, "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := Get[string](ctx, cc, long)
	if err != nil || !ok || v != "v" {
		t.Fatalf("Get = (%q, %v, %v)", v, ok, err)
	}

	// the storage key is bounded regardless of the user key's length
	sk := cc.storageKey(long)
	if len(sk) > 64 {
		t.Fatalf("storage key is %d bytes, want a bounded hash form", len(sk))
	}
}

// ==============================
// Typed view
// ==============================

func TestTypedView(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "user", newMemStore(), nil)
	defer cc.Close(ctx)

	users := View[user](cc)

	if err := users.Set(ctx, "1", user{ID: "1", Name: "Ada"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := users.Get(ctx, "1")
	if err != nil || !ok || v.Name != "Ada" {
		t.Fatalf("Get = (%+v, %v, %v)", v, ok, err)
	}

	got, err := users.GetOrElse(ctx, "2", func(context.Context) (user, error) {
		return user{ID: "2", Name: "Grace"}, nil
	})
	if err != nil || got.Name != "Grace" {
		t.Fatalf("GetOrElse = (%+v, %v)", got, err)
	}

	if err := users.Remove(ctx, "1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := users.Get(ctx, "1"); ok {
		t.Fatal("removed key should miss")
	}

	if users.Unwrap() != cc {
		t.Fatal("Unwrap should return the underlying cache")
	}
}
