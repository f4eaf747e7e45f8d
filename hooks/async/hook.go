// Package asynchook decouples hook consumers from the cache's hot path.
//
// Events are handed to a bounded queue and replayed on worker
// goroutines; when the queue is full, events are dropped rather than
// blocking a cache operation.
//
// usage:
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{
//	    SelfHealEvery:   10, // sample logs: ~every 10th self-heal
//	    LoadSharedEvery: 100,
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := typedcache.New(typedcache.Options{
//	    Namespace: "app:prod:user",
//	    Store:     store,
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/typedcache"
)

type Hooks struct {
	inner typedcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ typedcache.Hooks = (*Hooks)(nil)

func New(inner typedcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHeal(k, r string)            { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) StoreSetRejected(k string)       { h.try(func() { h.inner.StoreSetRejected(k) }) }
func (h *Hooks) LoadShared(k string)             { h.try(func() { h.inner.LoadShared(k) }) }
func (h *Hooks) LoadError(k string, err error)   { h.try(func() { h.inner.LoadError(k, err) }) }
func (h *Hooks) LoadDiscarded(k, r string)       { h.try(func() { h.inner.LoadDiscarded(k, r) }) }
func (h *Hooks) EpochError(op string, err error) { h.try(func() { h.inner.EpochError(op, err) }) }
