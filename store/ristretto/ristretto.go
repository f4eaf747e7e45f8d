// Package ristretto provides an in-process store backed by dgraph-io/ristretto.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	st "github.com/unkn0wn-root/typedcache/store"
)

// Ristretto is a cost-bounded in-process store. Writes are admitted
// asynchronously; a Set may be visible only after the internal buffers
// drain (tests can call Wait).
type Ristretto struct {
	c *rc.Cache
}

var _ st.Store = (*Ristretto)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// Cost is provided by the caller per Set (the cache passes len(value)).
}

func New(cfg Config) (*Ristretto, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto{c: c}, nil
}

func (p *Ristretto) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Ristretto) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return p.c.Set(key, value, cost), nil
	}
	return p.c.SetWithTTL(key, value, cost, ttl), nil
}

func (p *Ristretto) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

// Flush clears the whole cache. Ristretto has no key iteration, so the
// prefix cannot be honored; every namespace sharing this store is dropped.
func (p *Ristretto) Flush(_ context.Context, _ string) error {
	p.c.Clear()
	return nil
}

// Ping always succeeds; the store is in-process.
func (p *Ristretto) Ping(context.Context) error { return nil }

func (p *Ristretto) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Wait blocks until buffered writes have been applied. Useful in tests
// and anywhere read-your-writes matters on this store.
func (p *Ristretto) Wait() { p.c.Wait() }

// Metrics exposes ristretto's metrics if enabled (not part of store.Store).
func (p *Ristretto) Metrics() *rc.Metrics { return p.c.Metrics }
