package typedcache

import (
	"context"
	"time"
)

// Typed is a single-type view over a Cache for call sites that always
// store and read one value type under a key family. Views carry no
// state of their own; they are cheap to create and copy, and any number
// of them can share one Cache.
type Typed[V any] struct {
	c *Cache
}

// View wraps c in a V-typed API.
func View[V any](c *Cache) Typed[V] { return Typed[V]{c: c} }

func (t Typed[V]) Get(ctx context.Context, key string) (V, bool, error) {
	return Get[V](ctx, t.c, key)
}

func (t Typed[V]) Set(ctx context.Context, key string, value V) error {
	return t.c.Set(ctx, key, value)
}

func (t Typed[V]) SetTTL(ctx context.Context, key string, value V, ttl time.Duration) error {
	return t.c.SetTTL(ctx, key, value, ttl)
}

func (t Typed[V]) Remove(ctx context.Context, key string) error {
	return t.c.Remove(ctx, key)
}

func (t Typed[V]) Exists(ctx context.Context, key string) (bool, error) {
	return t.c.Exists(ctx, key)
}

func (t Typed[V]) GetOrElse(ctx context.Context, key string, loader func(context.Context) (V, error)) (V, error) {
	return GetOrElse[V](ctx, t.c, key, loader)
}

func (t Typed[V]) GetOrElseTTL(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) (V, error)) (V, error) {
	return GetOrElseTTL[V](ctx, t.c, key, ttl, loader)
}

// Unwrap returns the underlying dynamic cache.
func (t Typed[V]) Unwrap() *Cache { return t.c }
