package typedcache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/unkn0wn-root/typedcache/codec"
)

// GetOrElse returns the value at key, computing it with loader on a
// miss and caching the result with the cache's default TTL.
//
// Concurrent callers for the same key share one loader execution: the
// first caller runs it, the rest block and receive the same outcome.
// A loader error is delivered verbatim to every waiter and nothing is
// cached, so the next call starts a fresh load. A loader that returns
// a nil pointer caches an explicit null; later calls return T's zero
// value without running the loader again.
//
// The loader runs on a context detached from the caller's cancelation:
// once started, a load runs to completion even if the caller that
// triggered it gives up.
func GetOrElse[T any](ctx context.Context, c *Cache, key string, loader func(context.Context) (T, error)) (T, error) {
	return GetOrElseTTL(ctx, c, key, c.defaultTTL, loader)
}

// GetOrElseTTL is GetOrElse with an explicit TTL for the computed
// value. ttl <= 0 means the cached result does not expire.
func GetOrElseTTL[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, loader func(context.Context) (T, error)) (T, error) {
	var zero T
	if !c.enabled {
		return loader(ctx)
	}

	// fast path: answer from the store without touching the flight group
	v, hit, err := lookup[T](ctx, c, key)
	if err != nil {
		return zero, err
	}
	if hit {
		return v, nil
	}

	sk := c.storageKey(key)
	ep, epOK := c.currentEpoch(ctx)

	res, err, shared := c.flights.Do(flightKey[T](ep, sk), func() (any, error) {
		// double-check: a finished flight may have filled the key
		// between our miss and this execution
		if v, hit, err := lookup[T](ctx, c, key); err == nil && hit {
			return v, nil
		}

		// the load outlives the triggering caller; every waiter gets
		// this one execution's outcome
		lctx := context.WithoutCancel(ctx)
		v, err := loader(lctx)
		if err != nil {
			return zero, err
		}

		switch {
		case !epOK:
			c.hooks.LoadDiscarded(key, "epoch_error")
		case !c.epochUnchanged(lctx, ep):
			c.hooks.LoadDiscarded(key, "epoch_moved")
			c.log.Debug("load result not cached (namespace cleared)", Fields{"key": key})
		default:
			if err := c.SetTTL(lctx, key, v, ttl); err != nil {
				// the value is still good; caching it is best-effort
				c.log.Warn("load write-back failed", Fields{"key": key, "err": err})
			}
		}
		return v, nil
	})
	if shared {
		c.hooks.LoadShared(key)
	}
	if err != nil {
		c.hooks.LoadError(key, err)
		return zero, err
	}

	out, ok := res.(T)
	if !ok {
		// flights are keyed by type; a foreign result is a bug
		return zero, fmt.Errorf("typedcache: load for %q returned %T", key, res)
	}
	return out, nil
}

// lookup reads key for GetOrElse. Unlike Get, a stored null is a hit
// carrying T's zero value: a previous load recorded "no value" and the
// loader must not run again. A kind mismatch is a miss so the next
// write-back takes the key over.
func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T
	kind, payload, ok, err := c.read(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	if kind == codec.KindNil {
		return zero, true, nil
	}

	var v T
	if err := c.codec.Decode(kind, payload, &v); err != nil {
		if errors.Is(err, codec.ErrKindMismatch) || errors.Is(err, codec.ErrUnsupported) {
			return zero, false, nil
		}
		c.selfHeal(ctx, c.storageKey(key), "decode")
		return zero, false, nil
	}
	return v, true, nil
}

// currentEpoch snapshots the namespace epoch. ok=false means the source
// failed; loads still coalesce but skip their write-back, since a Clear
// could hide behind the error.
func (c *Cache) currentEpoch(ctx context.Context) (uint64, bool) {
	e, err := c.epoch.Current(ctx)
	if err != nil {
		c.hooks.EpochError("current", err)
		c.log.Warn("epoch read error", Fields{"err": err})
		return 0, false
	}
	return e, true
}

func (c *Cache) epochUnchanged(ctx context.Context, observed uint64) bool {
	now, ok := c.currentEpoch(ctx)
	return ok && now == observed
}

// flightKey scopes load coalescing to (epoch, result type, storage key).
// The epoch term keeps post-Clear callers out of pre-Clear flights; the
// type term keeps differently-typed loads of one key from exchanging
// results.
func flightKey[T any](ep uint64, storageKey string) string {
	return fmt.Sprintf("%d:%s:%s", ep, typeName[T](), storageKey)
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
