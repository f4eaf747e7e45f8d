package typedcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/typedcache/codec"
	"github.com/unkn0wn-root/typedcache/epoch"
	"github.com/unkn0wn-root/typedcache/internal/util"
	"github.com/unkn0wn-root/typedcache/internal/wire"
	st "github.com/unkn0wn-root/typedcache/store"
)

// Cache is a namespaced, kind-tagged view over a byte store. Values keep
// their Go type across the round trip; reads with the wrong type miss
// instead of failing. All methods are safe for concurrent use.
//
// Typed reads are package-level functions (Get, GetOrElse) because
// methods cannot introduce type parameters.
type Cache struct {
	ns         string
	store      st.Store
	codec      codec.Codec
	log        Logger
	hooks      Hooks
	enabled    bool
	defaultTTL time.Duration
	epoch      epoch.Source
	flights    singleflight.Group
}

func newCache(opts Options) (*Cache, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("typedcache: store is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("typedcache: namespace is required")
	}

	c := &Cache{
		ns:         opts.Namespace,
		store:      opts.Store,
		codec:      codec.Codec{Records: opts.Records},
		enabled:    !opts.Disabled,
		defaultTTL: opts.DefaultTTL,
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.Epoch != nil {
		c.epoch = opts.Epoch
	} else {
		c.epoch = epoch.NewLocal()
	}

	return c, nil
}

func (c *Cache) Enabled() bool { return c.enabled }

// Namespace returns the logical namespace this cache writes under.
func (c *Cache) Namespace() string { return c.ns }

func (c *Cache) Close(ctx context.Context) error {
	// Close epoch source first (best effort)
	if c.epoch != nil {
		_ = c.epoch.Close(ctx)
	}
	if c.store != nil {
		return c.store.Close(ctx)
	}
	return nil
}

// Get returns the value stored at key when its stored kind matches T.
// A missing key, an expired entry, an explicitly stored null, and a
// kind mismatch all report ok=false with a nil error; a non-nil error
// is always a *StoreError.
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T
	if !c.enabled {
		return zero, false, nil
	}
	kind, payload, ok, err := c.read(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	if kind == codec.KindNil {
		// a stored null is present but carries no value
		return zero, false, nil
	}

	var v T
	if err := c.codec.Decode(kind, payload, &v); err != nil {
		if errors.Is(err, codec.ErrKindMismatch) || errors.Is(err, codec.ErrUnsupported) {
			// the entry is valid for some other type; leave it alone
			return zero, false, nil
		}
		c.selfHeal(ctx, c.storageKey(key), "decode")
		return zero, false, nil
	}
	return v, true, nil
}

// Set stores value under key with the cache's default TTL.
// Storing nil (or a nil pointer) records an explicit null; Get misses
// on it, Exists reports it, and GetOrElse treats it as a hit.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	return c.SetTTL(ctx, key, value, c.defaultTTL)
}

// SetTTL stores value under key with an explicit TTL.
// ttl <= 0 means the entry does not expire.
func (c *Cache) SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	kind, payload, err := c.codec.Encode(value)
	if err != nil {
		return err
	}
	return c.write(ctx, key, kind, payload, ttl)
}

// Remove deletes key. Removing an absent key is not an error.
func (c *Cache) Remove(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	if err := c.store.Del(ctx, c.storageKey(key)); err != nil {
		return &StoreError{Op: "del", Key: key, Err: err}
	}
	return nil
}

// Exists reports whether key holds a live entry. Unlike Get it counts
// explicitly stored nulls, so it distinguishes "cached null" from
// "absent".
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if !c.enabled {
		return false, nil
	}
	_, _, ok, err := c.read(ctx, key)
	return ok, err
}

// Clear drops every entry in the namespace. The epoch advances before
// the flush so loads computed against the old contents refuse to write
// themselves back afterwards.
func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	if _, err := c.epoch.Advance(ctx); err != nil {
		// without the epoch moving, an in-flight load could
		// repopulate pre-clear data; fail loudly instead
		c.hooks.EpochError("advance", err)
		return fmt.Errorf("typedcache: advance epoch: %w", err)
	}
	if err := c.store.Flush(ctx, util.Prefix(c.ns)); err != nil {
		return &StoreError{Op: "flush", Err: err}
	}
	return nil
}

// read fetches and validates the envelope for key. ok=false means the
// caller should treat the key as absent; err is non-nil only for store
// failures.
func (c *Cache) read(ctx context.Context, key string) (codec.Kind, []byte, bool, error) {
	sk := c.storageKey(key)
	raw, ok, err := c.store.Get(ctx, sk)
	if err != nil {
		return 0, nil, false, &StoreError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return 0, nil, false, nil
	}

	kind, exp, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		c.selfHeal(ctx, sk, "corrupt")
		return 0, nil, false, nil
	}
	// stores enforce TTL too, but not all of them can (bigcache), so
	// expiry is validated here against the envelope deadline
	if exp != 0 && time.Now().UnixNano() >= int64(exp) {
		c.selfHeal(ctx, sk, "expired")
		return 0, nil, false, nil
	}
	return codec.Kind(kind), payload, true, nil
}

func (c *Cache) write(ctx context.Context, key string, kind codec.Kind, payload []byte, ttl time.Duration) error {
	sk := c.storageKey(key)
	var exp uint64
	if ttl > 0 {
		exp = uint64(time.Now().Add(ttl).UnixNano())
	}
	entry := wire.EncodeEntry(byte(kind), exp, payload)
	ok, err := c.store.Set(ctx, sk, entry, int64(len(entry)), ttl)
	if err != nil {
		return &StoreError{Op: "set", Key: key, Err: err}
	}
	if !ok {
		c.hooks.StoreSetRejected(sk)
		c.log.Debug("set rejected by store (pressure)", Fields{"key": key})
	}
	return nil
}

func (c *Cache) selfHeal(ctx context.Context, storageKey, reason string) {
	_ = c.store.Del(ctx, storageKey)
	c.hooks.SelfHeal(storageKey, reason)
	c.log.Debug("self-healed entry", Fields{"key": storageKey, "reason": reason})
}

func (c *Cache) storageKey(userKey string) string {
	// isolate by namespace
	return util.StorageKey(c.ns, userKey)
}
