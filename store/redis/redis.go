// Package redis provides a Redis-backed store.
package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	st "github.com/unkn0wn-root/typedcache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

const defaultScanCount = 512

// Redis adapts a go-redis client to the Store interface. The client can
// be swapped at runtime, which configuration reloads use to repoint the
// store at a new server without rebuilding the cache on top of it.
type Redis struct {
	mu          sync.RWMutex
	rdb         goredis.UniversalClient
	closeClient bool
	scanCount   int64
}

var _ st.Store = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool  // set true only if this store exclusively owns the client
	ScanCount   int64 // keys per SCAN page during Flush; 0 = 512
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	sc := cfg.ScanCount
	if sc <= 0 {
		sc = defaultScanCount
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient, scanCount: sc}, nil
}

func (p *Redis) client() goredis.UniversalClient {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rdb
}

// Swap replaces the underlying client and returns the previous one.
// The caller decides whether to close the returned client.
func (p *Redis) Swap(client goredis.UniversalClient) goredis.UniversalClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.rdb
	p.rdb = client
	return old
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.client().Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0 // treat non-positive TTLs as "no expiry" per store contract
	}

	if err := p.client().Set(ctx, key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.client().Del(ctx, key).Err()
}

// Flush deletes every key under prefix by paging SCAN MATCH prefix*.
// With cluster clients SCAN visits one node per call; keep a namespace
// on a single shard if Flush must be exhaustive there.
func (p *Redis) Flush(ctx context.Context, prefix string) error {
	rdb := p.client()
	match := prefix + "*"
	var cursor uint64
	for {
		keys, next, err := rdb.Scan(ctx, cursor, match, p.scanCount).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (p *Redis) Ping(ctx context.Context) error {
	return p.client().Ping(ctx).Err()
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.client().Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
