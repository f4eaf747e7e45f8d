package epoch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares a namespace epoch across processes and survives restarts.
// Optionally, a TTL can be applied to the epoch key to prevent unbounded
// retention. If the key expires, readers observe epoch 0 and stale
// entries self-heal on read.
type Redis struct {
	mu  sync.RWMutex
	rdb redis.UniversalClient
	ns  string        // logical namespace; should match Options.Namespace
	ttl time.Duration // optional TTL for the epoch key; 0 disables expiry
}

var _ Source = (*Redis)(nil)

// NewRedis creates a Redis-backed epoch source without TTL. The source
// does not own the client; closing it is the caller's job.
func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	return &Redis{rdb: client, ns: namespace}
}

// NewRedisWithTTL creates a Redis-backed epoch source with TTL.
// If ttl <= 0, the epoch key does not expire.
func NewRedisWithTTL(client redis.UniversalClient, namespace string, ttl time.Duration) *Redis {
	return &Redis{rdb: client, ns: namespace, ttl: ttl}
}

func (s *Redis) key() string { return "epoch:" + s.ns }

func (s *Redis) client() redis.UniversalClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rdb
}

// Swap replaces the underlying client and returns the previous one.
func (s *Redis) Swap(client redis.UniversalClient) redis.UniversalClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.rdb
	s.rdb = client
	return old
}

// Current returns the namespace's epoch. A missing key is epoch 0.
func (s *Redis) Current(ctx context.Context) (uint64, error) {
	res, err := s.client().Get(ctx, s.key()).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis epoch parse: %w", err)
	}
	return u, nil
}

// Advance atomically increments the epoch and (optionally) refreshes TTL.
// When ttl > 0, INCR + EXPIRE are pipelined in a single round-trip and the
// INCR result is captured from the pipeline (no extra INCR).
func (s *Redis) Advance(ctx context.Context) (uint64, error) {
	k := s.key()
	rdb := s.client()

	if s.ttl <= 0 {
		v, err := rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Close is a no-op; the client is shared and owned by the caller.
func (s *Redis) Close(context.Context) error { return nil }
