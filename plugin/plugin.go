// Package plugin wires a Cache to a Redis server and manages its
// lifecycle: dial and verify on Start, repoint connections on Reload,
// release everything on Stop.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/typedcache"
	"github.com/unkn0wn-root/typedcache/codec"
	"github.com/unkn0wn-root/typedcache/epoch"
	redisstore "github.com/unkn0wn-root/typedcache/store/redis"
)

var (
	ErrNotStarted     = errors.New("typedcache/plugin: not started")
	ErrAlreadyStarted = errors.New("typedcache/plugin: already started")
)

// Config describes a Redis-backed cache.
//
// Addr and Namespace identify the cache and are fixed for the plugin's
// lifetime (Reload rejects a namespace change). The remaining fields
// fall into connection settings, which Reload applies, and cache
// behavior (DefaultTTL, Records, Logger, Hooks, Disabled), which only
// Start reads.
type Config struct {
	// Required
	Addr      string // host:port of the Redis server
	Namespace string // logical namespace for this cache's keys

	Username string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DefaultTTL is applied by Set and GetOrElse; 0 => entries do not expire.
	DefaultTTL time.Duration

	// Records configures list/record serialization; nil => msgpack.
	Records codec.RecordCodec

	// SharedEpoch keeps the namespace epoch in Redis so every replica
	// observes a Clear. Default false (in-process epoch).
	SharedEpoch bool

	Logger   typedcache.Logger
	Hooks    typedcache.Hooks
	Disabled bool
}

// Plugin owns a Redis client, the store wrapped around it, and the
// Cache on top. All lifecycle transitions are serialized; Cache() may
// be called from any goroutine.
type Plugin struct {
	mu      sync.Mutex
	cfg     Config
	client  goredis.UniversalClient
	store   *redisstore.Redis
	esrc    *epoch.Redis // nil when the epoch is in-process
	cache   *typedcache.Cache
	started bool
	stopped bool
}

func New(cfg Config) (*Plugin, error) {
	if cfg.Addr == "" {
		return nil, errors.New("typedcache/plugin: addr is required")
	}
	if cfg.Namespace == "" {
		return nil, errors.New("typedcache/plugin: namespace is required")
	}
	return &Plugin{cfg: cfg}, nil
}

// Start dials Redis, verifies the connection with a ping and builds the
// cache. It fails fast when the server is unreachable; nothing is
// retained on failure, so Start may be called again.
func (p *Plugin) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}

	client := goredis.NewClient(clientOptions(p.cfg))
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return &typedcache.StoreError{Op: "ping", Err: fmt.Errorf("%s: %w", p.cfg.Addr, err)}
	}

	st, err := redisstore.New(redisstore.Config{Client: client})
	if err != nil {
		_ = client.Close()
		return err
	}

	var src epoch.Source
	if p.cfg.SharedEpoch {
		p.esrc = epoch.NewRedis(client, p.cfg.Namespace)
		src = p.esrc
	}

	cache, err := typedcache.New(typedcache.Options{
		Namespace:  p.cfg.Namespace,
		Store:      st,
		Logger:     p.cfg.Logger,
		Hooks:      p.cfg.Hooks,
		DefaultTTL: p.cfg.DefaultTTL,
		Records:    p.cfg.Records,
		Epoch:      src,
		Disabled:   p.cfg.Disabled,
	})
	if err != nil {
		_ = client.Close()
		p.esrc = nil
		return err
	}

	p.client = client
	p.store = st
	p.cache = cache
	p.started = true
	return nil
}

// Reload repoints the plugin at new connection settings without
// rebuilding the cache: the new client is dialed and pinged first, then
// swapped in, then the old client is closed. On ping failure the old
// connection stays in service. Operations in flight on the old client
// during the swap may fail; retried calls land on the new one.
//
// Namespace and SharedEpoch cannot change; behavior fields read at
// Start (DefaultTTL, Records, Logger, Hooks, Disabled) are ignored.
func (p *Plugin) Reload(ctx context.Context, cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.stopped {
		return ErrNotStarted
	}
	if cfg.Namespace != p.cfg.Namespace {
		return errors.New("typedcache/plugin: reload cannot change namespace")
	}
	if cfg.SharedEpoch != p.cfg.SharedEpoch {
		return errors.New("typedcache/plugin: reload cannot change epoch placement")
	}

	client := goredis.NewClient(clientOptions(cfg))
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return &typedcache.StoreError{Op: "ping", Err: fmt.Errorf("%s: %w", cfg.Addr, err)}
	}

	old := p.store.Swap(client)
	if p.esrc != nil {
		p.esrc.Swap(client)
	}
	p.client = client
	p.cfg = cfg

	if old != nil {
		if err := old.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return fmt.Errorf("typedcache/plugin: close previous client: %w", err)
		}
	}
	return nil
}

// Stop closes the cache and the Redis client. Safe to call multiple
// times; repeated calls become no-ops. A stopped plugin stays stopped.
func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true

	var errs []error
	if err := p.cache.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.client.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Cache returns the cache built by Start, or nil before Start.
func (p *Plugin) Cache() *typedcache.Cache {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache
}

func clientOptions(cfg Config) *goredis.Options {
	return &goredis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
