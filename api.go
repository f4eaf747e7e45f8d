package typedcache

import (
	"time"

	"github.com/unkn0wn-root/typedcache/codec"
	"github.com/unkn0wn-root/typedcache/epoch"
	"github.com/unkn0wn-root/typedcache/store"
)

// Options tune the behavior of a Cache.
// Only Namespace and Store are required; others have sensible defaults.
type Options struct {
	// Required
	Namespace string // logical namespace to avoid collisions. e.g. "user", "profile", "order"
	Store     store.Store

	Logger     Logger            // if nil, NopLogger is used
	Hooks      Hooks             // if nil, NopHooks is used
	DefaultTTL time.Duration     // applied by Set and GetOrElse; 0 => entries do not expire
	Records    codec.RecordCodec // list/record serialization; nil => codec.Msgpack{}
	Epoch      epoch.Source      // nil => epoch.NewLocal() (in-process)
	Disabled   bool              // default false (enabled)
}

// New builds a Cache over the given store. The cache owns the store and
// epoch source from here on; Close releases both.
func New(opts Options) (*Cache, error) {
	return newCache(opts)
}
