package typedcache

import (
	"errors"
	"fmt"
)

// StoreError reports that the backing store failed while serving an
// operation. A miss is never a StoreError; callers that see one know
// the store itself was unreachable or misbehaving and can fall back to
// their source of truth.
type StoreError struct {
	Op  string // "get", "set", "del", "flush", "ping"
	Key string // user key; empty for namespace-wide operations
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("typedcache: store %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("typedcache: store %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err (or anything it wraps) is a
// StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
