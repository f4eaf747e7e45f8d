package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// maxRawKey bounds how much raw user key material is embedded into a
// backing-store key. Longer keys collapse to a digest so namespaces stay
// scannable and the store never sees unbounded keys.
const maxRawKey = 128

// Prefix returns the backing-store key prefix owned by a namespace.
// External code must not write under this prefix.
func Prefix(ns string) string { return ns + ":" }

// StorageKey builds the namespaced backing-store key for a user key.
// Keys longer than maxRawKey are replaced by "#" + sha256 prefix; the
// mapping is deterministic, so the same user key always lands on the
// same storage key.
func StorageKey(ns, key string) string {
	if len(key) <= maxRawKey {
		return ns + ":" + key
	}
	sum := sha256.Sum256([]byte(key))
	return ns + ":#" + hex.EncodeToString(sum[:16])
}
