// Package typedcache implements a store-agnostic key/value cache whose
// entries keep their Go type across the round trip. Every value is
// stored under a kind tag (bool, the integer widths, floats, string,
// bytes, time, list, record); reads with a mismatched type miss instead
// of failing, and corrupt or expired entries are deleted on read.
//
// Components:
//   - Store: byte store with TTL (Redis, Ristretto, BigCache).
//   - codec.Codec: kind-tagged (de)serialization; lists and records go
//     through a pluggable RecordCodec (msgpack by default, CBOR,
//     protobuf and JSON available).
//   - epoch.Source: per-namespace clear counter. Local (in-process) by
//     default, optional Redis implementation so replicas observe each
//     other's Clear calls.
//
// Keys:
//
//	<ns>:<key>    - entries (long keys are hashed)
//	epoch:<ns>    - namespace epoch (Redis epoch source only)
//
// Loads coalesce:
//
//	v, err := typedcache.GetOrElse(ctx, cache, "user:42", loadUser)
//
// runs loadUser once no matter how many goroutines miss concurrently;
// they all block for the same outcome. A failed load caches nothing and
// hands every waiter the same error.
package typedcache
