package codec

import "encoding/json"

// JSON serializes lists and records as JSON. Interoperable and easy to
// inspect at the cost of size; prefer Msgpack or CBOR when the cache is
// only read by Go. The zero value is ready to use.
type JSON struct{}

var _ RecordCodec = JSON{}

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte, dst any) error { return json.Unmarshal(data, dst) }
