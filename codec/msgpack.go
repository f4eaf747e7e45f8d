package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack serializes lists and records using vmihailenco/msgpack/v5.
// The zero value is ready to use and is the default RecordCodec.
//
// Msgpack is compact and fast; be mindful of struct tag differences vs
// JSON. Use `msgpack:"fieldName"` tags if you need explicit control.
type Msgpack struct{}

func (Msgpack) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Unmarshal(data []byte, dst any) error {
	return msgpack.Unmarshal(data, dst)
}
