package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Kind tags the dynamic type of a stored value. The tag is persisted
// alongside the payload, so values survive the round trip through
// storage with their type intact. Kind values are part of the storage
// format and must not be renumbered.
type Kind uint8

const (
	// KindInvalid is never written to storage.
	KindInvalid Kind = 0

	KindNil     Kind = 1
	KindBool    Kind = 2
	KindInt     Kind = 3
	KindInt8    Kind = 4
	KindInt16   Kind = 5
	KindInt32   Kind = 6
	KindInt64   Kind = 7
	KindUint    Kind = 8
	KindUint8   Kind = 9
	KindUint16  Kind = 10
	KindUint32  Kind = 11
	KindUint64  Kind = 12
	KindFloat32 Kind = 13
	KindFloat64 Kind = 14
	KindString  Kind = 15
	KindBytes   Kind = 16
	KindTime    Kind = 17
	KindList    Kind = 18
	KindRecord  Kind = 19
)

var kindNames = map[Kind]string{
	KindNil:     "nil",
	KindBool:    "bool",
	KindInt:     "int",
	KindInt8:    "int8",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindUint:    "uint",
	KindUint8:   "uint8",
	KindUint16:  "uint16",
	KindUint32:  "uint32",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindString:  "string",
	KindBytes:   "bytes",
	KindTime:    "time",
	KindList:    "list",
	KindRecord:  "record",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

var (
	// ErrUnsupported reports a value whose type has no Kind: channels,
	// functions, complex numbers and the like.
	ErrUnsupported = errors.New("typedcache: unsupported value type")

	// ErrKindMismatch reports a decode into a destination whose type
	// does not correspond to the stored kind. Lookups treat it as a
	// miss, not a failure.
	ErrKindMismatch = errors.New("typedcache: stored kind does not match destination type")
)

// RecordCodec serializes list and record payloads. Scalars never pass
// through it; only KindList and KindRecord values do.
type RecordCodec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, dst any) error
}

// Codec maps Go values to kind-tagged payloads and back.
//
// Scalars use fixed-width big-endian encodings, strings and byte
// slices are stored raw, times as RFC 3339 text, and lists/records go
// through Records. The zero Codec is ready to use and serializes
// lists and records with Msgpack.
type Codec struct {
	// Records handles KindList and KindRecord payloads.
	// nil means Msgpack{}.
	Records RecordCodec
}

func (c Codec) records() RecordCodec {
	if c.Records != nil {
		return c.Records
	}
	return Msgpack{}
}

var timeType = reflect.TypeOf(time.Time{})

// KindOf reports the Kind a value would be stored under.
// Pointers are followed: a non-nil *T is classified as T, a nil
// pointer as KindNil.
func KindOf(v any) (Kind, error) {
	switch v.(type) {
	case nil:
		return KindNil, nil
	case bool:
		return KindBool, nil
	case int:
		return KindInt, nil
	case int8:
		return KindInt8, nil
	case int16:
		return KindInt16, nil
	case int32:
		return KindInt32, nil
	case int64:
		return KindInt64, nil
	case uint:
		return KindUint, nil
	case uint8:
		return KindUint8, nil
	case uint16:
		return KindUint16, nil
	case uint32:
		return KindUint32, nil
	case uint64:
		return KindUint64, nil
	case float32:
		return KindFloat32, nil
	case float64:
		return KindFloat64, nil
	case string:
		return KindString, nil
	case []byte:
		return KindBytes, nil
	case time.Time:
		return KindTime, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return KindNil, nil
		}
		rv = rv.Elem()
	}
	return kindOfType(rv.Type())
}

func kindOfType(t reflect.Type) (Kind, error) {
	if t == timeType {
		return KindTime, nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return KindBool, nil
	case reflect.Int:
		return KindInt, nil
	case reflect.Int8:
		return KindInt8, nil
	case reflect.Int16:
		return KindInt16, nil
	case reflect.Int32:
		return KindInt32, nil
	case reflect.Int64:
		return KindInt64, nil
	case reflect.Uint:
		return KindUint, nil
	case reflect.Uint8:
		return KindUint8, nil
	case reflect.Uint16:
		return KindUint16, nil
	case reflect.Uint32:
		return KindUint32, nil
	case reflect.Uint64:
		return KindUint64, nil
	case reflect.Float32:
		return KindFloat32, nil
	case reflect.Float64:
		return KindFloat64, nil
	case reflect.String:
		return KindString, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindBytes, nil
		}
		return KindList, nil
	case reflect.Array:
		// arrays ride the list path whatever the element: the scalar
		// bytes path needs a slice
		return KindList, nil
	case reflect.Map, reflect.Struct:
		return KindRecord, nil
	case reflect.Pointer:
		return kindOfType(t.Elem())
	}
	return KindInvalid, fmt.Errorf("%w: %s", ErrUnsupported, t)
}

// Encode serializes v and reports the Kind it was stored under.
// A nil payload with KindNil represents an explicitly stored null.
func (c Codec) Encode(v any) (Kind, []byte, error) {
	k, err := KindOf(v)
	if err != nil {
		return KindInvalid, nil, err
	}

	switch k {
	case KindNil:
		return KindNil, nil, nil
	case KindList, KindRecord:
		// Pass v through as-is: record codecs follow pointers
		// themselves, and protobuf needs the pointer.
		b, err := c.records().Marshal(v)
		if err != nil {
			return KindInvalid, nil, err
		}
		return k, b, nil
	}
	b, err := encodeScalar(k, indirect(v))
	if err != nil {
		return KindInvalid, nil, err
	}
	return k, b, nil
}

// indirect unwraps non-nil pointers so scalar encoding sees the value
// itself. Encode already mapped nil pointers to KindNil.
func indirect(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv.Interface()
}

func encodeScalar(k Kind, v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	switch k {
	case KindBool:
		if rv.Bool() {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case KindInt, KindInt64:
		return be64(uint64(rv.Int())), nil
	case KindInt8:
		return []byte{byte(rv.Int())}, nil
	case KindInt16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(rv.Int()))
		return b, nil
	case KindInt32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(rv.Int()))
		return b, nil
	case KindUint, KindUint64:
		return be64(rv.Uint()), nil
	case KindUint8:
		return []byte{byte(rv.Uint())}, nil
	case KindUint16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(rv.Uint()))
		return b, nil
	case KindUint32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(rv.Uint()))
		return b, nil
	case KindFloat32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, math.Float32bits(float32(rv.Float())))
		return b, nil
	case KindFloat64:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, math.Float64bits(rv.Float()))
		return b, nil
	case KindString:
		return []byte(rv.String()), nil
	case KindBytes:
		return rv.Bytes(), nil
	case KindTime:
		return v.(time.Time).MarshalText()
	}
	return nil, fmt.Errorf("%w: kind %s", ErrUnsupported, k)
}

func be64(u uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, u)
	return b
}

// Decode deserializes a stored payload into dst, which must be a
// non-nil pointer. The stored kind must equal the kind of dst's
// element type; otherwise Decode returns ErrKindMismatch. A stored
// KindNil never matches a concrete destination.
func (c Codec) Decode(k Kind, payload []byte, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("typedcache: decode destination must be a non-nil pointer, got %T", dst)
	}
	want, err := kindOfType(rv.Type().Elem())
	if err != nil {
		return err
	}
	if k != want {
		return fmt.Errorf("%w: stored %s, want %s", ErrKindMismatch, k, want)
	}

	switch k {
	case KindList, KindRecord:
		return c.records().Unmarshal(payload, dst)
	}
	return decodeScalar(k, payload, rv)
}

func decodeScalar(k Kind, b []byte, rv reflect.Value) error {
	// Allocate through intermediate pointers so *T and **T
	// destinations both work.
	elem := rv.Elem()
	for elem.Kind() == reflect.Pointer {
		if elem.IsNil() {
			elem.Set(reflect.New(elem.Type().Elem()))
		}
		elem = elem.Elem()
	}

	if need := scalarLen(k); need >= 0 && len(b) != need {
		return fmt.Errorf("typedcache: %s payload is %d bytes, want %d", k, len(b), need)
	}

	switch k {
	case KindBool:
		switch b[0] {
		case 0:
			elem.SetBool(false)
		case 1:
			elem.SetBool(true)
		default:
			return fmt.Errorf("typedcache: bool payload byte %d", b[0])
		}
	case KindInt, KindInt64:
		i := int64(binary.BigEndian.Uint64(b))
		if elem.OverflowInt(i) {
			return fmt.Errorf("typedcache: int payload %d overflows %s", i, elem.Type())
		}
		elem.SetInt(i)
	case KindInt8:
		elem.SetInt(int64(int8(b[0])))
	case KindInt16:
		elem.SetInt(int64(int16(binary.BigEndian.Uint16(b))))
	case KindInt32:
		elem.SetInt(int64(int32(binary.BigEndian.Uint32(b))))
	case KindUint, KindUint64:
		u := binary.BigEndian.Uint64(b)
		if elem.OverflowUint(u) {
			return fmt.Errorf("typedcache: uint payload %d overflows %s", u, elem.Type())
		}
		elem.SetUint(u)
	case KindUint8:
		elem.SetUint(uint64(b[0]))
	case KindUint16:
		elem.SetUint(uint64(binary.BigEndian.Uint16(b)))
	case KindUint32:
		elem.SetUint(uint64(binary.BigEndian.Uint32(b)))
	case KindFloat32:
		elem.SetFloat(float64(math.Float32frombits(binary.BigEndian.Uint32(b))))
	case KindFloat64:
		elem.SetFloat(math.Float64frombits(binary.BigEndian.Uint64(b)))
	case KindString:
		elem.SetString(string(b))
	case KindBytes:
		elem.SetBytes(append([]byte(nil), b...))
	case KindTime:
		var t time.Time
		if err := t.UnmarshalText(b); err != nil {
			return fmt.Errorf("typedcache: time payload: %w", err)
		}
		elem.Set(reflect.ValueOf(t))
	default:
		return fmt.Errorf("%w: kind %s", ErrUnsupported, k)
	}
	return nil
}

// scalarLen reports the exact payload length for fixed-width kinds,
// or -1 for variable-length ones.
func scalarLen(k Kind) int {
	switch k {
	case KindBool, KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindInt, KindInt64, KindUint, KindUint64, KindFloat64:
		return 8
	}
	return -1
}
