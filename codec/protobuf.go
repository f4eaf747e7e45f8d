package codec

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
)

// Protobuf serializes records that implement proto.Message. List
// payloads are not supported; wrap repeated fields in a message. The
// zero value is ready to use.
type Protobuf struct{}

var _ RecordCodec = Protobuf{}

func (Protobuf) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a proto.Message", ErrUnsupported, v)
	}
	return proto.Marshal(m)
}

// Unmarshal decodes data into dst. dst may be the message itself
// (*mypb.User) or a pointer to one (**mypb.User); a nil message is
// allocated.
func (Protobuf) Unmarshal(data []byte, dst any) error {
	if m, ok := dst.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}

	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("typedcache: protobuf destination must be a non-nil pointer, got %T", dst)
	}
	elem := rv.Elem()
	if elem.Kind() == reflect.Pointer {
		if elem.IsNil() {
			elem.Set(reflect.New(elem.Type().Elem()))
		}
		if m, ok := elem.Interface().(proto.Message); ok {
			return proto.Unmarshal(data, m)
		}
	}
	return fmt.Errorf("%w: %T is not a proto.Message", ErrUnsupported, dst)
}
