// Package wire implements the binary envelope typedcache stores in the
// backing byte store. Every entry is framed as
//
//	magic(4) | ver(1) | kind(1) | exp(u64 be) | vlen(u32 be) | payload(vlen)
//
// kind is the value-kind tag assigned by the codec package (opaque here,
// except that 0 is reserved and rejected). exp is the absolute expiration
// as unix nanoseconds; 0 means the entry never expires. Framing is strict:
// decoders reject trailing bytes so that foreign or corrupt writes under a
// typedcache namespace are detected and self-healed rather than misread.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const version byte = 1

// header = magic(4) + ver(1) + kind(1) + exp(8) + vlen(4)
const headerLen = 4 + 1 + 1 + 8 + 4

var (
	ErrCorrupt = errors.New("typedcache: corrupt entry")
	magic4     = [...]byte{'T', 'Y', 'P', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodeEntry frames a codec payload with its kind tag and expiration.
// kind must be non-zero.
func EncodeEntry(kind byte, exp uint64, payload []byte) []byte {
	if kind == 0 {
		panic("typedcache: zero kind in wire entry")
	}

	var buf bytes.Buffer
	buf.Grow(headerLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], exp)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeEntry parses an envelope produced by EncodeEntry. The returned
// payload aliases b (zero-copy); callers must not retain it past the life
// of b unless they copy.
func DecodeEntry(b []byte) (kind byte, exp uint64, payload []byte, err error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version || b[5] == 0 {
		return 0, 0, nil, ErrCorrupt
	}
	kind = b[5]

	off := 6

	exp = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen > len(b)-off { // overflow-safe bound check
		return 0, 0, nil, ErrCorrupt
	}
	if off+vlen != len(b) { // strict framing: no trailing bytes
		return 0, 0, nil, ErrCorrupt
	}

	return kind, exp, b[off : off+vlen], nil
}
