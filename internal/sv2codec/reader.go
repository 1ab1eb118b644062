package sv2codec

import "unicode/utf8"

// Reader consumes SV2 primitives from a byte slice in declaration order.
// It never allocates a copy of the backing buffer except where the wire
// form demands an independent byte slice (B0_* payloads).
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential decoding. b is not copied; callers
// must not mutate it while decoding is in progress.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Done reports whether every byte has been consumed. Callers that expect
// an exact-length payload should check this after decoding the last
// field and return ErrTrailingBytes if false.
func (r *Reader) Done() bool {
	return r.pos == len(r.buf)
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrUnexpectedEOF
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Bool decodes a 1-byte boolean (0x00 = false, any other byte = true).
func (r *Reader) Bool() (bool, error) {
	b, err := r.take(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// U8 decodes a single byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 decodes a little-endian 16-bit unsigned integer.
func (r *Reader) U16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

// U24 decodes a little-endian 24-bit unsigned integer (used by the frame
// header's msg_length field).
func (r *Reader) U24() (uint32, error) {
	b, err := r.take(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

// U32 decodes a little-endian 32-bit unsigned integer.
func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// U64 decodes a little-endian 64-bit unsigned integer.
func (r *Reader) U64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// U256 decodes a 32-byte value stored little-endian on the wire. The
// returned array preserves that LE byte order; callers that need a
// big-endian numeric interpretation (e.g. for target comparison) must
// reverse it themselves — see internal/target.
func (r *Reader) U256() ([32]byte, error) {
	var out [32]byte
	b, err := r.take(32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// CompressedPubKey decodes a fixed 33-byte compressed secp256k1 public key.
func (r *Reader) CompressedPubKey() ([33]byte, error) {
	var out [33]byte
	b, err := r.take(33)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// B0_32 decodes a 1-byte length prefix followed by that many raw bytes,
// with the length bounded to 32.
func (r *Reader) B0_32() ([]byte, error) {
	return r.bytesWithU8Prefix(32)
}

// B0_255 decodes a 1-byte length prefix followed by that many raw bytes.
func (r *Reader) B0_255() ([]byte, error) {
	return r.bytesWithU8Prefix(255)
}

// B0_64k decodes a 2-byte little-endian length prefix followed by that
// many raw bytes, bounded to 65535.
func (r *Reader) B0_64k() ([]byte, error) {
	n, err := r.U16()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (r *Reader) bytesWithU8Prefix(max int) ([]byte, error) {
	n, err := r.U8()
	if err != nil {
		return nil, err
	}
	if int(n) > max {
		return nil, ErrLengthOutOfRange
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Str0255 decodes a B0_255 byte string and validates it is well-formed
// UTF-8 no longer than 255 bytes.
func (r *Reader) Str0255() (string, error) {
	b, err := r.B0_255()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// Seq0_255 decodes a 1-byte element count followed by count elements,
// each decoded by elem. The generic parameter lets callers decode
// sequences of any message-defined element type.
func Seq0_255[T any](r *Reader, elem func(*Reader) (T, error)) ([]T, error) {
	n, err := r.U8()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	for i := 0; i < int(n); i++ {
		v, err := elem(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// OptionPresent decodes the 1-byte Option discriminator. true means a
// value of T follows; false means the option was absent and nothing
// further should be read for this field.
func (r *Reader) OptionPresent() (bool, error) {
	b, err := r.U8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0x00:
		return false, nil
	case 0x01:
		return true, nil
	default:
		return false, ErrInvalidOptionTag
	}
}
