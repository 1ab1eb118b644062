// Package sv2codec implements encode/decode of the SV2 wire primitives:
// fixed-width integers, U256, length-prefixed byte strings, sequences,
// options, and the fixed-size compressed public key. It mirrors the way
// the rest of this codebase hand-rolls wire structs field by field,
// there being no generic self-describing binary codec in the retrieval
// pack to build on top of.
package sv2codec

import "errors"

// Decoding/encoding failures. Every fallible codec operation returns one
// of these unwrapped, so callers can compare with ==, never a panic.
var (
	ErrUnexpectedEOF   = errors.New("sv2codec: unexpected end of buffer")
	ErrInvalidUTF8     = errors.New("sv2codec: invalid utf-8 in Str0255")
	ErrLengthOutOfRange = errors.New("sv2codec: length prefix out of range")
	ErrInvalidOptionTag = errors.New("sv2codec: invalid Option discriminator")
	ErrTrailingBytes   = errors.New("sv2codec: trailing bytes after decode")
)
