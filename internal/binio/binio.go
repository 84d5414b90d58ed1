// Package binio implements the nibble-based variable-length integer codec used
// to persist compiled tries.
//
// # Encoding
//
// An unsigned 32-bit value is split into 3-bit groups, most significant first.
// Leading all-zero groups are dropped (at least one group is always kept) and
// each group is emitted as a 4-bit nibble. The high bit of a nibble is set on
// the last nibble of a value:
//
//	value     3-bit groups   nibbles
//	00000000  000 000 000    1000
//	00000001  000 000 001    1001
//	00100110  000 100 110    0100 1110
//	11111111  011 111 111    0011 0111 1111
//
// Nibbles are packed two per byte, low half first. The final byte of a stream
// is padded with a zero nibble.
//
// # Tags
//
// With tag validation enabled every logical field is prefixed by an encoded
// tag which the reader compares against the tag it expects. Both sides must
// agree on the mode; the stream itself does not record it.
package binio

import (
	"errors"
	"fmt"
)

// maxNibbles is the longest nibble series a uint32 can produce (11 * 3 >= 32).
const maxNibbles = 11

const (
	nibbleStop = 0x08
	nibbleMask = 0x07
)

var (
	// ErrTruncated is returned when the stream ends inside a value.
	ErrTruncated = errors.New("binio: stream truncated")
	// ErrOverflow is returned when a nibble series does not fit in 32 bits.
	ErrOverflow = errors.New("binio: value overflows 32 bits")
	// ErrTagMismatch is returned when a field tag differs from the expected tag.
	ErrTagMismatch = errors.New("binio: stream tag mismatch")
	// ErrBufferSize is returned when a persisted buffer length differs from the
	// length the caller expects.
	ErrBufferSize = errors.New("binio: buffer size mismatch")
)

// TagError reports which field failed tag validation.
type TagError struct {
	Want uint32
	Got  uint32
}

func (e *TagError) Error() string {
	return fmt.Sprintf("binio: stream tag mismatch: expected %s, got %s", TagString(e.Want), TagString(e.Got))
}

func (e *TagError) Unwrap() error { return ErrTagMismatch }

// Tag packs a four character label into a field tag, first character in the
// most significant byte.
func Tag(label string) uint32 {
	var t uint32
	for i := 0; i < 4 && i < len(label); i++ {
		t = t<<8 | uint32(label[i])
	}
	return t
}

// TagString renders a tag built by Tag back into its label when printable.
func TagString(tag uint32) string {
	var b [4]byte
	for i := range b {
		c := byte(tag >> (24 - 8*i))
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("%#x", tag)
		}
		b[i] = c
	}
	return string(b[:])
}

type options struct {
	validateTags bool
}

// Option configures a Writer or Reader.
type Option func(*options)

// WithTagValidation enables or disables tagged fields.
func WithTagValidation(enabled bool) Option {
	return func(o *options) { o.validateTags = enabled }
}

func buildOptions(fns []Option) options {
	var o options
	for _, fn := range fns {
		fn(&o)
	}
	return o
}
