package binio

import (
	"bufio"
	"io"
)

// Writer emits nibble-encoded values to an underlying io.Writer.
//
// Errors are sticky: after the first failed write every method is a no-op
// and Flush returns that error.
type Writer struct {
	w       *bufio.Writer
	opts    options
	pending byte
	half    bool // pending holds a low nibble
	n       int64
	err     error
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	return &Writer{
		w:    bufio.NewWriter(w),
		opts: buildOptions(opts),
	}
}

func (w *Writer) writeNibble(nibble byte) {
	if w.err != nil {
		return
	}
	if !w.half {
		w.pending = nibble & 0x0f
		w.half = true
		return
	}
	w.err = w.w.WriteByte(w.pending | (nibble&0x0f)<<4)
	w.half = false
	w.pending = 0
	if w.err == nil {
		w.n++
	}
}

// EncodeUint writes x as a nibble series without a tag.
func (w *Writer) EncodeUint(x uint32) {
	n := maxNibbles - 1
	for ; n > 0; n-- {
		if x>>(3*n) != 0 {
			break
		}
	}
	for ; n > 0; n-- {
		w.writeNibble(byte(x>>(3*n)) & nibbleMask)
	}
	w.writeNibble(byte(x)&nibbleMask | nibbleStop)
}

func (w *Writer) writeTag(tag uint32) {
	if w.opts.validateTags {
		w.EncodeUint(tag)
	}
}

// WriteUint32 writes a tagged unsigned value.
func (w *Writer) WriteUint32(tag, v uint32) {
	w.writeTag(tag)
	w.EncodeUint(v)
}

// WriteInt32 writes a tagged signed value using its two's complement bits.
func (w *Writer) WriteInt32(tag uint32, v int32) {
	w.WriteUint32(tag, uint32(v))
}

// WriteUint16 writes a tagged 16-bit value.
func (w *Writer) WriteUint16(tag uint32, v uint16) {
	w.WriteUint32(tag, uint32(v))
}

// WriteBool writes a tagged boolean as 0 or 1.
func (w *Writer) WriteBool(tag uint32, v bool) {
	var x uint32
	if v {
		x = 1
	}
	w.WriteUint32(tag, x)
}

// WriteBuffer writes a tagged byte buffer: its length, then each 4-byte
// little-endian word, then the remaining 1-3 bytes packed into one value.
func (w *Writer) WriteBuffer(tag uint32, b []byte) {
	w.writeTag(tag)
	w.EncodeUint(uint32(len(b)))
	words := len(b) &^ 3
	for pos := 0; pos < words; pos += 4 {
		w.EncodeUint(uint32(b[pos]) | uint32(b[pos+1])<<8 | uint32(b[pos+2])<<16 | uint32(b[pos+3])<<24)
	}
	if rest := b[words:]; len(rest) > 0 {
		var v uint32
		for i, c := range rest {
			v |= uint32(c) << (8 * i)
		}
		w.EncodeUint(v)
	}
}

// Flush writes any pending half byte and flushes the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if w.half {
		w.err = w.w.WriteByte(w.pending)
		w.half = false
		w.pending = 0
		if w.err != nil {
			return w.err
		}
		w.n++
	}
	w.err = w.w.Flush()
	return w.err
}

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

// Written returns the number of bytes handed to the underlying buffer.
func (w *Writer) Written() int64 { return w.n }
