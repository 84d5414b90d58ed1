package binio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Reader decodes nibble-encoded values from an underlying io.Reader.
type Reader struct {
	r    *bufio.Reader
	opts options
	cur  byte
	high bool // the high nibble of cur is still unread
	n    int64
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	return &Reader{
		r:    bufio.NewReader(r),
		opts: buildOptions(opts),
	}
}

func (r *Reader) readNibble() (byte, error) {
	if r.high {
		r.high = false
		return r.cur >> 4, nil
	}
	b, err := r.r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, ErrTruncated
		}
		return 0, err
	}
	r.n++
	r.cur = b
	r.high = true
	return b & 0x0f, nil
}

// DecodeUint reads one untagged nibble series.
func (r *Reader) DecodeUint() (uint32, error) {
	var v uint64
	for i := 0; ; i++ {
		if i == maxNibbles {
			return 0, ErrOverflow
		}
		nibble, err := r.readNibble()
		if err != nil {
			return 0, err
		}
		v = v<<3 | uint64(nibble&nibbleMask)
		if nibble&nibbleStop != 0 {
			break
		}
	}
	if v>>32 != 0 {
		return 0, ErrOverflow
	}
	return uint32(v), nil
}

func (r *Reader) readTag(tag uint32) error {
	if !r.opts.validateTags {
		return nil
	}
	got, err := r.DecodeUint()
	if err != nil {
		return fmt.Errorf("read tag %s: %w", TagString(tag), err)
	}
	if got != tag {
		return &TagError{Want: tag, Got: got}
	}
	return nil
}

// ReadUint32 reads a tagged unsigned value.
func (r *Reader) ReadUint32(tag uint32) (uint32, error) {
	if err := r.readTag(tag); err != nil {
		return 0, err
	}
	v, err := r.DecodeUint()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", TagString(tag), err)
	}
	return v, nil
}

// ReadInt32 reads a tagged signed value.
func (r *Reader) ReadInt32(tag uint32) (int32, error) {
	v, err := r.ReadUint32(tag)
	return int32(v), err
}

// ReadUint16 reads a tagged 16-bit value.
func (r *Reader) ReadUint16(tag uint32) (uint16, error) {
	v, err := r.ReadUint32(tag)
	if err != nil {
		return 0, err
	}
	if v > 0xffff {
		return 0, fmt.Errorf("read %s: %w", TagString(tag), ErrOverflow)
	}
	return uint16(v), nil
}

// ReadBool reads a tagged boolean.
func (r *Reader) ReadBool(tag uint32) (bool, error) {
	v, err := r.ReadUint32(tag)
	return v != 0, err
}

// readChunk caps the capacity ReadBufferN reserves before any data arrives.
const readChunk = 64 << 10

func (r *Reader) readLength(tag uint32, want int) error {
	if err := r.readTag(tag); err != nil {
		return err
	}
	n, err := r.DecodeUint()
	if err != nil {
		return fmt.Errorf("read %s length: %w", TagString(tag), err)
	}
	if int64(n) != int64(want) {
		return fmt.Errorf("read %s: %w: stream has %d bytes, want %d", TagString(tag), ErrBufferSize, n, want)
	}
	return nil
}

// ReadBuffer fills dst from a tagged buffer written by Writer.WriteBuffer.
// The persisted length must equal len(dst).
func (r *Reader) ReadBuffer(tag uint32, dst []byte) error {
	if err := r.readLength(tag, len(dst)); err != nil {
		return err
	}
	words := len(dst) &^ 3
	for pos := 0; pos < words; pos += 4 {
		v, err := r.DecodeUint()
		if err != nil {
			return fmt.Errorf("read %s word %d: %w", TagString(tag), pos/4, err)
		}
		dst[pos] = byte(v)
		dst[pos+1] = byte(v >> 8)
		dst[pos+2] = byte(v >> 16)
		dst[pos+3] = byte(v >> 24)
	}
	if rest := dst[words:]; len(rest) > 0 {
		v, err := r.DecodeUint()
		if err != nil {
			return fmt.Errorf("read %s tail: %w", TagString(tag), err)
		}
		for i := range rest {
			rest[i] = byte(v >> (8 * i))
		}
	}
	return nil
}

// ReadBufferN reads a tagged buffer whose persisted length must be n. The
// result grows as data arrives, so a length taken from an untrusted header
// only costs memory for bytes actually present. An empty buffer is nil.
func (r *Reader) ReadBufferN(tag uint32, n int) ([]byte, error) {
	if err := r.readLength(tag, n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, 0, min(n, readChunk))
	for len(out)+4 <= n {
		v, err := r.DecodeUint()
		if err != nil {
			return nil, fmt.Errorf("read %s word %d: %w", TagString(tag), len(out)/4, err)
		}
		out = append(out, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	if rest := n - len(out); rest > 0 {
		v, err := r.DecodeUint()
		if err != nil {
			return nil, fmt.Errorf("read %s tail: %w", TagString(tag), err)
		}
		for i := range rest {
			out = append(out, byte(v>>(8*i)))
		}
	}
	return out, nil
}

// Consumed returns the number of bytes read from the underlying stream.
func (r *Reader) Consumed() int64 { return r.n }
