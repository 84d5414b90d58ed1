package trie

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Match when the key is absent, or when only a
	// longer key with this prefix exists.
	ErrNotFound = errors.New("trie: key not found")

	ErrValueTooLarge    = errors.New("trie: value does not fit the payload width")
	ErrAlphabetTooLarge = errors.New("trie: too many distinct key bytes")
	ErrOffsetTooLarge   = errors.New("trie: child area does not fit 4-byte offsets")
	ErrPayloadWidth     = errors.New("trie: payload width must be between 1 and 4")

	ErrBadMagic           = errors.New("trie: node header magic mismatch")
	ErrCorrupt            = errors.New("trie: blob truncated or corrupt")
	ErrUnsupportedVersion = errors.New("trie: unsupported state version")
)

// ConstructionError reports a failure while compiling pairs into a trie. No
// trie is produced when it is returned.
type ConstructionError struct {
	Key string
	Err error
}

func (e *ConstructionError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("trie: construct (key %q): %v", e.Key, e.Err)
	}
	return fmt.Sprintf("trie: construct: %v", e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// FormatError reports a persisted or in-memory trie that cannot be decoded.
// Offset is the blob position of the failing node, or -1 for header fields.
type FormatError struct {
	Offset int
	Err    error
}

func (e *FormatError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("trie: format at blob offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("trie: format: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

func corruptAt(pos int) error { return &FormatError{Offset: pos, Err: ErrCorrupt} }
