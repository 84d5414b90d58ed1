// Package dict reads and writes the line-oriented key/value dictionaries that
// tries are compiled from.
//
// Each non-blank line holds a key, a separator and an unsigned 32-bit value.
// Lines starting with '#' are comments. The value is taken after the last
// separator, so keys may contain the separator themselves. Keys are kept
// byte for byte, including leading and trailing spaces; only the value is
// trimmed.
package dict

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/microsoft/python-inference-script-sub000/internal/trie"
)

// DefaultSeparator splits keys from values.
const DefaultSeparator = "\t"

var (
	// ErrEmptyKey is returned for a line whose key is empty after
	// normalization.
	ErrEmptyKey = errors.New("dict: empty key")
	// ErrMissingValue is returned for a line without a separator.
	ErrMissingValue = errors.New("dict: missing value")
	// ErrUnknownForm is returned for an unsupported normalization form.
	ErrUnknownForm = errors.New("dict: unknown normalization form")
)

// ParseError reports the line a dictionary could not be read at.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dict: line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Options controls how keys are read.
type Options struct {
	// Separator between key and value. Empty means DefaultSeparator.
	Separator string
	// Normalize is a Unicode normalization form applied to keys: "none"
	// (or empty), "nfc", "nfd", "nfkc" or "nfkd".
	Normalize string
	// FoldCase applies Unicode case folding to keys.
	FoldCase bool
}

// Normalizer rewrites keys before they are stored or looked up, so that
// lookups see the same bytes as compilation did.
type Normalizer struct {
	form *norm.Form
	fold bool
}

// NewNormalizer validates opts and returns the key normalizer they describe.
func NewNormalizer(opts Options) (*Normalizer, error) {
	n := &Normalizer{fold: opts.FoldCase}
	var f norm.Form
	switch strings.ToLower(opts.Normalize) {
	case "", "none":
		return n, nil
	case "nfc":
		f = norm.NFC
	case "nfd":
		f = norm.NFD
	case "nfkc":
		f = norm.NFKC
	case "nfkd":
		f = norm.NFKD
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownForm, opts.Normalize)
	}
	n.form = &f
	return n, nil
}

// Key returns the normalized form of key.
func (n *Normalizer) Key(key string) string {
	if n == nil {
		return key
	}
	if n.fold {
		key = cases.Fold().String(key)
	}
	if n.form != nil {
		key = n.form.String(key)
	}
	return key
}

// ReadPairs parses a dictionary from r.
func ReadPairs(r io.Reader, opts Options) ([]trie.Pair, error) {
	n, err := NewNormalizer(opts)
	if err != nil {
		return nil, err
	}
	sep := opts.Separator
	if sep == "" {
		sep = DefaultSeparator
	}

	var pairs []trie.Pair
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSuffix(sc.Text(), "\r")
		if strings.TrimSpace(s) == "" || strings.HasPrefix(s, "#") {
			continue
		}
		i := strings.LastIndex(s, sep)
		if i < 0 {
			return nil, &ParseError{Line: line, Err: ErrMissingValue}
		}
		v, err := strconv.ParseUint(strings.TrimSpace(s[i+len(sep):]), 10, 32)
		if err != nil {
			return nil, &ParseError{Line: line, Err: fmt.Errorf("parse value: %w", err)}
		}
		key := n.Key(s[:i])
		if key == "" {
			return nil, &ParseError{Line: line, Err: ErrEmptyKey}
		}
		pairs = append(pairs, trie.Pair{Key: key, Value: uint32(v)})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dict: read line %d: %w", line+1, err)
	}
	return pairs, nil
}

// WritePairs writes pairs in the format ReadPairs accepts.
func WritePairs(w io.Writer, pairs []trie.Pair, sep string) error {
	if sep == "" {
		sep = DefaultSeparator
	}
	bw := bufio.NewWriter(w)
	for _, p := range pairs {
		if _, err := fmt.Fprintf(bw, "%s%s%d\n", p.Key, sep, p.Value); err != nil {
			return err
		}
	}
	return bw.Flush()
}
