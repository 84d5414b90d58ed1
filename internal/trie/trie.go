// Package trie implements a compact, immutable byte-keyed trie mapping keys to
// unsigned 32-bit values.
//
// A Trie is compiled once from a set of pairs into a single flat blob of
// self-relative nodes and is never modified afterwards, so any number of
// goroutines may call Match, Contains and Items concurrently without locking.
// Use a Builder to accumulate pairs incrementally.
package trie

import (
	"errors"
	"fmt"
)

// Trie is a compiled, read-only key/value set. The zero value is an empty
// trie.
type Trie struct {
	maxCode      int
	payloadWidth int
	tr           translation
	// sfTable is set when the alphabet needs a single-follow decode table,
	// even if that table ended up empty.
	sfTable      bool
	singleFollow []uint16
	blob         []byte
}

type options struct {
	payloadWidth int
	validateTags bool
}

// Option configures compilation and persistence.
type Option func(*options)

// WithPayloadWidth forces the byte width used for stored values instead of
// deriving it from the largest value. Compiling fails if a value does not fit.
func WithPayloadWidth(width int) Option {
	return func(o *options) { o.payloadWidth = width }
}

// WithTagValidation writes or expects tagged fields in the persisted format.
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

// New compiles pairs into a Trie. A key given more than once keeps its last
// value; empty keys are ignored.
func New(pairs []Pair, opts ...Option) (*Trie, error) {
	t := &Trie{}
	if err := t.compile(pairs, buildOptions(opts)); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadItems rebuilds t in place from pairs. On error t is left unchanged.
// LoadItems must not be called while t is shared with other goroutines.
func (t *Trie) LoadItems(pairs []Pair, opts ...Option) error {
	return t.compile(pairs, buildOptions(opts))
}

func (t *Trie) compile(pairs []Pair, o options) error {
	var tree buildTree
	tree.build(pairs)
	h := tree.collect()

	width := payloadWidthFor(tree.maxValue)
	if o.payloadWidth != 0 {
		if o.payloadWidth < 1 || o.payloadWidth > 4 {
			return &ConstructionError{Err: ErrPayloadWidth}
		}
		width = o.payloadWidth
		if tree.maxValue > maxValueFor(width) {
			return &ConstructionError{
				Key: largestKey(&tree),
				Err: fmt.Errorf("%w: %d needs %d bytes", ErrValueTooLarge, tree.maxValue, payloadWidthFor(tree.maxValue)),
			}
		}
	}

	tr, maxCode, err := buildTranslation(&h.chars)
	if err != nil {
		return err
	}

	enc := &encoder{tr: &tr, maxCode: maxCode, payloadWidth: width}
	var dec []uint16
	if needsSingleFollowTable(maxCode) {
		enc.sf = buildSingleFollowTable(h, &tr, maxCode)
		dec = enc.sf.dec
	}
	blob, err := enc.encodeNode(nil, &tree.root)
	if err != nil {
		return err
	}

	*t = Trie{
		maxCode:      maxCode,
		payloadWidth: width,
		tr:           tr,
		sfTable:      enc.sf != nil,
		singleFollow: dec,
		blob:         blob,
	}
	return nil
}

// largestKey finds a key holding the tree's largest value.
func largestKey(tree *buildTree) string {
	type frame struct {
		n   *buildNode
		key []byte
	}
	stack := []frame{{n: &tree.root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.n.hasData && f.n.value == tree.maxValue {
			return string(f.key)
		}
		for _, c := range f.n.children {
			key := append(append([]byte(nil), f.key...), c.b)
			stack = append(stack, frame{n: c, key: key})
		}
	}
	return ""
}

// Cursor records where a previous match left off so that a later call can
// continue from there. The zero value starts at the root.
type Cursor struct {
	pos int
	ok  bool
}

// Valid reports whether the cursor points into the trie.
func (c *Cursor) Valid() bool { return c.ok }

// Reset rewinds the cursor to the root.
func (c *Cursor) Reset() { *c = Cursor{} }

// Match returns the value stored for key, or ErrNotFound.
func (t *Trie) Match(key string) (uint32, error) {
	var c Cursor
	return t.MatchFrom(key, &c)
}

// MatchFrom matches key starting where cur points and updates cur. When the
// whole key was consumed and the node reached continues with a separator
// edge leading to further keys, cur is moved past that separator, so the
// next call can match the following word. Otherwise cur is reset.
func (t *Trie) MatchFrom(key string, cur *Cursor) (uint32, error) {
	pos := 0
	if cur.ok {
		pos = cur.pos
	}
	cur.Reset()
	if len(t.blob) == 0 {
		return 0, ErrNotFound
	}

	last := edge{pos: pos, internal: true}
	for i := 0; i < len(key); i++ {
		code := t.tr.forward[key[i]]
		if code == codeNoMatch || !last.internal {
			return 0, ErrNotFound
		}
		v, err := t.decodeNode(last.pos)
		if err != nil {
			return 0, err
		}
		e, ok, err := t.follow(last.pos, v, code)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrNotFound
		}
		last = e
	}

	if last.internal {
		v, err := t.decodeNode(last.pos)
		if err != nil {
			return 0, err
		}
		sep, ok, err := t.follow(last.pos, v, codeSeparator)
		if err != nil {
			return 0, err
		}
		if ok && sep.internal {
			*cur = Cursor{pos: sep.pos, ok: true}
		}
	}
	if !last.hasData {
		return 0, ErrNotFound
	}
	return last.value, nil
}

// Contains reports whether key has a value. Decoding errors count as absent.
func (t *Trie) Contains(key string) bool {
	_, err := t.Match(key)
	return err == nil
}

// Walk calls fn for every key in depth-first order. Returning a non-nil error
// from fn stops the walk and Walk returns that error.
func (t *Trie) Walk(fn func(key string, value uint32) error) error {
	if len(t.blob) == 0 {
		return nil
	}
	type frame struct {
		edges []edge
		next  int
		depth int
	}

	root, err := t.children(0, nil)
	if err != nil {
		return err
	}
	stack := []frame{{edges: root}}
	var buf []byte
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		if f.next == len(f.edges) {
			stack = stack[:len(stack)-1]
			continue
		}
		e := f.edges[f.next]
		f.next++
		depth := f.depth

		buf = append(buf[:depth], t.tr.inverse[e.code])
		if e.hasData {
			if err := fn(string(buf), e.value); err != nil {
				return err
			}
		}
		if e.internal {
			kids, err := t.children(e.pos, nil)
			if err != nil {
				return err
			}
			stack = append(stack, frame{edges: kids, depth: depth + 1})
		}
	}
	return nil
}

func (t *Trie) children(pos int, dst []edge) ([]edge, error) {
	v, err := t.decodeNode(pos)
	if err != nil {
		return nil, err
	}
	return t.edges(pos, v, dst)
}

// Items returns every pair in the trie.
func (t *Trie) Items() ([]Pair, error) {
	var out []Pair
	err := t.Walk(func(key string, value uint32) error {
		out = append(out, Pair{Key: key, Value: value})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len counts the keys in the trie by walking it.
func (t *Trie) Len() (int, error) {
	n := 0
	err := t.Walk(func(string, uint32) error {
		n++
		return nil
	})
	return n, err
}

// Stats describes the compiled layout.
type Stats struct {
	MaxCode           int `json:"max_code"`
	PayloadWidth      int `json:"payload_width"`
	SingleFollowTable int `json:"single_follow_table"`
	BlobBytes         int `json:"blob_bytes"`
}

// Stats reports layout figures for diagnostics.
func (t *Trie) Stats() Stats {
	return Stats{
		MaxCode:           t.maxCode,
		PayloadWidth:      t.payloadWidth,
		SingleFollowTable: len(t.singleFollow),
		BlobBytes:         len(t.blob),
	}
}

// IsNotFound reports whether err means a key was absent.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
