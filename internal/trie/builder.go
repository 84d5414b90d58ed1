package trie

import "sort"

// Builder is a mutable key/value set that compiles into a Trie. It is not
// safe for concurrent use.
type Builder struct {
	m map[string]uint32
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{m: make(map[string]uint32)}
}

// Insert sets key to value and reports whether key was new. Empty keys are
// ignored.
func (b *Builder) Insert(key string, value uint32) bool {
	if key == "" {
		return false
	}
	if b.m == nil {
		b.m = make(map[string]uint32)
	}
	_, exists := b.m[key]
	b.m[key] = value
	return !exists
}

// Erase removes key and reports whether it was present.
func (b *Builder) Erase(key string) bool {
	_, ok := b.m[key]
	delete(b.m, key)
	return ok
}

// Get returns the value of key.
func (b *Builder) Get(key string) (uint32, bool) {
	v, ok := b.m[key]
	return v, ok
}

// Len returns the number of keys.
func (b *Builder) Len() int { return len(b.m) }

// Items returns every pair sorted by key.
func (b *Builder) Items() []Pair {
	out := make([]Pair, 0, len(b.m))
	for k, v := range b.m {
		out = append(out, Pair{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Freeze compiles the current contents into an immutable Trie. The builder
// remains usable.
func (b *Builder) Freeze(opts ...Option) (*Trie, error) {
	return New(b.Items(), opts...)
}
