// Package testutil provides shared fixtures for tests built on stored tries.
//
// Typical usage:
//
//	func TestMyCheck(t *testing.T) {
//	    s := testutil.MemStorage(t)
//	    state := testutil.SaveTrie(t, s, testutil.RandomPairs(1, 100))
//	    ...
//	}
package testutil

import (
	"math/rand/v2"
	"testing"

	"github.com/microsoft/python-inference-script-sub000/internal/storage"
	"github.com/microsoft/python-inference-script-sub000/internal/trie"
	"github.com/spf13/afero"
)

// MemStorage returns storage backed by an in-memory filesystem.
func MemStorage(tb testing.TB) *storage.Local {
	tb.Helper()

	return storage.NewLocal(afero.NewMemMapFs(), "/tries", "")
}

// SaveTrie compiles pairs, saves the trie to s and returns the state name.
func SaveTrie(tb testing.TB, s storage.Storage, pairs []trie.Pair, opts ...trie.Option) string {
	tb.Helper()

	tr, err := trie.New(pairs, opts...)
	if err != nil {
		tb.Fatalf("trie.New: %v", err)
	}

	name, err := tr.Save(s, opts...)
	if err != nil {
		tb.Fatalf("Save: %v", err)
	}

	return name
}

// RandomPairs returns n distinct pseudo-random pairs. The same seed always
// yields the same pairs.
func RandomPairs(seed uint64, n int) []trie.Pair {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	seen := make(map[string]bool, n)
	pairs := make([]trie.Pair, 0, n)

	for len(pairs) < n {
		b := make([]byte, 1+rng.IntN(12))
		for i := range b {
			b[i] = byte('a' + rng.IntN(26))
		}
		k := string(b)
		if seen[k] {
			continue
		}
		seen[k] = true
		pairs = append(pairs, trie.Pair{Key: k, Value: rng.Uint32()})
	}

	return pairs
}

// PairMap indexes pairs by key.
func PairMap(pairs []trie.Pair) map[string]uint32 {
	m := make(map[string]uint32, len(pairs))
	for _, p := range pairs {
		m[p.Key] = p.Value
	}

	return m
}

// AssertTrieContents fails the test unless tr holds exactly want.
func AssertTrieContents(tb testing.TB, tr *trie.Trie, want map[string]uint32) {
	tb.Helper()

	items, err := tr.Items()
	if err != nil {
		tb.Fatalf("Items: %v", err)
	}

	if len(items) != len(want) {
		tb.Fatalf("trie holds %d keys; want %d", len(items), len(want))
	}

	for _, p := range items {
		v, ok := want[p.Key]
		if !ok {
			tb.Fatalf("unexpected key %q", p.Key)
		}
		if v != p.Value {
			tb.Fatalf("enumerated %q = %d; want %d", p.Key, p.Value, v)
		}
	}

	for k, v := range want {
		got, err := tr.Match(k)
		if err != nil {
			tb.Fatalf("Match(%q): %v", k, err)
		}
		if got != v {
			tb.Fatalf("Match(%q) = %d; want %d", k, got, v)
		}
	}
}
