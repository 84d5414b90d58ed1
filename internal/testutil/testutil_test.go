package testutil_test

import (
	"testing"

	"github.com/microsoft/python-inference-script-sub000/internal/testutil"
	"github.com/microsoft/python-inference-script-sub000/internal/trie"
)

func TestRandomPairs_DeterministicAndDistinct(t *testing.T) {
	a := testutil.RandomPairs(7, 200)
	b := testutil.RandomPairs(7, 200)

	if len(a) != 200 {
		t.Fatalf("len = %d; want 200", len(a))
	}

	seen := make(map[string]bool)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("pair %d differs between runs: %v vs %v", i, a[i], b[i])
		}
		if a[i].Key == "" || seen[a[i].Key] {
			t.Fatalf("pair %d has empty or duplicate key %q", i, a[i].Key)
		}
		seen[a[i].Key] = true
	}
}

func TestSaveTrie_RoundTrip(t *testing.T) {
	s := testutil.MemStorage(t)
	pairs := testutil.RandomPairs(1, 500)

	name := testutil.SaveTrie(t, s, pairs)

	tr, err := trie.Restore(s, name)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	testutil.AssertTrieContents(t, tr, testutil.PairMap(pairs))
}
