package trie

// Pair is one key with its value.
type Pair struct {
	Key   string
	Value uint32
}

// buildNode is a node of the scratch tree assembled for a single compile.
// Children keep insertion order of their first byte.
type buildNode struct {
	b        byte
	hasData  bool
	value    uint32
	children []*buildNode
}

func (n *buildNode) child(b byte) *buildNode {
	for _, c := range n.children {
		if c.b == b {
			return c
		}
	}
	return nil
}

func (n *buildNode) isLeaf() bool { return len(n.children) == 0 }

type buildTree struct {
	root     buildNode
	maxValue uint32
}

// insert adds key with last-write-wins semantics and reports whether the key
// was new. Empty keys are ignored: the root has no slot for a payload.
func (t *buildTree) insert(key string, value uint32) bool {
	if key == "" {
		return false
	}
	n := &t.root
	for i := 0; i < len(key); i++ {
		c := n.child(key[i])
		if c == nil {
			c = &buildNode{b: key[i]}
			n.children = append(n.children, c)
		}
		n = c
	}
	fresh := !n.hasData
	n.hasData = true
	n.value = value
	return fresh
}

// build inserts every pair and returns the number of distinct keys added.
func (t *buildTree) build(pairs []Pair) int {
	added := 0
	for _, p := range pairs {
		if t.insert(p.Key, p.Value) {
			added++
		}
	}
	return added
}

// histograms holds byte statistics gathered from a finished tree.
type histograms struct {
	chars [256]uint32
	// single-child nodes whose child carries data, split by the child's role
	singleLeaf     [256]uint32
	singleInternal [256]uint32
}

// collect walks the tree without recursion and records every edge byte and
// every single-follow-with-data edge. It also records the largest value.
func (t *buildTree) collect() *histograms {
	h := &histograms{}
	t.maxValue = 0
	stack := []*buildNode{&t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.hasData && n.value > t.maxValue {
			t.maxValue = n.value
		}
		if len(n.children) == 1 && n.children[0].hasData {
			c := n.children[0]
			if c.isLeaf() {
				h.singleLeaf[c.b]++
			} else {
				h.singleInternal[c.b]++
			}
		}
		for _, c := range n.children {
			h.chars[c.b]++
			stack = append(stack, c)
		}
	}
	return h
}
