package trie

import "fmt"

// edge is one decoded transition out of a node. pos is the child's node
// position; a child with data has its value stored just before pos.
type edge struct {
	code     byte
	pos      int
	value    uint32
	hasData  bool
	internal bool
}

// nodeView is a decoded node header. The set of implementations is closed:
// matching and enumeration both switch over the same three shapes.
type nodeView interface {
	nodeView()
}

// singleFollow is a node with exactly one child.
type singleFollow struct {
	child edge
}

// edgeList is a node with up to maxEdgeListSize children stored as
// (code, offset) pairs starting at entries.
type edgeList struct {
	width   int
	count   int
	entries int
	base    int
}

// edgeTable is a node with one offset slot per code 1..maxCode stored at
// entries.
type edgeTable struct {
	width   int
	entries int
	base    int
}

func (singleFollow) nodeView() {}
func (edgeList) nodeView()     {}
func (edgeTable) nodeView()    {}

// decodeNode reads the header of the internal node at pos.
func (t *Trie) decodeNode(pos int) (nodeView, error) {
	if pos < 0 || pos >= len(t.blob) {
		return nil, corruptAt(pos)
	}
	tag := int(t.blob[pos])
	switch {
	case tag == tagEdgeList:
		if pos+1 >= len(t.blob) {
			return nil, corruptAt(pos)
		}
		m := t.blob[pos+1]
		if m&magicEdgeListMask != magicEdgeList {
			return nil, &FormatError{Offset: pos, Err: fmt.Errorf("%w: edge list byte %#02x", ErrBadMagic, m)}
		}
		v := edgeList{
			width:   int(m&3) + 1,
			count:   int(m>>2) & 0x0f,
			entries: pos + 2,
		}
		v.base = v.entries + v.count*(v.width+1)
		if v.count < 2 || v.base > len(t.blob) {
			return nil, corruptAt(pos)
		}
		return v, nil

	case tag == tagEdgeTable:
		if pos+1 >= len(t.blob) {
			return nil, corruptAt(pos)
		}
		m := t.blob[pos+1]
		if m&magicEdgeTableMask != magicEdgeTable {
			return nil, &FormatError{Offset: pos, Err: fmt.Errorf("%w: edge table byte %#02x", ErrBadMagic, m)}
		}
		v := edgeTable{width: int(m&3) + 1, entries: pos + 2}
		v.base = v.entries + t.maxCode*v.width
		if v.base > len(t.blob) {
			return nil, corruptAt(pos)
		}
		return v, nil

	case tag <= t.maxCode:
		if tag == codeNoMatch {
			return nil, corruptAt(pos)
		}
		return singleFollow{child: edge{code: byte(tag), pos: pos + 1, internal: true}}, nil
	}

	code, internal, next, err := t.singleFollowTag(pos, tag)
	if err != nil {
		return nil, err
	}
	e, err := t.makeEdge(pos, code, next+t.payloadWidth, true, internal)
	if err != nil {
		return nil, err
	}
	return singleFollow{child: e}, nil
}

// singleFollowTag resolves a with-data single-follow tag to the child's code
// and role. next is the position of the child's payload.
func (t *Trie) singleFollowTag(pos, tag int) (code byte, internal bool, next int, err error) {
	base := t.maxCode + 1
	if !t.sfTable {
		switch {
		case tag < 2*base:
			return byte(tag - base), false, pos + 1, nil
		case tag < 3*base:
			return byte(tag - 2*base), true, pos + 1, nil
		}
		return 0, false, 0, corruptAt(pos)
	}

	switch tag {
	case tagSingleFollowLeafMore, tagSingleFollowInternalMore:
		if pos+1 >= len(t.blob) {
			return 0, false, 0, corruptAt(pos)
		}
		return t.blob[pos+1], tag == tagSingleFollowInternalMore, pos + 2, nil
	}
	idx := tag - base
	if idx >= len(t.singleFollow) {
		return 0, false, 0, corruptAt(pos)
	}
	entry := t.singleFollow[idx]
	return byte(entry), entry&sfInternal != 0, pos + 1, nil
}

// makeEdge builds a bounds-checked edge to the child at pos, reading its
// value when it has one. at is the parent's position for error reporting.
func (t *Trie) makeEdge(at int, code byte, pos int, hasData, internal bool) (edge, error) {
	if code == codeNoMatch || int(code) > t.maxCode {
		return edge{}, corruptAt(at)
	}
	if pos > len(t.blob) || (internal && pos == len(t.blob)) {
		return edge{}, corruptAt(at)
	}
	e := edge{code: code, pos: pos, hasData: hasData, internal: internal}
	if hasData {
		if pos < t.payloadWidth {
			return edge{}, corruptAt(at)
		}
		e.value = readUint(t.blob, pos-t.payloadWidth, t.payloadWidth)
	}
	return e, nil
}

// packedEdge unpacks an edge-list or edge-table offset relative to base.
func (t *Trie) packedEdge(at int, code byte, base int, packed uint32) (edge, error) {
	return t.makeEdge(at, code, base+int(packed>>2), packed&offsetHasData != 0, packed&offsetInternal != 0)
}

// follow returns the edge of v labelled code.
func (t *Trie) follow(at int, v nodeView, code byte) (edge, bool, error) {
	switch n := v.(type) {
	case singleFollow:
		return n.child, n.child.code == code, nil

	case edgeList:
		for i := 0; i < n.count; i++ {
			p := n.entries + i*(n.width+1)
			if t.blob[p] != code {
				continue
			}
			e, err := t.packedEdge(at, code, n.base, readUint(t.blob, p+1, n.width))
			return e, err == nil, err
		}
		return edge{}, false, nil

	case edgeTable:
		if code == codeNoMatch || int(code) > t.maxCode {
			return edge{}, false, nil
		}
		packed := readUint(t.blob, n.entries+int(code-1)*n.width, n.width)
		if packed == emptySlot(n.width) {
			return edge{}, false, nil
		}
		e, err := t.packedEdge(at, code, n.base, packed)
		return e, err == nil, err
	}
	return edge{}, false, corruptAt(at)
}

// edges appends every edge of v to dst in encoded order.
func (t *Trie) edges(at int, v nodeView, dst []edge) ([]edge, error) {
	switch n := v.(type) {
	case singleFollow:
		return append(dst, n.child), nil

	case edgeList:
		for i := 0; i < n.count; i++ {
			p := n.entries + i*(n.width+1)
			e, err := t.packedEdge(at, t.blob[p], n.base, readUint(t.blob, p+1, n.width))
			if err != nil {
				return dst, err
			}
			dst = append(dst, e)
		}
		return dst, nil

	case edgeTable:
		empty := emptySlot(n.width)
		for c := 1; c <= t.maxCode; c++ {
			packed := readUint(t.blob, n.entries+(c-1)*n.width, n.width)
			if packed == empty {
				continue
			}
			e, err := t.packedEdge(at, byte(c), n.base, packed)
			if err != nil {
				return dst, err
			}
			dst = append(dst, e)
		}
		return dst, nil
	}
	return dst, corruptAt(at)
}
