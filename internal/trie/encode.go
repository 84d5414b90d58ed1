package trie

import (
	"fmt"
	"math/bits"
)

// maxEdgeListSize is the largest fan-out stored as an edge list; wider nodes
// use an edge table.
const maxEdgeListSize = 15

// Magic patterns in the second byte of edge-list and edge-table nodes.
const (
	magicEdgeList      = 0x80 // 10cc ccww: c = child count, w = offset width-1
	magicEdgeListMask  = 0xc0
	magicEdgeTable     = 0xac // 1010 11ww
	magicEdgeTableMask = 0xfc
)

// Status bits in the low two bits of a packed child offset.
const (
	offsetInternal = 1
	offsetHasData  = 2
)

// encoder writes a build tree depth first into a flat, self-relative blob.
//
// A node's own value is never part of its encoding: the parent writes it just
// before the position the child's edge points at, so a cursor for a child
// always sits right after that child's payload.
type encoder struct {
	tr           *translation
	maxCode      int
	payloadWidth int
	sf           *singleFollowTable
}

func (e *encoder) encodeNode(dst []byte, n *buildNode) ([]byte, error) {
	switch k := len(n.children); {
	case k == 0:
		return dst, nil
	case k == 1:
		return e.encodeSingleFollow(dst, n.children[0])
	case k <= maxEdgeListSize:
		return e.encodeEdgeList(dst, n)
	default:
		return e.encodeEdgeTable(dst, n)
	}
}

func (e *encoder) encodeSingleFollow(dst []byte, c *buildNode) ([]byte, error) {
	code := e.tr.forward[c.b]
	if !c.hasData {
		// a child without data is never a leaf
		dst = append(dst, code)
		return e.encodeNode(dst, c)
	}

	leaf := c.isLeaf()
	switch {
	case e.sf == nil:
		tag := int(code) + e.maxCode + 1
		if !leaf {
			tag += e.maxCode + 1
		}
		dst = append(dst, byte(tag))
	default:
		if idx, ok := e.sf.lookup(c.b, leaf); ok {
			dst = append(dst, byte(idx+e.maxCode+1))
		} else if leaf {
			dst = append(dst, tagSingleFollowLeafMore, code)
		} else {
			dst = append(dst, tagSingleFollowInternalMore, code)
		}
	}
	dst = appendUint(dst, c.value, e.payloadWidth)
	return e.encodeNode(dst, c)
}

// encodeChildren lays out each child's payload followed by its subtree and
// returns the area with the offset of every child's node position.
func (e *encoder) encodeChildren(children []*buildNode) ([]byte, []int, error) {
	var (
		area    []byte
		offsets = make([]int, len(children))
		err     error
	)
	for i, c := range children {
		if c.hasData {
			area = appendUint(area, c.value, e.payloadWidth)
		}
		offsets[i] = len(area)
		area, err = e.encodeNode(area, c)
		if err != nil {
			return nil, nil, err
		}
	}
	return area, offsets, nil
}

func (e *encoder) encodeEdgeList(dst []byte, n *buildNode) ([]byte, error) {
	area, offsets, err := e.encodeChildren(n.children)
	if err != nil {
		return nil, err
	}
	width := offsetWidth(len(area))
	if width > 4 {
		return nil, &ConstructionError{Err: fmt.Errorf("%w: edge list area is %d bytes", ErrOffsetTooLarge, len(area))}
	}

	dst = append(dst, tagEdgeList, byte(width-1)|byte(len(n.children))<<2|magicEdgeList)
	for i, c := range n.children {
		dst = append(dst, e.tr.forward[c.b])
		dst = appendUint(dst, packOffset(c, offsets[i]), width)
	}
	return append(dst, area...), nil
}

func (e *encoder) encodeEdgeTable(dst []byte, n *buildNode) ([]byte, error) {
	area, offsets, err := e.encodeChildren(n.children)
	if err != nil {
		return nil, err
	}
	width := offsetWidth(len(area))
	if width <= 4 && uint64(len(area)) >= uint64(emptySlot(width))>>2 {
		width++
	}
	if width > 4 {
		return nil, &ConstructionError{Err: fmt.Errorf("%w: edge table area is %d bytes", ErrOffsetTooLarge, len(area))}
	}

	slots := make([]int, e.maxCode)
	for i := range slots {
		slots[i] = -1
	}
	for i, c := range n.children {
		slots[int(e.tr.forward[c.b])-1] = i
	}

	dst = append(dst, tagEdgeTable, byte(width-1)|magicEdgeTable)
	for _, i := range slots {
		if i < 0 {
			dst = appendUint(dst, emptySlot(width), width)
			continue
		}
		dst = appendUint(dst, packOffset(n.children[i], offsets[i]), width)
	}
	return append(dst, area...), nil
}

// offsetWidth is the byte count needed for offsets up to areaLen plus the two
// status bits.
func offsetWidth(areaLen int) int {
	return (bits.Len(uint(areaLen)) + 2 + 7) / 8
}

// emptySlot is the all-ones sentinel for an unused edge-table slot.
func emptySlot(width int) uint32 {
	return ^uint32(0) >> (32 - 8*width)
}

func packOffset(c *buildNode, off int) uint32 {
	v := uint32(off) << 2
	if !c.isLeaf() {
		v |= offsetInternal
	}
	if c.hasData {
		v |= offsetHasData
	}
	return v
}

// payloadWidthFor is the smallest byte count holding v, at least one.
func payloadWidthFor(v uint32) int {
	w := (bits.Len32(v) + 7) / 8
	if w == 0 {
		w = 1
	}
	return w
}

func maxValueFor(width int) uint32 {
	return ^uint32(0) >> (32 - 8*width)
}

// appendUint appends the low width bytes of x, little endian.
func appendUint(dst []byte, x uint32, width int) []byte {
	for i := 0; i < width; i++ {
		dst = append(dst, byte(x))
		x >>= 8
	}
	return dst
}

// readUint reads width little-endian bytes at pos. The caller bounds-checks.
func readUint(b []byte, pos, width int) uint32 {
	var v uint32
	for i := width - 1; i >= 0; i-- {
		v = v<<8 | uint32(b[pos+i])
	}
	return v
}
