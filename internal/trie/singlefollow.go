package trie

import "sort"

// Node tag bytes.
//
//	0x00..maxCode      single-follow, child without data (always internal)
//	maxCode+1..0xfd    single-follow, child with data (see below)
//	0xfe               edge list
//	0xff               edge table
//
// Without a single-follow table the with-data range is two blocks of
// maxCode+1 tags: leaf children, then internal children, each offset by the
// child's code. With a table, tags maxCode+1..0xfb index the table and 0xfc
// and 0xfd escape to an explicit code byte for leaf and internal children.
const (
	tagEdgeTable                = 0xff
	tagEdgeList                 = 0xfe
	tagSingleFollowMax          = 0xfd
	tagSingleFollowInternalMore = 0xfd // low bit 1: internal
	tagSingleFollowLeafMore     = 0xfc // low bit 0: leaf
	tagSingleFollowMin          = 0xfc
)

// sfInternal marks a decode table entry whose child has children of its own.
const sfInternal = 0x100

// needsSingleFollowTable reports whether the alphabet is too large to give
// every (code, leaf|internal) pair its own tag.
func needsSingleFollowTable(maxCode int) bool {
	return (maxCode+1)*3-1 > tagSingleFollowMax
}

// singleFollowTable ranks single-follow-with-data edges by frequency. enc is
// indexed by raw byte for internal children and raw byte+256 for leaves and
// holds the decode index, or -1.
type singleFollowTable struct {
	enc [512]int
	dec []uint16
}

func buildSingleFollowTable(h *histograms, tr *translation, maxCode int) *singleFollowTable {
	type rank struct {
		count uint32
		key   int
	}
	ranks := make([]rank, 0, 512)
	for i := 0; i < 256; i++ {
		if c := h.singleInternal[i]; c > 0 {
			ranks = append(ranks, rank{count: c, key: i})
		}
		if c := h.singleLeaf[i]; c > 0 {
			ranks = append(ranks, rank{count: c, key: i + 256})
		}
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].count != ranks[j].count {
			return ranks[i].count > ranks[j].count
		}
		// equal counts: higher key first, leaves before internal children
		return ranks[i].key > ranks[j].key
	})

	slots := tagSingleFollowMin - maxCode - 1
	if slots < 0 {
		slots = 0
	}
	if len(ranks) > slots {
		ranks = ranks[:slots]
	}

	sf := &singleFollowTable{dec: make([]uint16, len(ranks))}
	for i := range sf.enc {
		sf.enc[i] = -1
	}
	for idx, r := range ranks {
		sf.enc[r.key] = idx
		if r.key < 256 {
			sf.dec[idx] = uint16(tr.forward[r.key]) | sfInternal
		} else {
			sf.dec[idx] = uint16(tr.forward[r.key-256])
		}
	}
	return sf
}

// lookup returns the decode index for a child byte in the given role.
func (sf *singleFollowTable) lookup(b byte, leaf bool) (int, bool) {
	key := int(b)
	if leaf {
		key += 256
	}
	idx := sf.enc[key]
	return idx, idx >= 0
}
