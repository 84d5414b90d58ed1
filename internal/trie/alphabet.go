package trie

// Reserved dense codes. Ordinary key bytes are numbered from codeFirstDense.
const (
	codeNoMatch    = 0
	codeSeparator  = 1
	codeAnyWord    = 2
	codeAnyChar    = 3
	codeFirstDense = 4
)

// Raw bytes pinned to the control codes regardless of frequency.
const (
	byteSeparator = ' '
	byteAnyWord   = '*'
	byteAnyChar   = '?'
)

// maxCodeLimit keeps every dense code below the reserved tag bytes
// 0xfc..0xff so a no-data single-follow tag never collides with them.
const maxCodeLimit = tagSingleFollowMin - 1

// translation maps raw key bytes to dense codes and back.
type translation struct {
	forward [256]byte
	// inverse is a best-effort reverse map used to rebuild keys during
	// enumeration. Unassigned codes map to a space.
	inverse [256]byte
}

// buildTranslation assigns dense codes to observed bytes in ascending byte
// order and returns the table with the highest code in use.
func buildTranslation(chars *[256]uint32) (translation, int, error) {
	var tr translation
	maxCode := codeAnyChar
	for i := 0; i < 256; i++ {
		b := byte(i)
		switch {
		case b == byteSeparator:
			tr.forward[i] = codeSeparator
		case b == byteAnyWord:
			tr.forward[i] = codeAnyWord
		case b == byteAnyChar:
			tr.forward[i] = codeAnyChar
		case chars[i] == 0:
			tr.forward[i] = codeNoMatch
		default:
			maxCode++
			if maxCode > maxCodeLimit {
				return translation{}, 0, &ConstructionError{Err: ErrAlphabetTooLarge}
			}
			tr.forward[i] = byte(maxCode)
		}
	}
	tr.buildInverse()
	return tr, maxCode, nil
}

func (tr *translation) buildInverse() {
	for i := range tr.inverse {
		tr.inverse[i] = byteSeparator
	}
	for i := 0; i < 256; i++ {
		tr.inverse[tr.forward[i]] = byte(i)
	}
	tr.inverse[tr.forward[byteSeparator]] = byteSeparator
	tr.inverse[codeNoMatch] = byteSeparator
}

// maxForwardCode returns the highest code present in the forward table.
func (tr *translation) maxForwardCode() int {
	m := 0
	for _, c := range tr.forward {
		if int(c) > m {
			m = int(c)
		}
	}
	return m
}
