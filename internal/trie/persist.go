package trie

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/microsoft/python-inference-script-sub000/internal/binio"
	"github.com/microsoft/python-inference-script-sub000/internal/storage"
)

// Field tags of the persisted layout, in stream order.
var (
	tagMaxCode      = binio.Tag("MCHV")
	tagPayloadWidth = binio.Tag("CBPL")
	tagTranslation  = binio.Tag("TLTB")
	tagTableSize    = binio.Tag("TSTL")
	tagTableEntry   = binio.Tag("TLSF")
	tagBlobLen      = binio.Tag("TREL")
	tagBlob         = binio.Tag("TREN")
)

// maxBlobBytes bounds the blob length accepted from a stream; offsets are at
// most 30 bits.
const maxBlobBytes = 1 << 30

// Names used by Save.
const (
	stateVariant = "immutable_trie"
	dataSuffix   = ".data.bin"
	stateSuffix  = ".config.json"
	stateDataKey = "data"
)

// Encode writes t to w in the persisted layout.
func (t *Trie) Encode(w io.Writer, opts ...Option) (int64, error) {
	o := buildOptions(opts)
	bw := binio.NewWriter(w, binio.WithTagValidation(o.validateTags))

	maxCode, width := t.maxCode, t.payloadWidth
	if width == 0 {
		// zero value: persist as an empty trie
		maxCode, width = codeAnyChar, 1
	}
	bw.WriteUint32(tagMaxCode, uint32(maxCode))
	bw.WriteUint32(tagPayloadWidth, uint32(width))
	bw.WriteBuffer(tagTranslation, t.tr.forward[:])
	if needsSingleFollowTable(maxCode) {
		bw.WriteUint32(tagTableSize, uint32(len(t.singleFollow)))
		for _, e := range t.singleFollow {
			bw.WriteUint16(tagTableEntry, e)
		}
	}
	bw.WriteUint32(tagBlobLen, uint32(len(t.blob)))
	bw.WriteBuffer(tagBlob, t.blob)
	err := bw.Flush()
	return bw.Written(), err
}

// WriteTo writes t without field tags.
func (t *Trie) WriteTo(w io.Writer) (int64, error) {
	return t.Encode(w)
}

// MarshalBinary encodes t without field tags.
func (t *Trie) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := t.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces t with the trie encoded in data.
func (t *Trie) UnmarshalBinary(data []byte) error {
	_, err := t.ReadFrom(bytes.NewReader(data))
	return err
}

// ReadFrom replaces t with a trie read from r without field tags. On error t
// is left unchanged.
func (t *Trie) ReadFrom(r io.Reader) (int64, error) {
	return t.decode(r, options{})
}

// Load reads a trie written by Compile or Encode.
func Load(r io.Reader, opts ...Option) (*Trie, error) {
	t := &Trie{}
	if _, err := t.decode(r, buildOptions(opts)); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trie) decode(r io.Reader, o options) (int64, error) {
	br := binio.NewReader(r, binio.WithTagValidation(o.validateTags))
	fail := func(field string, err error) (int64, error) {
		return br.Consumed(), &FormatError{Offset: -1, Err: fmt.Errorf("%s: %w", field, err)}
	}

	var nt Trie
	maxCode, err := br.ReadUint32(tagMaxCode)
	if err != nil {
		return fail("max code", err)
	}
	if maxCode < codeAnyChar || maxCode > maxCodeLimit {
		return fail("max code", fmt.Errorf("%w: %d out of range", ErrCorrupt, maxCode))
	}
	nt.maxCode = int(maxCode)

	width, err := br.ReadUint32(tagPayloadWidth)
	if err != nil {
		return fail("payload width", err)
	}
	if width < 1 || width > 4 {
		return fail("payload width", fmt.Errorf("%w: %d", ErrPayloadWidth, width))
	}
	nt.payloadWidth = int(width)

	if err := br.ReadBuffer(tagTranslation, nt.tr.forward[:]); err != nil {
		return fail("translation table", err)
	}
	if got := nt.tr.maxForwardCode(); got > nt.maxCode {
		return fail("translation table", fmt.Errorf("%w: code %d above max code %d", ErrCorrupt, got, nt.maxCode))
	}
	nt.tr.buildInverse()

	if needsSingleFollowTable(nt.maxCode) {
		nt.sfTable = true
		size, err := br.ReadUint32(tagTableSize)
		if err != nil {
			return fail("single-follow table size", err)
		}
		if int(size) > tagSingleFollowMin-nt.maxCode-1 {
			return fail("single-follow table size", fmt.Errorf("%w: %d entries", ErrCorrupt, size))
		}
		nt.singleFollow = make([]uint16, size)
		for i := range nt.singleFollow {
			e, err := br.ReadUint16(tagTableEntry)
			if err != nil {
				return fail("single-follow table", err)
			}
			if code := int(e &^ sfInternal); e > sfInternal|0xff || code == codeNoMatch || code > nt.maxCode {
				return fail("single-follow table", fmt.Errorf("%w: entry %d is %#x", ErrCorrupt, i, e))
			}
			nt.singleFollow[i] = e
		}
	}

	n, err := br.ReadUint32(tagBlobLen)
	if err != nil {
		return fail("blob length", err)
	}
	if n > maxBlobBytes {
		return fail("blob length", fmt.Errorf("%w: %d bytes", ErrCorrupt, n))
	}
	if nt.blob, err = br.ReadBufferN(tagBlob, int(n)); err != nil {
		return fail("blob", err)
	}

	*t = nt
	return br.Consumed(), nil
}

// Compile builds a trie from pairs and writes it to w.
func Compile(pairs []Pair, w io.Writer, opts ...Option) error {
	t, err := New(pairs, opts...)
	if err != nil {
		return err
	}
	_, err = t.Encode(w, opts...)
	return err
}

// CompileTo compiles pairs into the named stream of s. The stream is aborted
// on any error so no partial trie becomes visible.
func CompileTo(s storage.Storage, name string, pairs []Pair, opts ...Option) error {
	t, err := New(pairs, opts...)
	if err != nil {
		return err
	}
	return t.EncodeTo(s, name, opts...)
}

// EncodeTo writes t to the named stream of s. The stream is aborted on any
// error so no partial trie becomes visible under name.
func (t *Trie) EncodeTo(s storage.Storage, name string, opts ...Option) error {
	_, err := t.writeStream(s, name, opts)
	return err
}

// writeStream encodes t into the named stream and returns its digest.
func (t *Trie) writeStream(s storage.Storage, name string, opts []Option) (string, error) {
	w, err := s.OpenWrite(name)
	if err != nil {
		return "", err
	}
	hw := storage.NewHashingWriter(w)
	if _, err := t.Encode(hw, opts...); err != nil {
		_ = w.Abort()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return hw.Sum(), nil
}

// Save writes t to a fresh data stream of s followed by a state document that
// references it, and returns the state document's name.
func (t *Trie) Save(s storage.Storage, opts ...Option) (string, error) {
	dataName, stateName, err := reserveNames(s)
	if err != nil {
		return "", err
	}
	sum, err := t.writeStream(s, dataName, opts)
	if err != nil {
		return "", err
	}
	st := storage.State{
		Version: storage.StateVersion,
		Files: map[string]storage.FileRef{
			stateDataKey: {Name: dataName, SHA256: sum},
		},
	}
	if err := storage.WriteState(s, stateName, st); err != nil {
		return "", err
	}
	return stateName, nil
}

// reserveNames picks a data name from s whose derived state name is not
// taken either.
func reserveNames(s storage.Storage) (dataName, stateName string, err error) {
	for {
		dataName, err = s.UniqueName(stateVariant, dataSuffix)
		if err != nil {
			return "", "", err
		}
		stateName = strings.TrimSuffix(dataName, dataSuffix) + stateSuffix
		var taken bool
		if taken, err = exists(s, stateName); err != nil {
			return "", "", err
		}
		if !taken {
			return dataName, stateName, nil
		}
	}
}

func exists(s storage.Storage, name string) (bool, error) {
	r, err := s.OpenRead(name)
	if err == nil {
		_ = r.Close()
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Restore loads the trie referenced by the state document stateName after
// verifying the data stream's digest.
func Restore(s storage.Storage, stateName string, opts ...Option) (*Trie, error) {
	st, err := storage.ReadState(s, stateName)
	if err != nil {
		return nil, err
	}
	if st.Version != storage.StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, st.Version)
	}
	ref, ok := st.Files[stateDataKey]
	if !ok || ref.Name == "" {
		return nil, &FormatError{Offset: -1, Err: errors.New("state document has no data file")}
	}
	if err := storage.Verify(s, ref); err != nil {
		return nil, err
	}

	r, err := s.OpenRead(ref.Name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Load(r, opts...)
}
