package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMem(t *testing.T) (*Local, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewLocal(fs, "/data", "dict_"), fs
}

func writeAll(t *testing.T, s Storage, name string, b []byte) {
	t.Helper()
	w, err := s.OpenWrite(name)
	require.NoError(t, err)
	_, err = w.Write(b)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readAll(t *testing.T, s Storage, name string) []byte {
	t.Helper()
	r, err := s.OpenRead(name)
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return b
}

func TestWriteVisibleOnlyAfterClose(t *testing.T) {
	s, fs := newMem(t)

	w, err := s.OpenWrite("a.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)

	exists, err := afero.Exists(fs, filepath.Join("/data", "a.bin"))
	require.NoError(t, err)
	assert.False(t, exists, "destination must not exist before Close")

	require.NoError(t, w.Close())
	assert.Equal(t, []byte("hello"), readAll(t, s, "a.bin"))

	entries, err := afero.ReadDir(fs, "/data")
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")
}

func TestAbortDiscards(t *testing.T) {
	s, fs := newMem(t)
	writeAll(t, s, "a.bin", []byte("old"))

	w, err := s.OpenWrite("a.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("new content"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	assert.Equal(t, []byte("old"), readAll(t, s, "a.bin"))
	entries, err := afero.ReadDir(fs, "/data")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestOpenReadMissing(t *testing.T) {
	s, _ := newMem(t)
	_, err := s.OpenRead("missing.bin")
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "open", ioErr.Op)
	assert.Equal(t, "missing.bin", ioErr.Name)
}

func TestRejectsEscapingNames(t *testing.T) {
	s, _ := newMem(t)
	for _, name := range []string{"", "/etc/passwd", "../x", "a/../../x", "."} {
		_, err := s.OpenRead(name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
		_, err = s.OpenWrite(name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestNestedNames(t *testing.T) {
	s, _ := newMem(t)
	writeAll(t, s, "sub/dir/a.bin", []byte{1, 2, 3})
	assert.Equal(t, []byte{1, 2, 3}, readAll(t, s, "sub/dir/a.bin"))
}

func TestUniqueNameCounter(t *testing.T) {
	s, _ := newMem(t)

	first, err := s.UniqueName("immutable_trie", ".data.bin")
	require.NoError(t, err)
	assert.Equal(t, "dict_immutable_trie.data.bin", first)

	// reserved even before anything is written
	second, err := s.UniqueName("immutable_trie", ".data.bin")
	require.NoError(t, err)
	assert.Equal(t, "dict_immutable_trie1.data.bin", second)

	writeAll(t, s, "dict_immutable_trie2.data.bin", nil)
	third, err := s.UniqueName("immutable_trie", ".data.bin")
	require.NoError(t, err)
	assert.Equal(t, "dict_immutable_trie3.data.bin", third)

	other := NewLocal(afero.NewMemMapFs(), "/data", "")
	name, err := other.UniqueName("immutable_trie", ".config.json")
	require.NoError(t, err)
	assert.Equal(t, "immutable_trie.config.json", name)
}

func TestUniqueNameRejectsSeparators(t *testing.T) {
	s, _ := newMem(t)
	for _, v := range []string{"a/b", `a\b`} {
		_, err := s.UniqueName(v, ".bin")
		assert.ErrorIs(t, err, ErrInvalidName)
	}
}

func TestRemove(t *testing.T) {
	s, fs := newMem(t)
	writeAll(t, s, "a.bin", []byte("x"))
	require.NoError(t, s.Remove("a.bin"))
	require.NoError(t, s.Remove("a.bin"))
	exists, err := afero.Exists(fs, "/data/a.bin")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStateRoundTrip(t *testing.T) {
	s, _ := newMem(t)
	st := State{
		Version: StateVersion,
		Files: map[string]FileRef{
			"data": {Name: "x.data.bin", SHA256: "ab"},
		},
	}
	require.NoError(t, WriteState(s, "x.config.json", st))

	got, err := ReadState(s, "x.config.json")
	require.NoError(t, err)
	assert.Equal(t, st, got)
	assert.Contains(t, string(readAll(t, s, "x.config.json")), `"sha256": "ab"`)
}

func TestReadStateMalformed(t *testing.T) {
	s, _ := newMem(t)
	writeAll(t, s, "bad.json", []byte("{not json"))
	_, err := ReadState(s, "bad.json")
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "decode state", ioErr.Op)
}

func TestChecksumAndVerify(t *testing.T) {
	s, _ := newMem(t)

	w, err := s.OpenWrite("a.bin")
	require.NoError(t, err)
	hw := NewHashingWriter(w)
	_, err = hw.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	const abc = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	assert.Equal(t, abc, hw.Sum())

	sum, err := Checksum(s, "a.bin")
	require.NoError(t, err)
	assert.Equal(t, abc, sum)

	require.NoError(t, Verify(s, FileRef{Name: "a.bin", SHA256: abc}))

	writeAll(t, s, "a.bin", []byte("abd"))
	err = Verify(s, FileRef{Name: "a.bin", SHA256: abc})
	assert.ErrorIs(t, err, ErrChecksum)

	err = Verify(s, FileRef{Name: "a.bin", SHA256: "nope"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrChecksum))
}
