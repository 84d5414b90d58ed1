package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"regexp"
	"strings"
)

// StateVersion is the only state document version understood.
const StateVersion = 1

// ErrChecksum is returned when a stream's content does not match the digest
// recorded for it.
var ErrChecksum = errors.New("storage: checksum mismatch")

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// State is the JSON document describing a persisted artifact and its files.
type State struct {
	Version int                `json:"version"`
	Files   map[string]FileRef `json:"files"`
}

// FileRef names one stream of an artifact and its SHA-256 digest.
type FileRef struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
}

// WriteState writes st as indented JSON under name.
func WriteState(s Storage, name string, st State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	w, err := s.OpenWrite(name)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}

// ReadState reads the state document stored under name.
func ReadState(s Storage, name string) (State, error) {
	r, err := s.OpenRead(name)
	if err != nil {
		return State{}, err
	}
	defer r.Close()

	var st State
	if err := json.NewDecoder(r).Decode(&st); err != nil {
		return State{}, &IOError{Op: "decode state", Name: name, Err: err}
	}
	return st, nil
}

// HashingWriter forwards writes and accumulates their SHA-256 digest.
type HashingWriter struct {
	w io.Writer
	h hash.Hash
}

// NewHashingWriter wraps w.
func NewHashingWriter(w io.Writer) *HashingWriter {
	return &HashingWriter{w: w, h: sha256.New()}
}

func (hw *HashingWriter) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	hw.h.Write(p[:n])
	return n, err
}

// Sum returns the hex digest of everything written so far.
func (hw *HashingWriter) Sum() string { return hex.EncodeToString(hw.h.Sum(nil)) }

// Checksum returns the hex SHA-256 digest of the named stream.
func Checksum(s Storage, name string) (string, error) {
	r, err := s.OpenRead(name)
	if err != nil {
		return "", err
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", &IOError{Op: "read", Name: name, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks the named stream against ref.
func Verify(s Storage, ref FileRef) error {
	if !shaHexPattern.MatchString(ref.SHA256) {
		return fmt.Errorf("storage: %s: malformed sha256 %q", ref.Name, ref.SHA256)
	}
	got, err := Checksum(s, ref.Name)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, ref.SHA256) {
		return &IOError{Op: "verify", Name: ref.Name, Err: fmt.Errorf("%w: got %s, want %s", ErrChecksum, got, ref.SHA256)}
	}
	return nil
}
