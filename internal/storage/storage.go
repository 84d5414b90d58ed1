// Package storage provides the named byte streams compiled tries are
// persisted through.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrInvalidName is returned for names that would escape the storage root.
var ErrInvalidName = errors.New("storage: invalid name")

// IOError reports a failed storage operation on a named stream.
type IOError struct {
	Op   string
	Name string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// WriteStream is a stream whose content becomes visible under its name only
// when Close succeeds. Abort discards everything written so far.
type WriteStream interface {
	io.WriteCloser
	Abort() error
}

// Storage opens named byte streams.
type Storage interface {
	OpenRead(name string) (io.ReadCloser, error)
	OpenWrite(name string) (WriteStream, error)
	// UniqueName returns a name built from variant and suffix that no
	// existing or previously handed out stream uses.
	UniqueName(variant, suffix string) (string, error)
}

// Local stores streams as files below a root directory of an afero
// filesystem. Names returned by UniqueName carry the configured prefix.
type Local struct {
	fs     afero.Fs
	root   string
	prefix string

	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewLocal returns storage rooted at root on fs.
func NewLocal(fs afero.Fs, root, prefix string) *Local {
	return &Local{
		fs:       fs,
		root:     root,
		prefix:   prefix,
		reserved: make(map[string]struct{}),
	}
}

// NewOS returns storage rooted at a directory of the host filesystem.
func NewOS(root, prefix string) *Local {
	return NewLocal(afero.NewOsFs(), root, prefix)
}

// Root returns the storage root directory.
func (l *Local) Root() string { return l.root }

func (l *Local) resolve(name string) (string, error) {
	if name == "" || path.IsAbs(name) || filepath.IsAbs(name) {
		return "", &IOError{Op: "resolve", Name: name, Err: ErrInvalidName}
	}
	clean := path.Clean(filepath.ToSlash(name))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", &IOError{Op: "resolve", Name: name, Err: ErrInvalidName}
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// OpenRead opens the named stream.
func (l *Local) OpenRead(name string) (io.ReadCloser, error) {
	p, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := l.fs.Open(p)
	if err != nil {
		return nil, &IOError{Op: "open", Name: name, Err: err}
	}
	return f, nil
}

// OpenWrite starts writing the named stream into a hidden temporary file that
// is renamed into place on Close.
func (l *Local) OpenWrite(name string) (WriteStream, error) {
	p, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(p)
	if err := l.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, &IOError{Op: "create dir", Name: name, Err: err}
	}
	tmp := filepath.Join(dir, "."+filepath.Base(p)+"."+uuid.NewString()+".tmp")
	f, err := l.fs.Create(tmp)
	if err != nil {
		return nil, &IOError{Op: "create", Name: name, Err: err}
	}
	return &atomicFile{fs: l.fs, f: f, tmp: tmp, dst: p, name: name}, nil
}

// UniqueName returns prefix+variant+suffix, or the first of
// prefix+variant+"1"+suffix, prefix+variant+"2"+suffix, ... that is free.
func (l *Local) UniqueName(variant, suffix string) (string, error) {
	if strings.ContainsAny(variant, `/\`) || strings.ContainsAny(suffix, `/\`) {
		return "", &IOError{Op: "unique name", Name: variant + suffix, Err: ErrInvalidName}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for n := 0; ; n++ {
		name := l.prefix + variant + suffix
		if n > 0 {
			name = l.prefix + variant + strconv.Itoa(n) + suffix
		}
		if _, taken := l.reserved[name]; taken {
			continue
		}
		p, err := l.resolve(name)
		if err != nil {
			return "", err
		}
		exists, err := afero.Exists(l.fs, p)
		if err != nil {
			return "", &IOError{Op: "stat", Name: name, Err: err}
		}
		if !exists {
			l.reserved[name] = struct{}{}
			return name, nil
		}
	}
}

// Remove deletes the named stream.
func (l *Local) Remove(name string) error {
	p, err := l.resolve(name)
	if err != nil {
		return err
	}
	if err := l.fs.Remove(p); err != nil && !os.IsNotExist(err) {
		return &IOError{Op: "remove", Name: name, Err: err}
	}
	return nil
}

type atomicFile struct {
	fs   afero.Fs
	f    afero.File
	tmp  string
	dst  string
	name string
	done bool
}

func (a *atomicFile) Write(p []byte) (int, error) {
	if a.done {
		return 0, &IOError{Op: "write", Name: a.name, Err: os.ErrClosed}
	}
	n, err := a.f.Write(p)
	if err != nil {
		return n, &IOError{Op: "write", Name: a.name, Err: err}
	}
	return n, nil
}

func (a *atomicFile) Close() error {
	if a.done {
		return nil
	}
	a.done = true
	if err := a.f.Sync(); err != nil {
		_ = a.f.Close()
		_ = a.fs.Remove(a.tmp)
		return &IOError{Op: "sync", Name: a.name, Err: err}
	}
	if err := a.f.Close(); err != nil {
		_ = a.fs.Remove(a.tmp)
		return &IOError{Op: "close", Name: a.name, Err: err}
	}
	if err := a.fs.Rename(a.tmp, a.dst); err != nil {
		_ = a.fs.Remove(a.tmp)
		return &IOError{Op: "rename", Name: a.name, Err: err}
	}
	return nil
}

func (a *atomicFile) Abort() error {
	if a.done {
		return nil
	}
	a.done = true
	_ = a.f.Close()
	if err := a.fs.Remove(a.tmp); err != nil && !os.IsNotExist(err) {
		return &IOError{Op: "abort", Name: a.name, Err: err}
	}
	return nil
}
