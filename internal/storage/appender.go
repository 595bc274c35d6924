// Package storage appends raw payloads to per-host files on the gateway.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInvalidFileName is returned for file names that are not a bare basename.
var ErrInvalidFileName = errors.New("invalid file name")

// Appender writes to files under one directory. Appends to the same file are
// serialized for the lifetime of an opened File.
type Appender struct {
	dir string

	mu    sync.Mutex
	locks map[string]*fileLock
}

type fileLock struct {
	mu   sync.Mutex
	refs int
}

// NewAppender returns an Appender for dir, or nil when dir is empty or "None".
func NewAppender(dir string) *Appender {
	if dir == "" || dir == "None" {
		return nil
	}
	return &Appender{dir: dir, locks: make(map[string]*fileLock)}
}

// CheckFileName accepts only plain basenames.
func CheckFileName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return nil
}

// Open opens <dir>/<name> for appending. The caller must Close the returned File;
// until then other Opens of the same name block.
func (a *Appender) Open(name string) (*File, error) {
	if err := CheckFileName(name); err != nil {
		return nil, err
	}
	l := a.acquire(name)
	l.mu.Lock()

	f, err := os.OpenFile(filepath.Join(a.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l.mu.Unlock()
		a.release(name)
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return &File{f: f, unlock: func() {
		l.mu.Unlock()
		a.release(name)
	}}, nil
}

func (a *Appender) acquire(name string) *fileLock {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[name]
	if !ok {
		l = &fileLock{}
		a.locks[name] = l
	}
	l.refs++
	return l
}

func (a *Appender) release(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l := a.locks[name]
	l.refs--
	if l.refs == 0 {
		delete(a.locks, name)
	}
}

// File is an open persistence file.
type File struct {
	f      *os.File
	unlock func()
	once   sync.Once
}

// lineBreaks turns line breaks into a literal \n, which trace.Lines also splits on.
var lineBreaks = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", "")

// Append writes one "<prefix>,<key>,<value>" line. Line breaks inside key or value
// are written as a literal \n.
func (f *File) Append(prefix, key, value string) error {
	_, err := f.f.WriteString(prefix + "," + lineBreaks.Replace(key) + "," + lineBreaks.Replace(value) + "\n")
	return err
}

// Close closes the file and lets the next writer in.
func (f *File) Close() error {
	var err error
	f.once.Do(func() {
		err = f.f.Close()
		f.unlock()
	})
	return err
}
