// Package jsonfile keeps a typed value backed by a JSON file. The file is read
// on first use, changes are tracked, and saves are atomic. Files ending in .zst
// or .gz are transparently compressed.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Mutable
type file[T any] struct {
	path   string
	data   *T
	loaded bool
	dirty  bool
	mu     sync.RWMutex
	opts   *options[T]
}

// File is a lazily loaded JSON document of type T.
type File[T any] = *file[T]

// New creates a File for path. Nothing is read until Get or Modify.
func New[T any](path string, opts ...Option[T]) File[T] {
	f := &file[T]{
		path: path,
		opts: &options[T]{
			indent:          "  ",
			fileMode:        0644,
			createIfMissing: true,
		},
	}
	for _, opt := range opts {
		opt(f.opts)
	}
	return f
}

// Read decodes path into a fresh T without keeping any state.
func Read[T any](path string) (*T, error) {
	f := New[T](path, WithCreateIfMissing[T](false))
	return f.Get()
}

// Path returns the backing file path.
func (f *file[T]) Path() string { return f.path }

// Get returns the current value, loading it on first call.
// Callers must not modify the result; use Modify instead.
func (f *file[T]) Get() (*T, error) {
	f.mu.RLock()
	if f.loaded {
		defer f.mu.RUnlock()
		return f.data, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return f.data, nil
	}
	return f.data, f.loadLocked()
}

// Modify runs fn on the loaded value and marks it dirty if fn succeeds.
func (f *file[T]) Modify(fn func(*T) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.loaded {
		if err := f.loadLocked(); err != nil {
			return err
		}
	}
	if err := fn(f.data); err != nil {
		return err
	}
	f.dirty = true
	return nil
}

// Save writes the value if it changed since the last load or save.
func (f *file[T]) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.dirty {
		return nil
	}
	if !f.loaded {
		return errors.New("cannot save: data not loaded")
	}
	return f.saveLocked()
}

// Reload discards unsaved changes and reads the file again.
func (f *file[T]) Reload() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loaded, f.dirty, f.data = false, false, nil
	return f.loadLocked()
}

// IsDirty reports unsaved changes.
func (f *file[T]) IsDirty() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dirty
}

func (f *file[T]) loadLocked() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read %s: %w", f.path, err)
		}
		if !f.opts.createIfMissing {
			return fmt.Errorf("file not found: %w", err)
		}
		if f.opts.defaultValue != nil {
			f.data = f.opts.defaultValue()
		} else {
			f.data = new(T)
		}
		f.loaded = true
		f.dirty = true
		return nil
	}

	plain, err := decompress(f.path, raw)
	if err != nil {
		return err
	}
	// Fields missing from the file keep their default values.
	v := new(T)
	if f.opts.defaultValue != nil {
		v = f.opts.defaultValue()
	}
	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", f.path, err)
	}
	f.data = v
	f.loaded = true
	f.dirty = false
	return nil
}

func (f *file[T]) saveLocked() error {
	var data []byte
	var err error
	if f.opts.indent != "" {
		data, err = json.MarshalIndent(f.data, "", f.opts.indent)
	} else {
		data, err = json.Marshal(f.data)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	data, err = compress(f.path, data)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, f.opts.fileMode); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	f.dirty = false
	return nil
}

func decompress(path string, raw []byte) ([]byte, error) {
	var r io.Reader
	switch {
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(path, ".gz"):
		gzr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzr.Close()
		r = gzr
	default:
		return raw, nil
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	return out, nil
}

func compress(path string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	switch {
	case strings.HasSuffix(path, ".zst"):
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		w = zw
	case strings.HasSuffix(path, ".gz"):
		w = gzip.NewWriter(&buf)
	default:
		return data, nil
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to compress %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress %s: %w", path, err)
	}
	return buf.Bytes(), nil
}
