package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
)

// File keeps the whole store as one JSON document, rewritten atomically on
// every change. Suited to a single device with a handful of keys.
type File struct {
	mu   sync.RWMutex
	path string
	data map[string][]byte
}

// OpenFile loads path, creating parent directories when needed. A missing
// file is an empty store.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	f := &File{path: path, data: make(map[string][]byte)}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f.data); err != nil {
		return nil, fmt.Errorf("failed to decode store file %s: %w", path, err)
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	value, ok := f.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(value), nil
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.data[key]
	f.data[key] = slices.Clone(value)
	if err := f.flush(); err != nil {
		if existed {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.data[key]
	if !existed {
		return nil
	}
	delete(f.data, key)
	if err := f.flush(); err != nil {
		f.data[key] = prev
		return err
	}
	return nil
}

func (f *File) Iterate(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	f.mu.RLock()
	keys := make([]string, 0, len(f.data))
	values := make(map[string][]byte)
	for k, v := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
			values[k] = slices.Clone(v)
		}
	}
	f.mu.RUnlock()

	slices.Sort(keys)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) Close() error {
	return nil
}

// flush must be called with f.mu held.
func (f *File) flush() error {
	raw, err := json.Marshal(f.data)
	if err != nil {
		return fmt.Errorf("failed to encode store file: %w", err)
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to write store file %s: %w", f.path, err)
	}
	return nil
}
