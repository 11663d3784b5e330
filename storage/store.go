// Package storage holds the key/value stores that back device-local state:
// cached fingerprints and restriction ledgers.
//
// Nothing kept here is durable beyond the device (or the backend configured
// to stand in for it). Values are opaque bytes; callers encode JSON.
package storage

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("storage: key not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("storage: store closed")
)

// Store is a minimal key/value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Iterate calls fn for every key starting with prefix. Memory, Pebble
	// and File iterate in key order; Redis in SCAN order, possibly repeating
	// a key. Returning an error from fn stops the iteration and is returned.
	Iterate(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
	Close() error
}

// Prefixed namespaces every key of the wrapped store. Closing it does not
// close the underlying store.
type Prefixed struct {
	store  Store
	prefix string
}

func WithPrefix(store Store, prefix string) *Prefixed {
	return &Prefixed{store: store, prefix: prefix}
}

func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.store.Set(ctx, p.prefix+key, value)
}

func (p *Prefixed) Delete(ctx context.Context, key string) error {
	return p.store.Delete(ctx, p.prefix+key)
}

func (p *Prefixed) Iterate(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	return p.store.Iterate(ctx, p.prefix+prefix, func(key string, value []byte) error {
		return fn(strings.TrimPrefix(key, p.prefix), value)
	})
}

func (p *Prefixed) Close() error {
	return nil
}
