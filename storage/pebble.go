package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
)

// Pebble is an embedded, on-disk Store.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble database in dirname.
func OpenPebble(dirname string) (*Pebble, error) {
	db, err := pebble.Open(dirname, newPebbleOptions(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", dirname, err)
	}
	return &Pebble{db: db}, nil
}

// OpenPebbleMemory opens a pebble database on an in-memory filesystem.
func OpenPebbleMemory() (*Pebble, error) {
	db, err := pebble.Open("", newPebbleOptions(vfs.NewMem()))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory pebble store: %w", err)
	}
	return &Pebble{db: db}, nil
}

func newPebbleOptions(fs vfs.FS) *pebble.Options {
	opts := &pebble.Options{FS: fs}
	opts.ApplyCompressionSettings(func() pebble.DBCompressionSettings {
		return pebble.DBCompressionNone
	})
	return opts
}

func (p *Pebble) Get(_ context.Context, key string) ([]byte, error) {
	value, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from pebble: %w", key, err)
	}
	defer closer.Close()
	return slices.Clone(value), nil
}

func (p *Pebble) Set(_ context.Context, key string, value []byte) error {
	if err := p.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to set %s in pebble: %w", key, err)
	}
	return nil
}

func (p *Pebble) Delete(_ context.Context, key string) error {
	if err := p.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete %s from pebble: %w", key, err)
	}
	return nil
}

// Iterate reads from a snapshot so fn may write to the store.
func (p *Pebble) Iterate(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	snap := p.db.NewSnapshot()
	defer snap.Close()

	opts := &pebble.IterOptions{LowerBound: []byte(prefix)}
	if prefix != "" {
		opts.UpperBound = prefixUpperBound([]byte(prefix))
	}
	it, err := snap.NewIter(opts)
	if err != nil {
		return fmt.Errorf("failed to create pebble iterator: %w", err)
	}

	for it.First(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			_ = it.Close()
			return err
		}
		value, err := it.ValueAndErr()
		if err != nil {
			_ = it.Close()
			return fmt.Errorf("failed to read pebble value: %w", err)
		}
		if err := fn(string(it.Key()), slices.Clone(value)); err != nil {
			_ = it.Close()
			return err
		}
	}

	if err := it.Error(); err != nil {
		_ = it.Close()
		return fmt.Errorf("pebble iteration failed: %w", err)
	}
	return it.Close()
}

func (p *Pebble) Close() error {
	return p.db.Close()
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil when no such key exists.
func prefixUpperBound(prefix []byte) []byte {
	upper := slices.Clone(prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}
