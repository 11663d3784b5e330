package storage

import (
	"context"
	"errors"
	"sync"

	"attendguard/logger"
	"attendguard/utils"
)

// Fallback serves from primary until primary fails, then switches for good to
// an in-memory store. State written before the switch is not carried over:
// marking keeps working but loses cross-restart idempotence.
type Fallback struct {
	name    string
	primary Store
	memory  *Memory

	mu       sync.RWMutex
	degraded bool
}

func NewFallback(name string, primary Store) *Fallback {
	return &Fallback{name: name, primary: primary, memory: NewMemory()}
}

// Degraded reports whether the store has switched to memory.
func (f *Fallback) Degraded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.degraded
}

func (f *Fallback) active() Store {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.degraded {
		return f.memory
	}
	return f.primary
}

// fail switches to memory if err is a backend failure. It reports whether the
// caller should retry against memory.
func (f *Fallback) fail(ctx context.Context, op string, err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}

	f.mu.Lock()
	first := !f.degraded
	f.degraded = true
	f.mu.Unlock()

	if first {
		utils.StoreFallbacks.WithLabelValues(f.name).Inc()
		logger.Warn(ctx).Err(err).
			Str("backend", f.name).
			Str("op", op).
			Msg("device store unavailable, continuing with in-memory state")
	}
	return true
}

func (f *Fallback) Get(ctx context.Context, key string) ([]byte, error) {
	s := f.active()
	value, err := s.Get(ctx, key)
	if s != Store(f.memory) && f.fail(ctx, "get", err) {
		return f.memory.Get(ctx, key)
	}
	return value, err
}

func (f *Fallback) Set(ctx context.Context, key string, value []byte) error {
	s := f.active()
	err := s.Set(ctx, key, value)
	if s != Store(f.memory) && f.fail(ctx, "set", err) {
		return f.memory.Set(ctx, key, value)
	}
	return err
}

func (f *Fallback) Delete(ctx context.Context, key string) error {
	s := f.active()
	err := s.Delete(ctx, key)
	if s != Store(f.memory) && f.fail(ctx, "delete", err) {
		return f.memory.Delete(ctx, key)
	}
	return err
}

func (f *Fallback) Iterate(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	s := f.active()
	var fnErr error
	err := s.Iterate(ctx, prefix, func(key string, value []byte) error {
		if err := fn(key, value); err != nil {
			fnErr = err
			return err
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	if s != Store(f.memory) && f.fail(ctx, "iterate", err) {
		return f.memory.Iterate(ctx, prefix, fn)
	}
	return err
}

func (f *Fallback) Close() error {
	return errors.Join(f.primary.Close(), f.memory.Close())
}
