package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"attendguard/logger"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendPebble = "pebble"
	BackendFile   = "file"
)

// Options selects and configures a backend.
type Options struct {
	Backend        string
	Path           string // pebble directory or file path
	RedisURL       string
	RedisKeyPrefix string
	// ConnectTimeout bounds the retries when connecting to Redis.
	ConnectTimeout time.Duration
}

// Open builds the configured store wrapped in a Fallback. A backend that
// cannot be opened does not fail startup: the returned store starts out
// failing over to memory on first use, and the failure is logged.
func Open(ctx context.Context, opts Options) (*Fallback, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewFallback(BackendMemory, NewMemory()), nil
	case BackendRedis:
		r, err := connectRedis(ctx, opts)
		if err != nil {
			return degraded(ctx, BackendRedis, err), nil
		}
		return NewFallback(BackendRedis, r), nil
	case BackendPebble:
		p, err := OpenPebble(opts.Path)
		if err != nil {
			return degraded(ctx, BackendPebble, err), nil
		}
		return NewFallback(BackendPebble, p), nil
	case BackendFile:
		f, err := OpenFile(opts.Path)
		if err != nil {
			return degraded(ctx, BackendFile, err), nil
		}
		return NewFallback(BackendFile, f), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

func connectRedis(ctx context.Context, opts Options) (*Redis, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = opts.ConnectTimeout
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = 15 * time.Second
	}

	var r *Redis
	err := backoff.RetryNotify(
		func() error {
			var err error
			r, err = NewRedis(ctx, opts.RedisURL, opts.RedisKeyPrefix)
			return err
		},
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			logger.Warn(ctx).Err(err).Dur("next", next).Msg("retrying redis connection")
		},
	)
	return r, err
}

func degraded(ctx context.Context, backend string, err error) *Fallback {
	logger.Warn(ctx).Err(err).Str("backend", backend).Msg("failed to open device store")
	return NewFallback(backend, unavailable{err: fmt.Errorf("%s store unavailable: %v", backend, err)})
}

// unavailable fails every call so that Fallback switches on first use.
type unavailable struct {
	err error
}

func (u unavailable) Get(context.Context, string) ([]byte, error) { return nil, u.err }
func (u unavailable) Set(context.Context, string, []byte) error   { return u.err }
func (u unavailable) Delete(context.Context, string) error        { return u.err }
func (u unavailable) Iterate(context.Context, string, func(string, []byte) error) error {
	return u.err
}
func (u unavailable) Close() error { return nil }
