package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"attendguard/logger"
	"attendguard/model"
	"attendguard/storage"
	"attendguard/utils"
)

// FingerprintKey is where a device keeps its cached fingerprint.
const FingerprintKey = "fingerprint"

// DefaultFingerprintValidity is how long a cached fingerprint is reused.
const DefaultFingerprintValidity = 24 * time.Hour

// FingerprintCache gives one device a stable fingerprint for a bounded window.
// Concurrent regenerations are last-writer-wins.
type FingerprintCache struct {
	store     storage.Store
	generator *FingerprintGenerator
	env       DeviceEnvironment
	validity  time.Duration
	clock     utils.Clock
}

// NewFingerprintCache binds a cache to one device's store and environment.
func NewFingerprintCache(store storage.Store, generator *FingerprintGenerator, env DeviceEnvironment, validity time.Duration) *FingerprintCache {
	if validity <= 0 {
		validity = DefaultFingerprintValidity
	}
	return &FingerprintCache{
		store:     store,
		generator: generator,
		env:       env,
		validity:  validity,
		clock:     generator.Clock,
	}
}

// GetOrCreate returns the cached fingerprint while it is younger than the
// validity window, otherwise generates and persists a new one.
func (c *FingerprintCache) GetOrCreate(ctx context.Context) (model.DeviceFingerprint, error) {
	if cached, ok := c.load(ctx); ok {
		utils.TrackCacheOperation("fingerprint", true)
		return cached, nil
	}
	utils.TrackCacheOperation("fingerprint", false)

	fp := c.generator.Generate(ctx, c.env)
	data, err := json.Marshal(fp)
	if err != nil {
		return model.DeviceFingerprint{}, fmt.Errorf("failed to marshal fingerprint: %w", err)
	}
	if err := c.store.Set(ctx, FingerprintKey, data); err != nil {
		return model.DeviceFingerprint{}, fmt.Errorf("failed to persist fingerprint: %w", err)
	}
	logger.Debug(ctx).Str("fingerprint", fp.ID).Msg("generated device fingerprint")
	return fp, nil
}

func (c *FingerprintCache) load(ctx context.Context) (model.DeviceFingerprint, bool) {
	data, err := c.store.Get(ctx, FingerprintKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn(ctx).Err(err).Msg("failed to read cached fingerprint")
		}
		return model.DeviceFingerprint{}, false
	}

	var fp model.DeviceFingerprint
	if err := json.Unmarshal(data, &fp); err != nil || fp.ID == "" {
		logger.Warn(ctx).Err(err).Msg("discarding unreadable cached fingerprint")
		return model.DeviceFingerprint{}, false
	}
	if fp.Expired(c.clock.Now(), c.validity) {
		return model.DeviceFingerprint{}, false
	}
	return fp, true
}
