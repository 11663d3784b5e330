package usecase

import (
	"context"
	"time"

	"attendguard/logger"
	"attendguard/model"
)

const DefaultCleanupInterval = time.Hour

// Purger is the part of the ledger the housekeeper drives.
type Purger interface {
	PurgeOlderThan(ctx context.Context, maxAge time.Duration) (model.PurgeReport, error)
}

// Housekeeper periodically drops restriction entries older than Retention.
type Housekeeper struct {
	Ledger    Purger
	Retention time.Duration
	Interval  time.Duration
}

func NewHousekeeper(ledger Purger, retention, interval time.Duration) *Housekeeper {
	if retention <= 0 {
		retention = DefaultRestrictionRetention
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &Housekeeper{Ledger: ledger, Retention: retention, Interval: interval}
}

// RunOnce performs a single sweep.
func (h *Housekeeper) RunOnce(ctx context.Context) (model.PurgeReport, error) {
	return h.Ledger.PurgeOlderThan(ctx, h.Retention)
}

// Start sweeps once immediately and then every Interval until ctx is done.
// The returned channel is closed when the loop exits.
func (h *Housekeeper) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(h.Interval)
		defer ticker.Stop()

		for {
			if _, err := h.RunOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Error(ctx).Err(err).Msg("error cleaning up attendance restrictions")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return done
}
