package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/bass5068/bottle-redeem/internal/config"
)

type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context, retention time.Duration) (int64, error)
}

// StartTokenPurgeJob deletes unused tokens that expired more than TokenPurgeRetention ago.
func StartTokenPurgeJob(ctx context.Context, cfg config.Config, purger TokenPurger) {
	if !cfg.TokenPurgeJobEnabled {
		return
	}
	if purger == nil {
		slog.Warn("token purge job disabled: no purger configured")
		return
	}
	interval := cfg.TokenPurgeInterval
	if interval <= 0 {
		interval = time.Hour
	}
	retention := cfg.TokenPurgeRetention
	if retention < 0 {
		retention = 0
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				deleted, err := purger.PurgeExpiredTokens(tickCtx, retention)
				cancel()
				if err != nil {
					slog.Error("token purge job failed", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("token purge job removed expired tokens", "count", deleted)
				}
			}
		}
	}()
}
