package background

import (
	"context"
	"log/slog"
	"time"
)

// AttemptPurger deletes attempt ledger entries older than a cutoff
type AttemptPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// BlockPurger deletes lifted blocks older than a cutoff. Active blocks are
// never purged regardless of age.
type BlockPurger interface {
	DeleteInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ResetCodePurger deletes expired password reset codes
type ResetCodePurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CleanupManager periodically purges expired reset codes, old ledger entries
// and stale lifted blocks from the database
type CleanupManager struct {
	attempts   AttemptPurger
	blocks     BlockPurger
	resetCodes ResetCodePurger
	logger     *slog.Logger
	interval   time.Duration
	retention  time.Duration
	stopCh     chan struct{}
}

// NewCleanupManager creates a new cleanup manager. retention bounds how long
// attempt records and lifted blocks are kept.
func NewCleanupManager(
	attempts AttemptPurger,
	blocks BlockPurger,
	resetCodes ResetCodePurger,
	logger *slog.Logger,
	interval time.Duration,
	retention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		attempts:   attempts,
		blocks:     blocks,
		resetCodes: resetCodes,
		logger:     logger,
		interval:   interval,
		retention:  retention,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now()
	cutoff := now.Add(-cm.retention)

	if codes, err := cm.resetCodes.DeleteExpired(cleanupCtx, now); err != nil {
		cm.logger.Error("failed to purge expired reset codes", slog.Any("error", err))
	} else if codes > 0 {
		cm.logger.Info("purged expired reset codes", slog.Int64("rows_deleted", codes))
	}

	if attempts, err := cm.attempts.DeleteOlderThan(cleanupCtx, cutoff); err != nil {
		cm.logger.Error("failed to purge old attempt records", slog.Any("error", err))
	} else if attempts > 0 {
		cm.logger.Info("purged old attempt records", slog.Int64("rows_deleted", attempts))
	}

	if blocks, err := cm.blocks.DeleteInactiveOlderThan(cleanupCtx, cutoff); err != nil {
		cm.logger.Error("failed to purge lifted blocks", slog.Any("error", err))
	} else if blocks > 0 {
		cm.logger.Info("purged lifted blocks", slog.Int64("rows_deleted", blocks))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
