package background

import (
	"context"
	"log/slog"
	"time"
)

// LockReleaser resets failed-attempt counters whose lockout window elapsed.
type LockReleaser interface {
	ReleaseExpiredLocks(ctx context.Context) (int64, error)
}

// SubscriptionPruner removes push subscriptions flagged stale.
type SubscriptionPruner interface {
	DeleteStale(ctx context.Context) (int64, error)
}

// CleanupManager is the periodic maintenance loop: expired lockouts are
// released eagerly (they also expire on read, this keeps the table honest)
// and stale push subscriptions are pruned.
type CleanupManager struct {
	locks         LockReleaser
	subscriptions SubscriptionPruner
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	locks LockReleaser,
	subscriptions SubscriptionPruner,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		locks:         locks,
		subscriptions: subscriptions,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
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

	released, err := cm.locks.ReleaseExpiredLocks(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to release expired lockouts", slog.Any("error", err))
	} else if released > 0 {
		cm.logger.Info("released expired lockouts", slog.Int64("accounts", released))
	}

	pruned, err := cm.subscriptions.DeleteStale(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to prune stale push subscriptions", slog.Any("error", err))
	} else if pruned > 0 {
		cm.logger.Info("pruned stale push subscriptions", slog.Int64("subscriptions", pruned))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
