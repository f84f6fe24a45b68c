package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/sosiluv/farmpass/internal/models"
	pkglogger "github.com/sosiluv/farmpass/pkg/logger"
)

// AccountSecurityRepository defines the persistence operations backing the
// lockout logic. Increments must be atomic at the database so concurrent
// failures for one account never lose a count.
type AccountSecurityRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.AccountSecurity, error)
	FindByAccountID(ctx context.Context, accountID string) (*models.AccountSecurity, error)
	// IncrementFailure upserts the account's security row and bumps the
	// failure counter, restarting it when the previous failure is older
	// than window. Returns the row after the increment.
	IncrementFailure(ctx context.Context, accountID, email string, at time.Time, window time.Duration) (*models.AccountSecurity, error)
	RecordLoginSuccess(ctx context.Context, accountID string, at time.Time) error
	Unlock(ctx context.Context, accountID string) (models.UnlockOutcome, error)
	ReleaseExpiredLocks(ctx context.Context, before time.Time) (int64, error)
}

// SettingsProvider serves the current lockout thresholds.
type SettingsProvider interface {
	Get(ctx context.Context) (*models.Settings, error)
}

// SecurityEventSink receives audit events emitted by the lockout flow.
type SecurityEventSink interface {
	Record(ctx context.Context, event models.SecurityEvent)
}

// AlertNotifier pushes operator notifications for lockout signals.
// Implementations must not block the caller.
type AlertNotifier interface {
	NotifyAccountLocked(ctx context.Context, email string, attempts int)
	NotifySuspiciousAttempts(ctx context.Context, email string, attempts int)
}

// LockoutService enforces the failed-login lockout policy. The lock is
// derived on every read from the stored counters and the current thresholds,
// so shortening the lockout via settings releases accounts immediately.
type LockoutService struct {
	repo     AccountSecurityRepository
	settings SettingsProvider
	audit    SecurityEventSink
	alerts   AlertNotifier
	logger   *slog.Logger

	defaultMaxAttempts int
	defaultLockout     time.Duration

	now func() time.Time
}

// NewLockoutService creates a new LockoutService. The default thresholds are
// used whenever the settings snapshot is unavailable.
func NewLockoutService(
	repo AccountSecurityRepository,
	settings SettingsProvider,
	audit SecurityEventSink,
	alerts AlertNotifier,
	defaultMaxAttempts int,
	defaultLockout time.Duration,
	logger *slog.Logger,
) *LockoutService {
	return &LockoutService{
		repo:               repo,
		settings:           settings,
		audit:              audit,
		alerts:             alerts,
		logger:             logger,
		defaultMaxAttempts: defaultMaxAttempts,
		defaultLockout:     defaultLockout,
		now:                time.Now,
	}
}

// limits resolves the active thresholds, falling back to the configured
// defaults when the settings source is unavailable.
func (s *LockoutService) limits(ctx context.Context) (int, time.Duration) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Warn("settings unavailable, using default lockout thresholds",
			slog.Any("error", err))
		return s.defaultMaxAttempts, s.defaultLockout
	}
	return settings.MaxLoginAttempts, settings.LockoutDuration
}

// MaxAttempts reports the active attempt budget, for callers that echo it
// after the counter has been reset.
func (s *LockoutService) MaxAttempts(ctx context.Context) int {
	maxAttempts, _ := s.limits(ctx)
	return maxAttempts
}

// Evaluate is the pre-credential check for a login attempt. A blocked result
// must short-circuit the login before any credential verification. Lookup
// failures fail open so a database incident cannot lock everyone out.
func (s *LockoutService) Evaluate(ctx context.Context, email string) models.LockoutStatus {
	maxAttempts, lockout := s.limits(ctx)

	record, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("lockout lookup failed, failing open",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.Any("error", err))
		}
		return models.LockoutStatus{RemainingAttempts: maxAttempts}
	}

	return s.status(record, maxAttempts, lockout)
}

// Status reports the lockout state for a known account.
func (s *LockoutService) Status(ctx context.Context, accountID string) (models.LockoutStatus, error) {
	maxAttempts, lockout := s.limits(ctx)

	record, err := s.repo.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.LockoutStatus{RemainingAttempts: maxAttempts, AccountID: accountID}, nil
		}
		return models.LockoutStatus{}, err
	}

	return s.status(record, maxAttempts, lockout), nil
}

func (s *LockoutService) status(record *models.AccountSecurity, maxAttempts int, lockout time.Duration) models.LockoutStatus {
	now := s.now()

	if record.Locked(now, maxAttempts, lockout) {
		return models.LockoutStatus{
			IsBlocked: true,
			TimeLeft:  lockout - now.Sub(*record.LastFailedAt),
			AccountID: record.AccountID,
		}
	}

	remaining := maxAttempts - record.FailedAttempts
	if record.LastFailedAt == nil || now.Sub(*record.LastFailedAt) >= lockout {
		// Counter is stale: the window has elapsed, so the next failure
		// restarts it.
		remaining = maxAttempts
	}
	if remaining < 0 {
		remaining = 0
	}

	return models.LockoutStatus{
		RemainingAttempts: remaining,
		AccountID:         record.AccountID,
	}
}

// RecordFailure registers a failed credential check and emits the threshold
// signals. The increment is a single atomic statement, so two simultaneous
// failures both land.
func (s *LockoutService) RecordFailure(ctx context.Context, accountID, email, ipAddress string) (models.LockoutStatus, error) {
	maxAttempts, lockout := s.limits(ctx)

	record, err := s.repo.IncrementFailure(ctx, accountID, email, s.now(), lockout)
	if err != nil {
		s.logger.Error("failed to record login failure",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return models.LockoutStatus{RemainingAttempts: maxAttempts}, err
	}

	attempts := record.FailedAttempts
	suspiciousAt := (maxAttempts + 1) / 2

	switch {
	case attempts == maxAttempts:
		s.logger.Warn("account locked after repeated login failures",
			slog.String("account_id", accountID),
			slog.Int("attempts", attempts))
		s.audit.Record(ctx, models.SecurityEvent{
			EventType: models.EventAccountLocked,
			AccountID: &record.AccountID,
			IPAddress: ipAddress,
			Detail: map[string]string{
				"attempts": strconv.Itoa(attempts),
			},
		})
		if s.alerts != nil {
			s.alerts.NotifyAccountLocked(ctx, email, attempts)
		}

	case attempts == suspiciousAt:
		s.audit.Record(ctx, models.SecurityEvent{
			EventType: models.EventSuspiciousAttempts,
			AccountID: &record.AccountID,
			IPAddress: ipAddress,
			Detail: map[string]string{
				"attempts": strconv.Itoa(attempts),
			},
		})
		if s.alerts != nil {
			s.alerts.NotifySuspiciousAttempts(ctx, email, attempts)
		}
	}

	return s.status(record, maxAttempts, lockout), nil
}

// RecordSuccess resets the failure counter and updates the login statistics
// after a successful, unblocked sign-in.
func (s *LockoutService) RecordSuccess(ctx context.Context, accountID string) error {
	if err := s.repo.RecordLoginSuccess(ctx, accountID, s.now()); err != nil {
		s.logger.Error("failed to record login success",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return err
	}
	return nil
}

// Unlock clears an account's lockout ahead of the window. Idempotent: a
// second call reports UnlockAlreadyUnlocked and emits nothing.
func (s *LockoutService) Unlock(ctx context.Context, accountID, actorID string) (models.UnlockOutcome, error) {
	outcome, err := s.repo.Unlock(ctx, accountID)
	if err != nil {
		return outcome, err
	}

	if outcome == models.UnlockPerformed {
		s.logger.Info("account unlocked by administrator",
			slog.String("account_id", accountID),
			slog.String("actor_id", actorID))
		s.audit.Record(ctx, models.SecurityEvent{
			EventType: models.EventAccountUnlocked,
			AccountID: &accountID,
			Detail: map[string]string{
				"actor_id": actorID,
			},
		})
	}

	return outcome, nil
}

// ReleaseExpiredLocks resets counters whose lockout window has fully
// elapsed. Run periodically by the background cleaner; locks also expire
// naturally on read, this just keeps the table tidy.
func (s *LockoutService) ReleaseExpiredLocks(ctx context.Context) (int64, error) {
	_, lockout := s.limits(ctx)
	return s.repo.ReleaseExpiredLocks(ctx, s.now().Add(-lockout))
}
