package models

import "time"

// AccountSecurity is the persisted failed-login bookkeeping for one account.
// Created implicitly on the first failed login, never deleted. Whether the
// account is locked is always derived from these fields, never stored.
type AccountSecurity struct {
	AccountID      string
	Email          string
	FailedAttempts int
	LastFailedAt   *time.Time
	LastAttemptAt  *time.Time
	LoginCount     int64
	LastLoginAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Locked recomputes the lockout state from the stored counters. Recomputing
// instead of persisting a flag avoids stale locks once the window elapses.
func (a *AccountSecurity) Locked(now time.Time, maxAttempts int, lockoutDuration time.Duration) bool {
	if a.FailedAttempts < maxAttempts || a.LastFailedAt == nil {
		return false
	}
	return now.Sub(*a.LastFailedAt) < lockoutDuration
}

// LockoutStatus is the pre-check result consumed by the login flow.
// AccountID is empty when no security record exists for the email, so
// callers cannot distinguish unknown accounts from clean ones.
type LockoutStatus struct {
	IsBlocked         bool
	RemainingAttempts int
	TimeLeft          time.Duration
	AccountID         string
}

// UnlockOutcome distinguishes a state change from an idempotent no-op.
type UnlockOutcome int

const (
	UnlockPerformed UnlockOutcome = iota
	UnlockAlreadyUnlocked
)

func (o UnlockOutcome) String() string {
	if o == UnlockAlreadyUnlocked {
		return "already_unlocked"
	}
	return "unlocked"
}
