package models

import "time"

// Security event types recorded by the audit trail.
const (
	EventAccountLocked      = "account_locked"
	EventSuspiciousAttempts = "suspicious_attempts"
	EventAccountUnlocked    = "account_unlocked"
	EventUnauthorizedAccess = "unauthorized_access"
	EventRateLimitBreach    = "rate_limit_breach"
	EventDegradedMode       = "degraded_mode"
)

// SecurityEvent is one row in the asynchronous security audit trail.
type SecurityEvent struct {
	ID        string
	EventType string
	AccountID *string
	IPAddress string
	Detail    map[string]string
	CreatedAt time.Time
}
