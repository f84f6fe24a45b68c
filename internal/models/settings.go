package models

import "time"

// Settings is the process-wide configuration snapshot read through the TTL
// cache. Externally owned; the gatekeeper treats it as read-only and
// eventually consistent.
type Settings struct {
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	MaintenanceMode  bool
	UpdatedAt        time.Time
}
