package models

import "time"

// Session is the time-bounded proof of identity issued by the external
// identity provider. The gatekeeper only reads it; refresh goes through the
// provider and the token contents are never edited locally.
type Session struct {
	SubjectID    string
	Email        string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Refreshable  bool
}

// Expired reports whether the session has passed its expiry instant.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NearExpiry reports whether the session is still valid but inside the
// proactive-refresh buffer.
func (s *Session) NearExpiry(now time.Time, buffer time.Duration) bool {
	if s.Expired(now) {
		return false
	}
	return s.ExpiresAt.Sub(now) < buffer
}
