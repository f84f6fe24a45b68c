package models

import (
	"time"
)

// User is the slice of the account profile the gatekeeper reads. Credential
// material lives with the identity provider; this row only carries the role
// needed for the maintenance-mode admin bypass and account resolution by email.
type User struct {
	ID        string
	Email     string
	Name      string
	Role      string // "user", "owner", "admin"
	Consent   bool   // privacy-policy consent flag echoed back on login
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin reports whether the user may bypass maintenance mode.
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
