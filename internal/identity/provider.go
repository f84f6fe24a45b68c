package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/sosiluv/farmpass/internal/models"
)

// AccountInfo is the provider's view of the account returned by a successful
// credential check. The gatekeeper echoes it into the login response.
type AccountInfo struct {
	ID        string
	Email     string
	CreatedAt time.Time
	Consent   bool
}

// Provider is the boundary to the external identity service. Sessions are
// opaque to the rest of the system: only this package knows the token format
// and the cookie naming scheme.
type Provider interface {
	// GetSession resolves the session carried by the request's cookies.
	// Returns (nil, nil) when no session is present.
	GetSession(r *http.Request) (*models.Session, error)

	// RefreshSession exchanges a refresh token for a new session.
	RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error)

	// SignInWithPassword performs the provider's credential check.
	// Invalid credentials map to models.ErrUnauthorized.
	SignInWithPassword(ctx context.Context, email, password string) (*models.Session, *AccountInfo, error)

	// SignOut revokes the session at the provider.
	SignOut(ctx context.Context, accessToken string) error

	// WriteSessionCookies stores the session's tokens on the response.
	WriteSessionCookies(w http.ResponseWriter, s *models.Session)

	// ClearSessionCookies deletes every request cookie carrying the
	// provider's name prefix.
	ClearSessionCookies(w http.ResponseWriter, r *http.Request)
}
