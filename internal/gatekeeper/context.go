package gatekeeper

import (
	"context"
	"net/http"

	"github.com/sosiluv/farmpass/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const sessionContextKey contextKey = "gatekeeper_session"

// WithSession injects the authenticated session into the request context.
func WithSession(ctx context.Context, session *models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext extracts the authenticated session, or nil when the
// request was admitted anonymously on a public path.
func SessionFromContext(r *http.Request) *models.Session {
	session, ok := r.Context().Value(sessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}
