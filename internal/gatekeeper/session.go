package gatekeeper

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sosiluv/farmpass/internal/identity"
	"github.com/sosiluv/farmpass/internal/models"
	pkglogger "github.com/sosiluv/farmpass/pkg/logger"
)

// SessionResult is the outcome of validating the request's session.
type SessionResult int

const (
	SessionAnonymous SessionResult = iota
	SessionAuthenticated
	SessionExpired
)

func (r SessionResult) String() string {
	switch r {
	case SessionAuthenticated:
		return "authenticated"
	case SessionExpired:
		return "expired"
	default:
		return "anonymous"
	}
}

// Validation carries the session decision through the pipeline. Refreshed is
// set when a proactive refresh replaced the session's tokens, so the caller
// can re-issue cookies.
type Validation struct {
	Result    SessionResult
	Session   *models.Session
	Refreshed bool
}

// SubscriptionCleaner removes an account's push-notification subscriptions.
// Used as a best-effort side effect on forced logout.
type SubscriptionCleaner interface {
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)
}

const (
	providerTimeout = 5 * time.Second
	cleanupTimeout  = 10 * time.Second
)

// SessionValidator resolves and proactively refreshes the request session.
// Refreshes for the same subject collapse into one provider call: refresh is
// not idempotent at the provider, so concurrent near-expiry requests must
// share a single exchange.
type SessionValidator struct {
	provider      identity.Provider
	subscriptions SubscriptionCleaner
	refreshBuffer time.Duration
	logger        *slog.Logger

	refreshGroup singleflight.Group
	now          func() time.Time
}

func NewSessionValidator(provider identity.Provider, subscriptions SubscriptionCleaner, refreshBuffer time.Duration, logger *slog.Logger) *SessionValidator {
	return &SessionValidator{
		provider:      provider,
		subscriptions: subscriptions,
		refreshBuffer: refreshBuffer,
		logger:        logger,
		now:           time.Now,
	}
}

// Validate resolves the request session. Provider failures are treated as
// Anonymous: protected paths then fail closed at the classification step,
// and the pipeline keeps running instead of surfacing a 500.
func (v *SessionValidator) Validate(r *http.Request) Validation {
	session, err := v.provider.GetSession(r)
	if err != nil {
		v.logger.Warn("session resolution failed, treating as anonymous",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		return Validation{Result: SessionAnonymous}
	}
	if session == nil {
		return Validation{Result: SessionAnonymous}
	}

	now := v.now()

	if session.Expired(now) {
		return Validation{Result: SessionExpired, Session: session}
	}

	if !session.NearExpiry(now, v.refreshBuffer) {
		return Validation{Result: SessionAuthenticated, Session: session}
	}

	refreshed, err := v.refresh(r.Context(), session)
	if err != nil {
		v.logger.Info("session refresh failed, forcing re-authentication",
			slog.String("subject_id", session.SubjectID),
			slog.Any("error", err))
		return Validation{Result: SessionExpired, Session: session}
	}

	return Validation{Result: SessionAuthenticated, Session: refreshed, Refreshed: true}
}

func (v *SessionValidator) refresh(ctx context.Context, session *models.Session) (*models.Session, error) {
	result, err, _ := v.refreshGroup.Do(session.SubjectID, func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(ctx, providerTimeout)
		defer cancel()

		return v.provider.RefreshSession(refreshCtx, session.RefreshToken)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Session), nil
}

// CleanupExpired kicks off the best-effort side effects of a forced logout:
// removing the identity's push subscriptions. The work runs detached from
// the request so a client abort cannot cancel it, and the critical path
// never waits on it.
func (v *SessionValidator) CleanupExpired(ctx context.Context, session *models.Session) {
	if session == nil || session.SubjectID == "" || v.subscriptions == nil {
		return
	}

	subjectID := session.SubjectID
	email := session.Email

	go func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()

		deleted, err := v.subscriptions.DeleteByAccount(cleanupCtx, subjectID)
		if err != nil {
			v.logger.Warn("push subscription cleanup failed after session expiry",
				slog.String("subject_id", subjectID),
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.Any("error", err))
			return
		}

		if deleted > 0 {
			v.logger.Info("removed push subscriptions for expired session",
				slog.String("subject_id", subjectID),
				slog.Int64("deleted", deleted))
		}
	}()
}
