package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sosiluv/farmpass/internal/identity"
	"github.com/sosiluv/farmpass/internal/models"
	pkghttp "github.com/sosiluv/farmpass/pkg/http"
	pkglogger "github.com/sosiluv/farmpass/pkg/logger"
)

// LockoutManager defines the lockout operations the login flow needs
type LockoutManager interface {
	Evaluate(ctx context.Context, email string) models.LockoutStatus
	RecordFailure(ctx context.Context, accountID, email, ipAddress string) (models.LockoutStatus, error)
	RecordSuccess(ctx context.Context, accountID string) error
	MaxAttempts(ctx context.Context) int
}

// UserDirectory resolves local accounts for lockout bookkeeping.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuthHandler handles the login and logout endpoints
type AuthHandler struct {
	provider identity.Provider
	lockouts LockoutManager
	users    UserDirectory
	auditLog *pkglogger.AuditLogger
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	provider identity.Provider,
	lockouts LockoutManager,
	users UserDirectory,
	auditLog *pkglogger.AuditLogger,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		lockouts: lockouts,
		users:    users,
		auditLog: auditLog,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the success payload. Session tokens are also set as
// cookies; the body copy exists for non-browser clients.
type LoginResponse struct {
	Success           bool         `json:"success"`
	Message           string       `json:"message"`
	User              LoginUser    `json:"user"`
	Session           LoginSession `json:"session"`
	RemainingAttempts int          `json:"remainingAttempts"`
	Consent           bool         `json:"consent"`
}

type LoginUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// The same message covers bad credentials and unknown accounts, so the
// endpoint cannot be used to probe which emails exist.
const genericLoginFailure = "Invalid email or password"

type signInResult struct {
	session *models.Session
	info    *identity.AccountInfo
	err     error
}

// Login handles POST /api/auth/login. The credential check and the lockout
// pre-check run concurrently; a blocked account wins over valid credentials.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.UserAgent()

	signInCh := make(chan signInResult, 1)
	go func() {
		session, info, err := h.provider.SignInWithPassword(ctx, req.Email, req.Password)
		signInCh <- signInResult{session: session, info: info, err: err}
	}()

	status := h.lockouts.Evaluate(ctx, req.Email)
	signIn := <-signInCh

	if status.IsBlocked {
		// Valid credentials do not override an active lock. A session the
		// provider may have minted is revoked, not issued.
		if signIn.err == nil && signIn.session != nil {
			h.revokeUnissued(ctx, signIn.session.AccessToken)
		}
		h.auditLog.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login",
			AccountID:     status.AccountID,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			Success:       false,
			FailureReason: "account_locked",
		})
		pkghttp.WriteAccountLocked(w, status.TimeLeft.Milliseconds())
		return
	}

	if signIn.err != nil {
		if !errors.Is(signIn.err, models.ErrUnauthorized) {
			h.logger.Error("identity provider sign-in failed",
				slog.String("email", pkglogger.SanitizedEmail(req.Email)),
				slog.Any("error", signIn.err))
			pkghttp.WriteInternalError(w, "Authentication service unavailable")
			return
		}

		h.handleCredentialFailure(ctx, w, req.Email, ipAddress, userAgent)
		return
	}

	if err := h.lockouts.RecordSuccess(ctx, signIn.info.ID); err != nil {
		// Bookkeeping only; the login itself succeeded.
		h.logger.Warn("login succeeded but counter reset failed",
			slog.String("account_id", signIn.info.ID))
	}

	h.auditLog.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login",
		AccountID: signIn.info.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})

	h.provider.WriteSessionCookies(w, signIn.session)

	writeJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		Message: "Login successful",
		User: LoginUser{
			ID:        signIn.info.ID,
			Email:     signIn.info.Email,
			CreatedAt: signIn.info.CreatedAt,
		},
		Session: LoginSession{
			AccessToken:  signIn.session.AccessToken,
			RefreshToken: signIn.session.RefreshToken,
			ExpiresAt:    signIn.session.ExpiresAt,
		},
		RemainingAttempts: h.lockouts.MaxAttempts(ctx),
		Consent:           signIn.info.Consent,
	})
}

// handleCredentialFailure records the failed attempt against the local
// account, if one exists, and answers with the generic envelope. An attempt
// that trips the threshold answers as locked instead.
func (h *AuthHandler) handleCredentialFailure(ctx context.Context, w http.ResponseWriter, email, ipAddress, userAgent string) {
	failureReason := "invalid_credentials"
	accountID := ""

	user, err := h.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		accountID = user.ID
		status, recordErr := h.lockouts.RecordFailure(ctx, accountID, email, ipAddress)
		if recordErr == nil && status.IsBlocked {
			h.auditLog.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login",
				AccountID:     accountID,
				IPAddress:     ipAddress,
				UserAgent:     userAgent,
				Success:       false,
				FailureReason: "account_locked",
			})
			pkghttp.WriteAccountLocked(w, status.TimeLeft.Milliseconds())
			return
		}
	case errors.Is(err, models.ErrNotFound):
		// Unknown email: nothing to count, same answer as a wrong password.
		failureReason = "unknown_account"
	default:
		h.logger.Error("account lookup failed during login",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
	}

	h.auditLog.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login",
		AccountID:     accountID,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		Success:       false,
		FailureReason: failureReason,
	})

	pkghttp.WriteUnauthorized(w, genericLoginFailure)
}

// revokeUnissued discards a provider session that will never reach the
// client. Best effort, detached from the request.
func (h *AuthHandler) revokeUnissued(ctx context.Context, accessToken string) {
	go func() {
		revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := h.provider.SignOut(revokeCtx, accessToken); err != nil {
			h.logger.Warn("failed to revoke unissued session", slog.Any("error", err))
		}
	}()
}

// Logout handles POST /api/auth/logout. Always clears cookies, even when the
// provider-side revocation fails or no session was present.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, err := h.provider.GetSession(r)
	if err == nil && session != nil {
		if err := h.provider.SignOut(r.Context(), session.AccessToken); err != nil {
			h.logger.Warn("provider sign-out failed",
				slog.String("subject_id", session.SubjectID),
				slog.Any("error", err))
		}
	}

	h.provider.ClearSessionCookies(w, r)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
