package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sosiluv/farmpass/internal/gatekeeper"
	"github.com/sosiluv/farmpass/internal/models"
	pkghttp "github.com/sosiluv/farmpass/pkg/http"
)

// AdminLockoutManager defines the lockout operations the admin surface needs
type AdminLockoutManager interface {
	Unlock(ctx context.Context, accountID, actorID string) (models.UnlockOutcome, error)
	Status(ctx context.Context, accountID string) (models.LockoutStatus, error)
}

// SettingsStore persists settings updates.
type SettingsStore interface {
	UpdateSettings(ctx context.Context, settings *models.Settings) (*models.Settings, error)
}

// SettingsInvalidator drops the cached settings snapshot so an update is
// visible before the TTL elapses.
type SettingsInvalidator interface {
	Invalidate()
}

// AdminHandler handles the administrative lockout and settings endpoints
type AdminHandler struct {
	lockouts AdminLockoutManager
	settings SettingsStore
	cache    SettingsInvalidator
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(lockouts AdminLockoutManager, settings SettingsStore, cache SettingsInvalidator, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		lockouts: lockouts,
		settings: settings,
		cache:    cache,
		logger:   logger,
	}
}

// UnlockResponse reports whether the unlock changed anything.
type UnlockResponse struct {
	Success bool   `json:"success"`
	Outcome string `json:"outcome"`
}

// UnlockAccount handles POST /api/admin/accounts/{id}/unlock. Idempotent: a
// second call succeeds and reports already_unlocked.
func (h *AdminHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		pkghttp.WriteBadRequest(w, "account id is required")
		return
	}

	actorID := ""
	if session := gatekeeper.SessionFromContext(r); session != nil {
		actorID = session.SubjectID
	}

	outcome, err := h.lockouts.Unlock(r.Context(), accountID, actorID)
	if err != nil {
		h.logger.Error("account unlock failed",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to unlock account")
		return
	}

	writeJSON(w, http.StatusOK, UnlockResponse{
		Success: true,
		Outcome: outcome.String(),
	})
}

// LockoutStatusResponse is the admin view of one account's lockout state.
type LockoutStatusResponse struct {
	AccountID         string `json:"accountId"`
	IsBlocked         bool   `json:"isBlocked"`
	RemainingAttempts int    `json:"remainingAttempts"`
	TimeLeft          int64  `json:"timeLeft"` // milliseconds; 0 when unblocked
}

// LockoutStatus handles GET /api/admin/accounts/{id}/lockout.
func (h *AdminHandler) LockoutStatus(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		pkghttp.WriteBadRequest(w, "account id is required")
		return
	}

	status, err := h.lockouts.Status(r.Context(), accountID)
	if err != nil {
		h.logger.Error("lockout status lookup failed",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to read lockout status")
		return
	}

	writeJSON(w, http.StatusOK, LockoutStatusResponse{
		AccountID:         status.AccountID,
		IsBlocked:         status.IsBlocked,
		RemainingAttempts: status.RemainingAttempts,
		TimeLeft:          status.TimeLeft.Milliseconds(),
	})
}

// UpdateSettingsRequest represents the request body for settings updates
type UpdateSettingsRequest struct {
	MaxLoginAttempts       int  `json:"maxLoginAttempts" validate:"required,gte=1,lte=100"`
	LockoutDurationMinutes int  `json:"lockoutDurationMinutes" validate:"required,gte=1,lte=1440"`
	MaintenanceMode        bool `json:"maintenanceMode"`
}

// UpdateSettingsResponse echoes the stored settings.
type UpdateSettingsResponse struct {
	Success                bool      `json:"success"`
	MaxLoginAttempts       int       `json:"maxLoginAttempts"`
	LockoutDurationMinutes int       `json:"lockoutDurationMinutes"`
	MaintenanceMode        bool      `json:"maintenanceMode"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// UpdateSettings handles PUT /api/admin/settings. The cached snapshot is
// invalidated on success so the change applies on the next request rather
// than after the cache TTL.
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	stored, err := h.settings.UpdateSettings(r.Context(), &models.Settings{
		MaxLoginAttempts: req.MaxLoginAttempts,
		LockoutDuration:  time.Duration(req.LockoutDurationMinutes) * time.Minute,
		MaintenanceMode:  req.MaintenanceMode,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteConflict(w, "Settings were modified concurrently")
			return
		}
		h.logger.Error("settings update failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to update settings")
		return
	}

	h.cache.Invalidate()

	h.logger.Info("settings updated",
		slog.Int("max_login_attempts", stored.MaxLoginAttempts),
		slog.Duration("lockout_duration", stored.LockoutDuration),
		slog.Bool("maintenance_mode", stored.MaintenanceMode))

	writeJSON(w, http.StatusOK, UpdateSettingsResponse{
		Success:                true,
		MaxLoginAttempts:       stored.MaxLoginAttempts,
		LockoutDurationMinutes: int(stored.LockoutDuration / time.Minute),
		MaintenanceMode:        stored.MaintenanceMode,
		UpdatedAt:              stored.UpdatedAt,
	})
}
