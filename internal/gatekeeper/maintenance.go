package gatekeeper

import (
	"context"
	"log/slog"

	"github.com/sosiluv/farmpass/internal/models"
)

// SettingsReader serves the cached settings snapshot.
type SettingsReader interface {
	Get(ctx context.Context) (*models.Settings, error)
}

// AdminChecker reports whether an account holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, accountID string) (bool, error)
}

// MaintenanceGate blocks protected requests while maintenance mode is on,
// letting admins through. Maintenance is a self-imposed throttle rather than
// a security boundary, so a failing settings lookup fails OPEN: requests
// pass, and the degraded mode is audited. This is the inverse of the session
// validator's fail-closed policy, and intentionally so.
type MaintenanceGate struct {
	settings        SettingsReader
	admins          AdminChecker
	audit           AuditRecorder
	maintenancePath string
	logger          *slog.Logger
}

func NewMaintenanceGate(settings SettingsReader, admins AdminChecker, audit AuditRecorder, maintenancePath string, logger *slog.Logger) *MaintenanceGate {
	if audit == nil {
		audit = NopAuditRecorder{}
	}
	return &MaintenanceGate{
		settings:        settings,
		admins:          admins,
		audit:           audit,
		maintenancePath: maintenancePath,
		logger:          logger,
	}
}

// Check returns true when the request may pass. Callers only invoke it for
// protected paths; the maintenance surface itself always passes so blocked
// users can see it.
func (g *MaintenanceGate) Check(ctx context.Context, path, subjectID string) bool {
	if path == g.maintenancePath {
		return true
	}

	settings, err := g.settings.Get(ctx)
	if err != nil {
		g.logger.Error("maintenance flag lookup failed, failing open",
			slog.Any("error", err))
		g.audit.Record(ctx, models.SecurityEvent{
			EventType: models.EventDegradedMode,
			Detail:    map[string]string{"component": "maintenance_gate", "error": err.Error()},
		})
		return true
	}

	if !settings.MaintenanceMode {
		return true
	}

	if subjectID == "" {
		return false
	}

	isAdmin, err := g.admins.IsAdmin(ctx, subjectID)
	if err != nil {
		// Maintenance is known to be on but the bypass cannot be
		// verified; hold the line and block.
		g.logger.Warn("admin lookup failed during maintenance, blocking",
			slog.String("subject_id", subjectID),
			slog.Any("error", err))
		return false
	}

	return isAdmin
}
