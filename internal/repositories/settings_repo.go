package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/sosiluv/farmpass/internal/database"
	"github.com/sosiluv/farmpass/internal/models"
)

// SettingsRepository reads and writes the single application settings row.
type SettingsRepository struct {
	db       *database.DB
	defaults models.Settings
}

// NewSettingsRepository creates a new SettingsRepository. The defaults are
// returned when the settings row has not been seeded yet.
func NewSettingsRepository(db *database.DB, defaults models.Settings) *SettingsRepository {
	return &SettingsRepository{db: db, defaults: defaults}
}

// FetchSettings loads the settings snapshot. A missing row falls back to the
// configured defaults rather than failing every request that needs settings.
func (r *SettingsRepository) FetchSettings(ctx context.Context) (*models.Settings, error) {
	query := `
		SELECT max_login_attempts, lockout_duration_minutes, maintenance_mode, updated_at
		FROM app_settings
		WHERE id = 1
	`

	var (
		settings       models.Settings
		lockoutMinutes int
	)
	err := r.db.Pool.QueryRow(ctx, query).Scan(
		&settings.MaxLoginAttempts,
		&lockoutMinutes,
		&settings.MaintenanceMode,
		&settings.UpdatedAt,
	)
	if err != nil {
		if errors.Is(database.MapPostgresError(err), models.ErrNotFound) {
			defaults := r.defaults
			return &defaults, nil
		}
		return nil, database.MapPostgresError(err)
	}

	settings.LockoutDuration = time.Duration(lockoutMinutes) * time.Minute
	return &settings, nil
}

// UpdateSettings upserts the settings row and returns the stored snapshot.
func (r *SettingsRepository) UpdateSettings(ctx context.Context, settings *models.Settings) (*models.Settings, error) {
	query := `
		INSERT INTO app_settings (id, max_login_attempts, lockout_duration_minutes, maintenance_mode, updated_at)
		VALUES (1, $1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			max_login_attempts = $1,
			lockout_duration_minutes = $2,
			maintenance_mode = $3,
			updated_at = now()
		RETURNING max_login_attempts, lockout_duration_minutes, maintenance_mode, updated_at
	`

	var (
		stored         models.Settings
		lockoutMinutes int
	)
	err := r.db.Pool.QueryRow(ctx, query,
		settings.MaxLoginAttempts,
		int(settings.LockoutDuration/time.Minute),
		settings.MaintenanceMode,
	).Scan(
		&stored.MaxLoginAttempts,
		&lockoutMinutes,
		&stored.MaintenanceMode,
		&stored.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	stored.LockoutDuration = time.Duration(lockoutMinutes) * time.Minute
	return &stored, nil
}
