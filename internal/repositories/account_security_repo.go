package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sosiluv/farmpass/internal/database"
	"github.com/sosiluv/farmpass/internal/models"
)

// AccountSecurityRepository handles database operations for the per-account
// failed-login bookkeeping. Counter mutations are single statements, so
// concurrent logins for the same account never race in Go code.
type AccountSecurityRepository struct {
	db *database.DB
}

// NewAccountSecurityRepository creates a new AccountSecurityRepository
func NewAccountSecurityRepository(db *database.DB) *AccountSecurityRepository {
	return &AccountSecurityRepository{db: db}
}

const accountSecurityColumns = `
	account_id, email, failed_attempts, last_failed_at, last_attempt_at,
	login_count, last_login_at, created_at, updated_at
`

func scanAccountSecurity(row pgx.Row) (*models.AccountSecurity, error) {
	var rec models.AccountSecurity
	err := row.Scan(
		&rec.AccountID,
		&rec.Email,
		&rec.FailedAttempts,
		&rec.LastFailedAt,
		&rec.LastAttemptAt,
		&rec.LoginCount,
		&rec.LastLoginAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &rec, nil
}

// FindByEmail returns the security record for an email, or models.ErrNotFound
// when the account has never failed a login.
func (r *AccountSecurityRepository) FindByEmail(ctx context.Context, email string) (*models.AccountSecurity, error) {
	query := `
		SELECT ` + accountSecurityColumns + `
		FROM account_security
		WHERE email = $1
	`

	return scanAccountSecurity(r.db.Pool.QueryRow(ctx, query, email))
}

// FindByAccountID returns the security record for an account ID.
func (r *AccountSecurityRepository) FindByAccountID(ctx context.Context, accountID string) (*models.AccountSecurity, error) {
	query := `
		SELECT ` + accountSecurityColumns + `
		FROM account_security
		WHERE account_id = $1
	`

	return scanAccountSecurity(r.db.Pool.QueryRow(ctx, query, accountID))
}

// IncrementFailure upserts the account's row and bumps the failure counter in
// one statement. A previous failure older than window restarts the counter at
// one instead of stacking stale attempts into a new lockout.
func (r *AccountSecurityRepository) IncrementFailure(ctx context.Context, accountID, email string, at time.Time, window time.Duration) (*models.AccountSecurity, error) {
	query := `
		INSERT INTO account_security (account_id, email, failed_attempts, last_failed_at, last_attempt_at, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $3, $3, $3)
		ON CONFLICT (account_id) DO UPDATE SET
			failed_attempts = CASE
				WHEN account_security.last_failed_at IS NULL
					OR $3::timestamptz - account_security.last_failed_at >= make_interval(secs => $4)
				THEN 1
				ELSE account_security.failed_attempts + 1
			END,
			last_failed_at = $3,
			last_attempt_at = $3,
			updated_at = $3
		RETURNING ` + accountSecurityColumns

	return scanAccountSecurity(r.db.Pool.QueryRow(ctx, query, accountID, email, at, window.Seconds()))
}

// RecordLoginSuccess clears the failure counter and bumps the login
// statistics. Upserts so the very first login also leaves a row.
func (r *AccountSecurityRepository) RecordLoginSuccess(ctx context.Context, accountID string, at time.Time) error {
	query := `
		INSERT INTO account_security (account_id, email, failed_attempts, login_count, last_login_at, last_attempt_at, created_at, updated_at)
		SELECT $1, u.email, 0, 1, $2, $2, $2, $2
		FROM users u
		WHERE u.id = $1
		ON CONFLICT (account_id) DO UPDATE SET
			failed_attempts = 0,
			last_failed_at = NULL,
			login_count = account_security.login_count + 1,
			last_login_at = $2,
			last_attempt_at = $2,
			updated_at = $2
	`

	_, err := r.db.Pool.Exec(ctx, query, accountID, at)
	return database.MapPostgresError(err)
}

// Unlock force-clears an account's failure counter. Runs in a transaction
// with a row lock so the outcome reliably distinguishes a state change from
// a no-op even when two administrators click at once.
func (r *AccountSecurityRepository) Unlock(ctx context.Context, accountID string) (models.UnlockOutcome, error) {
	outcome := models.UnlockAlreadyUnlocked

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var failedAttempts int
		err := tx.QueryRow(ctx,
			`SELECT failed_attempts FROM account_security WHERE account_id = $1 FOR UPDATE`,
			accountID,
		).Scan(&failedAttempts)
		if err == pgx.ErrNoRows {
			// No record means nothing was ever counted against the account.
			return nil
		}
		if err != nil {
			return err
		}

		if failedAttempts == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE account_security
			SET failed_attempts = 0, last_failed_at = NULL, updated_at = now()
			WHERE account_id = $1
		`, accountID)
		if err != nil {
			return err
		}

		outcome = models.UnlockPerformed
		return nil
	})
	if err != nil {
		return models.UnlockAlreadyUnlocked, database.MapPostgresError(err)
	}

	return outcome, nil
}

// ReleaseExpiredLocks zeroes counters whose last failure predates the cutoff.
// Returns the number of rows reset.
func (r *AccountSecurityRepository) ReleaseExpiredLocks(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE account_security
		SET failed_attempts = 0, last_failed_at = NULL, updated_at = now()
		WHERE failed_attempts > 0 AND last_failed_at < $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return tag.RowsAffected(), nil
}
