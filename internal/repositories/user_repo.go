package repositories

import (
	"context"

	"github.com/sosiluv/farmpass/internal/database"
	"github.com/sosiluv/farmpass/internal/models"
)

// UserRepository is the read-only view of the user table the gatekeeper
// needs: identity resolution for lockout bookkeeping and the admin-role
// lookup. User lifecycle is owned by the identity provider.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, role, consent, created_at, updated_at`

func (r *UserRepository) scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.Consent,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &user, nil
}

// GetByEmail resolves a user by email, or models.ErrNotFound.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.db.Pool.QueryRow(ctx, query, email))
}

// GetByID resolves a user by account ID, or models.ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, accountID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.Pool.QueryRow(ctx, query, accountID))
}

// GetRole returns the account's role string, or models.ErrNotFound.
func (r *UserRepository) GetRole(ctx context.Context, accountID string) (string, error) {
	var role string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT role FROM users WHERE id = $1`, accountID).Scan(&role)
	if err != nil {
		return "", database.MapPostgresError(err)
	}
	return role, nil
}
