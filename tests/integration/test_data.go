package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sosiluv/farmpass/internal/models"
)

// SeedUser inserts a test user and returns it. The identity provider owns
// credentials, so only the local profile columns exist here.
func SeedUser(ctx context.Context, pool *pgxpool.Pool, email, role string) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, name, role, consent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, NOW(), NOW())
		RETURNING id, email, name, role, consent, created_at, updated_at
	`

	var user models.User
	err := pool.QueryRow(ctx, query, uuid.NewString(), email, "Test User", role).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.Consent,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return &user, nil
}

// UniqueEmail generates a unique test email address.
func UniqueEmail(suffix string) string {
	return fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
}

// SeedPushSubscription inserts one push subscription for an account.
func SeedPushSubscription(ctx context.Context, pool *pgxpool.Pool, accountID string, stale bool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO push_subscriptions (account_id, endpoint, stale)
		VALUES ($1, $2, $3)
	`, accountID, fmt.Sprintf("https://push.example/%s", uuid.NewString()), stale)
	return err
}
