package repositories

import (
	"context"

	"github.com/sosiluv/farmpass/internal/database"
)

// PushSubscriptionRepository covers the gatekeeper's slice of the push
// subscription table: removing an account's subscriptions on forced logout
// and pruning subscriptions marked stale.
type PushSubscriptionRepository struct {
	db *database.DB
}

// NewPushSubscriptionRepository creates a new PushSubscriptionRepository
func NewPushSubscriptionRepository(db *database.DB) *PushSubscriptionRepository {
	return &PushSubscriptionRepository{db: db}
}

// DeleteByAccount removes every subscription registered by an account.
// Returns the number of rows removed.
func (r *PushSubscriptionRepository) DeleteByAccount(ctx context.Context, accountID string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return tag.RowsAffected(), nil
}

// DeleteStale removes subscriptions flagged stale by the delivery pipeline.
func (r *PushSubscriptionRepository) DeleteStale(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE stale = true`)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return tag.RowsAffected(), nil
}
