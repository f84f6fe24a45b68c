package repositories

import (
	"context"

	"github.com/sosiluv/farmpass/internal/database"
	"github.com/sosiluv/farmpass/internal/models"
)

// SecurityEventRepository persists the asynchronous audit trail.
type SecurityEventRepository struct {
	db *database.DB
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

// Insert stores one audit event. Detail maps straight to jsonb.
func (r *SecurityEventRepository) Insert(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (id, event_type, account_id, ip_address, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		event.ID,
		event.EventType,
		event.AccountID,
		event.IPAddress,
		event.Detail,
		event.CreatedAt,
	)

	return database.MapPostgresError(err)
}

// ListByAccount returns the newest events for one account, most recent first.
func (r *SecurityEventRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT id, event_type, account_id, ip_address, detail, created_at
		FROM security_events
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var events []*models.SecurityEvent
	for rows.Next() {
		var event models.SecurityEvent
		if err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.AccountID,
			&event.IPAddress,
			&event.Detail,
			&event.CreatedAt,
		); err != nil {
			return nil, database.MapPostgresError(err)
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}
