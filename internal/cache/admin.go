package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sosiluv/farmpass/internal/models"
)

// RoleSource resolves an account's role from persistent storage.
type RoleSource interface {
	GetRole(ctx context.Context, accountID string) (string, error)
}

type adminEntry struct {
	isAdmin   bool
	fetchedAt time.Time
}

// AdminCache memoizes per-account admin-role lookups for the maintenance
// bypass. Same freshness contract as SettingsCache: staleness up to the TTL
// is acceptable, concurrent fetches for one account coalesce.
type AdminCache struct {
	source RoleSource
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]adminEntry

	sf  singleflight.Group
	now func() time.Time
}

func NewAdminCache(source RoleSource, ttl time.Duration, logger *slog.Logger) *AdminCache {
	return &AdminCache{
		source:  source,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]adminEntry),
		now:     time.Now,
	}
}

// IsAdmin reports whether the account holds the admin role. Unknown accounts
// are cached as non-admin rather than erroring.
func (c *AdminCache) IsAdmin(ctx context.Context, accountID string) (bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[accountID]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.isAdmin, nil
	}

	v, err, _ := c.sf.Do(accountID, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()

		role, err := c.source.GetRole(fetchCtx, accountID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				role = ""
			} else {
				return nil, err
			}
		}

		isAdmin := role == "admin"
		c.mu.Lock()
		c.entries[accountID] = adminEntry{isAdmin: isAdmin, fetchedAt: c.now()}
		c.mu.Unlock()

		return isAdmin, nil
	})
	if err != nil {
		c.logger.Warn("admin role lookup failed",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return false, err
	}

	return v.(bool), nil
}

// Invalidate drops one account's cached role, or every entry when id is empty.
func (c *AdminCache) Invalidate(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if accountID == "" {
		c.entries = make(map[string]adminEntry)
		return
	}
	delete(c.entries, accountID)
}
