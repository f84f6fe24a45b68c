package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sosiluv/farmpass/internal/models"
)

// SettingsSource fetches the authoritative settings row.
type SettingsSource interface {
	FetchSettings(ctx context.Context) (*models.Settings, error)
}

const fetchTimeout = 3 * time.Second

// SettingsCache serves the process-wide settings snapshot with a TTL.
// A cached value is always returned immediately; once stale, a refresh runs
// in the background, and concurrent refreshes for the key coalesce into a
// single in-flight fetch. Staleness up to the TTL is an accepted tradeoff to
// keep the per-request hot path free of synchronous configuration fetches.
type SettingsCache struct {
	source SettingsSource
	ttl    time.Duration
	logger *slog.Logger

	mu        sync.RWMutex
	snapshot  *models.Settings
	fetchedAt time.Time

	sf  singleflight.Group
	now func() time.Time
}

func NewSettingsCache(source SettingsSource, ttl time.Duration, logger *slog.Logger) *SettingsCache {
	return &SettingsCache{
		source: source,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the current settings snapshot. A fresh cached value is returned
// directly; a stale one is returned immediately with a background refresh; an
// empty cache blocks on a single deduplicated fetch.
func (c *SettingsCache) Get(ctx context.Context) (*models.Settings, error) {
	c.mu.RLock()
	snapshot := c.snapshot
	age := c.now().Sub(c.fetchedAt)
	c.mu.RUnlock()

	if snapshot != nil {
		if age >= c.ttl {
			c.refreshInBackground()
		}
		return snapshot, nil
	}

	v, err, _ := c.sf.Do("settings", func() (interface{}, error) {
		// Re-check under the flight: a caller that lost the race to a
		// just-completed fetch should not trigger another one.
		c.mu.RLock()
		cached := c.snapshot
		fresh := cached != nil && c.now().Sub(c.fetchedAt) < c.ttl
		c.mu.RUnlock()
		if fresh {
			return cached, nil
		}
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Settings), nil
}

// Invalidate drops the snapshot so the next Get fetches fresh state. Called
// after admin settings updates so changes apply without waiting out the TTL.
func (c *SettingsCache) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func (c *SettingsCache) refreshInBackground() {
	go func() {
		// Detached from any request: the refresh must survive client aborts.
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		_, err, _ := c.sf.Do("settings", func() (interface{}, error) {
			return c.fetch(ctx)
		})
		if err != nil {
			c.logger.Warn("background settings refresh failed, serving stale snapshot",
				slog.Any("error", err))
		}
	}()
}

func (c *SettingsCache) fetch(ctx context.Context) (*models.Settings, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	settings, err := c.source.FetchSettings(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.snapshot = settings
	c.fetchedAt = c.now()
	c.mu.Unlock()

	return settings, nil
}
