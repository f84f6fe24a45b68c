package gatekeeper

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sosiluv/farmpass/internal/models"
)

// CounterStore is the atomic-increment contract behind the fixed-window
// limiter. Incr bumps the counter for key within the current window and
// returns the post-increment count plus the time left until the window
// resets. The increment must be atomic per key: two concurrent calls must
// never observe the same count.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

// Decision is the limiter outcome, including the header values that are
// attached regardless of allow/deny so clients can back off proactively.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int // seconds until the window resets; meaningful when denied
}

// RateLimiter applies a fixed-window counter per client key. A window
// boundary admits up to twice the limit across it (limit just before, limit
// just after); that is the documented behavior of this algorithm, accepted
// in exchange for cheap atomic counters.
type RateLimiter struct {
	store  CounterStore
	limit  int
	window time.Duration
	logger *slog.Logger
	audit  AuditRecorder
}

func NewRateLimiter(store CounterStore, limit int, window time.Duration, logger *slog.Logger, audit AuditRecorder) *RateLimiter {
	if audit == nil {
		audit = NopAuditRecorder{}
	}
	return &RateLimiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger,
		audit:  audit,
	}
}

// Check decides whether another request from key fits in the current window.
// Store failures fail open: availability wins over throttling, but the
// degraded mode is logged and audited.
func (l *RateLimiter) Check(ctx context.Context, key string) Decision {
	count, resetIn, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		l.logger.Error("rate limit store unavailable, failing open",
			slog.String("key", key),
			slog.Any("error", err))
		l.audit.Record(ctx, models.SecurityEvent{
			EventType: models.EventDegradedMode,
			IPAddress: key,
			Detail:    map[string]string{"component": "rate_limiter", "error": err.Error()},
		})
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   count <= int64(l.limit),
		Limit:     l.limit,
		Remaining: remaining,
	}
	if resetIn > 0 {
		d.RetryAfter = int((resetIn + time.Second - 1) / time.Second)
	}

	return d
}

// SetHeaders attaches the rate-limit headers for API responses. Retry-After
// is only meaningful on denial.
func (l *RateLimiter) SetHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
	}
}

type windowCounter struct {
	windowStart time.Time
	count       int64
}

// MemoryCounterStore is the single-instance CounterStore: a mutex-guarded
// map of fixed windows keyed by client IP. A background sweep prunes keys
// whose window has long elapsed so idle clients do not leak memory.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewMemoryCounterStore() *MemoryCounterStore {
	s := &MemoryCounterStore{
		counters: make(map[string]*windowCounter),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *MemoryCounterStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.windowStart.Add(window)) {
		c = &windowCounter{windowStart: now, count: 0}
		s.counters[key] = c
	}

	c.count++
	resetIn := c.windowStart.Add(window).Sub(now)

	return c.count, resetIn, nil
}

// Stop terminates the sweep goroutine.
func (s *MemoryCounterStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryCounterStore) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := s.now()
			for key, c := range s.counters {
				// Anything idle for an hour is safe to drop for any
				// plausible window size.
				if now.Sub(c.windowStart) > time.Hour {
					delete(s.counters, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}
