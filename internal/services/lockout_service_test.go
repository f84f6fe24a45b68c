package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sosiluv/farmpass/internal/models"
)

type stubSecurityRepo struct {
	mu      sync.Mutex
	records map[string]*models.AccountSecurity // keyed by email
	findErr error
	incrErr error

	unlockOutcome models.UnlockOutcome
	unlockErr     error
	unlocked      []string

	successes []string
	released  int64
}

func newStubSecurityRepo() *stubSecurityRepo {
	return &stubSecurityRepo{records: make(map[string]*models.AccountSecurity)}
}

func (r *stubSecurityRepo) FindByEmail(_ context.Context, email string) (*models.AccountSecurity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	rec, ok := r.records[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return rec, nil
}

func (r *stubSecurityRepo) FindByAccountID(_ context.Context, accountID string) (*models.AccountSecurity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, rec := range r.records {
		if rec.AccountID == accountID {
			return rec, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *stubSecurityRepo) IncrementFailure(_ context.Context, accountID, email string, at time.Time, window time.Duration) (*models.AccountSecurity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.incrErr != nil {
		return nil, r.incrErr
	}
	rec, ok := r.records[email]
	if !ok {
		rec = &models.AccountSecurity{AccountID: accountID, Email: email}
		r.records[email] = rec
	}
	if rec.LastFailedAt != nil && at.Sub(*rec.LastFailedAt) >= window {
		rec.FailedAttempts = 0
	}
	rec.FailedAttempts++
	failedAt := at
	rec.LastFailedAt = &failedAt
	snapshot := *rec
	return &snapshot, nil
}

func (r *stubSecurityRepo) RecordLoginSuccess(_ context.Context, accountID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, accountID)
	for _, rec := range r.records {
		if rec.AccountID == accountID {
			rec.FailedAttempts = 0
			rec.LastFailedAt = nil
		}
	}
	return nil
}

func (r *stubSecurityRepo) Unlock(_ context.Context, accountID string) (models.UnlockOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlocked = append(r.unlocked, accountID)
	return r.unlockOutcome, r.unlockErr
}

func (r *stubSecurityRepo) ReleaseExpiredLocks(context.Context, time.Time) (int64, error) {
	return r.released, nil
}

type stubSettingsProvider struct {
	settings *models.Settings
	err      error
}

func (p *stubSettingsProvider) Get(context.Context) (*models.Settings, error) {
	return p.settings, p.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (s *recordingSink) Record(_ context.Context, event models.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) Events() []models.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SecurityEvent(nil), s.events...)
}

type recordingAlerts struct {
	mu         sync.Mutex
	locked     []string
	suspicious []string
}

func (a *recordingAlerts) NotifyAccountLocked(_ context.Context, email string, _ int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.locked = append(a.locked, email)
}

func (a *recordingAlerts) NotifySuspiciousAttempts(_ context.Context, email string, _ int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.suspicious = append(a.suspicious, email)
}

type lockoutFixture struct {
	svc    *LockoutService
	repo   *stubSecurityRepo
	sink   *recordingSink
	alerts *recordingAlerts
	now    time.Time
}

func newLockoutFixture(t *testing.T, settings *stubSettingsProvider) *lockoutFixture {
	t.Helper()
	if settings == nil {
		settings = &stubSettingsProvider{settings: &models.Settings{
			MaxLoginAttempts: 5,
			LockoutDuration:  30 * time.Minute,
		}}
	}

	f := &lockoutFixture{
		repo:   newStubSecurityRepo(),
		sink:   &recordingSink{},
		alerts: &recordingAlerts{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewLockoutService(f.repo, settings, f.sink, f.alerts,
		5, 30*time.Minute, slog.New(slog.DiscardHandler))
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestLockoutService_EvaluateUnknownEmailIsClean(t *testing.T) {
	f := newLockoutFixture(t, nil)

	status := f.svc.Evaluate(context.Background(), "nobody@example.com")

	assert.False(t, status.IsBlocked)
	assert.Equal(t, 5, status.RemainingAttempts)
	assert.Empty(t, status.AccountID)
}

func TestLockoutService_EvaluateLookupFailureFailsOpen(t *testing.T) {
	f := newLockoutFixture(t, nil)
	f.repo.findErr = errors.New("db down")

	status := f.svc.Evaluate(context.Background(), "kim@example.com")

	assert.False(t, status.IsBlocked)
}

func TestLockoutService_FailuresAccumulateAndLock(t *testing.T) {
	f := newLockoutFixture(t, nil)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		status, err := f.svc.RecordFailure(ctx, "acc-1", "kim@example.com", "1.2.3.4")
		require.NoError(t, err)
		assert.False(t, status.IsBlocked, "attempt %d must not lock", i)
		assert.Equal(t, 5-i, status.RemainingAttempts)
	}

	status, err := f.svc.RecordFailure(ctx, "acc-1", "kim@example.com", "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, status.IsBlocked)
	assert.Equal(t, 30*time.Minute, status.TimeLeft)

	evaluated := f.svc.Evaluate(ctx, "kim@example.com")
	assert.True(t, evaluated.IsBlocked)
	assert.Equal(t, "acc-1", evaluated.AccountID)
}

func TestLockoutService_ThresholdSignals(t *testing.T) {
	f := newLockoutFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.RecordFailure(ctx, "acc-1", "kim@example.com", "1.2.3.4")
		require.NoError(t, err)
	}

	events := f.sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventSuspiciousAttempts, events[0].EventType)
	assert.Equal(t, "3", events[0].Detail["attempts"])
	assert.Equal(t, models.EventAccountLocked, events[1].EventType)
	assert.Equal(t, "5", events[1].Detail["attempts"])
	require.NotNil(t, events[1].AccountID)
	assert.Equal(t, "acc-1", *events[1].AccountID)

	f.alerts.mu.Lock()
	defer f.alerts.mu.Unlock()
	assert.Equal(t, []string{"kim@example.com"}, f.alerts.suspicious)
	assert.Equal(t, []string{"kim@example.com"}, f.alerts.locked)
}

func TestLockoutService_LockExpiresWithTime(t *testing.T) {
	f := newLockoutFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.RecordFailure(ctx, "acc-1", "kim@example.com", "1.2.3.4")
		require.NoError(t, err)
	}
	require.True(t, f.svc.Evaluate(ctx, "kim@example.com").IsBlocked)

	f.now = f.now.Add(30 * time.Minute)

	status := f.svc.Evaluate(ctx, "kim@example.com")
	assert.False(t, status.IsBlocked)
	assert.Equal(t, 5, status.RemainingAttempts, "elapsed window restores the full budget")
}

func TestLockoutService_SettingsChangeAppliesOnRead(t *testing.T) {
	settings := &stubSettingsProvider{settings: &models.Settings{
		MaxLoginAttempts: 5,
		LockoutDuration:  30 * time.Minute,
	}}
	f := newLockoutFixture(t, settings)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.RecordFailure(ctx, "acc-1", "kim@example.com", "1.2.3.4")
		require.NoError(t, err)
	}
	require.True(t, f.svc.Evaluate(ctx, "kim@example.com").IsBlocked)

	// Shortening the lockout releases the account on the next read.
	settings.settings = &models.Settings{MaxLoginAttempts: 5, LockoutDuration: 0}

	f.now = f.now.Add(time.Second)
	assert.False(t, f.svc.Evaluate(ctx, "kim@example.com").IsBlocked)
}

func TestLockoutService_SettingsFailureUsesDefaults(t *testing.T) {
	f := newLockoutFixture(t, &stubSettingsProvider{err: errors.New("cache cold")})

	status := f.svc.Evaluate(context.Background(), "kim@example.com")

	assert.Equal(t, 5, status.RemainingAttempts)
}

func TestLockoutService_RecordSuccessResetsCounter(t *testing.T) {
	f := newLockoutFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RecordFailure(ctx, "acc-1", "kim@example.com", "1.2.3.4")
	require.NoError(t, err)

	require.NoError(t, f.svc.RecordSuccess(ctx, "acc-1"))

	status := f.svc.Evaluate(ctx, "kim@example.com")
	assert.Equal(t, 5, status.RemainingAttempts)
}

func TestLockoutService_UnlockEmitsOnceAndIsIdempotent(t *testing.T) {
	f := newLockoutFixture(t, nil)
	ctx := context.Background()

	f.repo.unlockOutcome = models.UnlockPerformed
	outcome, err := f.svc.Unlock(ctx, "acc-1", "admin-9")
	require.NoError(t, err)
	assert.Equal(t, models.UnlockPerformed, outcome)

	f.repo.unlockOutcome = models.UnlockAlreadyUnlocked
	outcome, err = f.svc.Unlock(ctx, "acc-1", "admin-9")
	require.NoError(t, err)
	assert.Equal(t, models.UnlockAlreadyUnlocked, outcome)

	events := f.sink.Events()
	require.Len(t, events, 1, "only the state change is audited")
	assert.Equal(t, models.EventAccountUnlocked, events[0].EventType)
	assert.Equal(t, "admin-9", events[0].Detail["actor_id"])
}

func TestLockoutService_StatusForUnknownAccount(t *testing.T) {
	f := newLockoutFixture(t, nil)

	status, err := f.svc.Status(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, status.IsBlocked)
	assert.Equal(t, 5, status.RemainingAttempts)
	assert.Equal(t, "ghost", status.AccountID)
}
