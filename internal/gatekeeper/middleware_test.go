package gatekeeper

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sosiluv/farmpass/internal/models"
	pkghttp "github.com/sosiluv/farmpass/pkg/http"
)

func testPipelineConfig() Config {
	return Config{
		APIPrefix:       "/api",
		AdminPrefix:     "/api/admin",
		LoginPath:       "/login",
		MaintenancePath: "/maintenance",
	}
}

type pipelineFixture struct {
	provider *stubProvider
	settings *stubSettings
	admins   *stubAdmins
	audit    *recordingAudit
	now      time.Time
	limit    int
}

func newPipeline(t *testing.T, f pipelineFixture) (*Gatekeeper, *MemoryCounterStore) {
	t.Helper()

	if f.provider == nil {
		f.provider = &stubProvider{}
	}
	if f.settings == nil {
		f.settings = &stubSettings{settings: &models.Settings{}}
	}
	if f.admins == nil {
		f.admins = &stubAdmins{}
	}
	if f.audit == nil {
		f.audit = &recordingAudit{}
	}
	if f.now.IsZero() {
		f.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	if f.limit == 0 {
		f.limit = 100
	}

	classifier, err := NewPathClassifier(
		[]string{"/login", "/maintenance", "/health", "/api/auth/login"},
		[]string{`^/visit/[A-Za-z0-9-]+$`},
	)
	require.NoError(t, err)

	store := newTestMemoryStore(&f.now)
	limiter := NewRateLimiter(store, f.limit, 90*time.Second, testLogger(), f.audit)

	validator := NewSessionValidator(f.provider, nil, 5*time.Minute, testLogger())
	validator.now = func() time.Time { return f.now }

	gate := NewMaintenanceGate(f.settings, f.admins, f.audit, "/maintenance", testLogger())

	return New(validator, classifier, gate, limiter, f.provider, f.audit, nil, testPipelineConfig(), testLogger()), store
}

func okHandler(sawSession **models.Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sawSession != nil {
			*sawSession = SessionFromContext(r)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestGatekeeper_PublicPathAnonymousPasses(t *testing.T) {
	gk, _ := newPipeline(t, pipelineFixture{})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/login", nil)
	gk.Middleware(okHandler(nil)).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGatekeeper_VisitLinkAnonymousPasses(t *testing.T) {
	gk, _ := newPipeline(t, pipelineFixture{})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/visit/farm-abc", nil)
	gk.Middleware(okHandler(nil)).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGatekeeper_ProtectedAnonymousRedirectsToLogin(t *testing.T) {
	gk, _ := newPipeline(t, pipelineFixture{})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	gk.Middleware(okHandler(nil)).ServeHTTP(w, r)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestGatekeeper_AdminPathAnonymousIsAudited(t *testing.T) {
	audit := &recordingAudit{}
	gk, _ := newPipeline(t, pipelineFixture{audit: audit})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/admin/settings", nil)
	gk.Middleware(okHandler(nil)).ServeHTTP(w, r)

	assert.Equal(t, http.StatusFound, w.Code)

	events := audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUnauthorizedAccess, events[0].EventType)
	assert.Equal(t, "/api/admin/settings", events[0].Detail["path"])
}

func TestGatekeeper_ExpiredSessionClearedAndRedirected(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	provider := &stubProvider{session: sessionExpiringIn(-time.Minute, now)}
	gk, _ := newPipeline(t, pipelineFixture{provider: provider, now: now})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	gk.Middleware(okHandler(nil)).ServeHTTP(w, r)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?session_expired=true", w.Header().Get("Location"))

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, 1, provider.cleared)
}

func TestGatekeeper_AuthenticatedSessionReachesHandler(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	provider := &stubProvider{session: sessionExpiringIn(time.Hour, now)}
	gk, _ := newPipeline(t, pipelineFixture{provider: provider, now: now})

	var saw *models.Session
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	gk.Middleware(okHandler(&saw)).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, saw)
	assert.Equal(t, "user-1", saw.SubjectID)
}

func TestGatekeeper_RefreshedSessionGetsNewCookies(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := sessionExpiringIn(time.Hour, now)
	provider := &stubProvider{
		session:   sessionExpiringIn(2*time.Minute, now),
		refreshed: fresh,
	}
	gk, _ := newPipeline(t, pipelineFixture{provider: provider, now: now})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	gk.Middleware(okHandler(nil)).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	provider.mu.Lock()
	defer provider.mu.Unlock()
	require.Len(t, provider.written, 1)
	assert.Same(t, fresh, provider.written[0])
}

func TestGatekeeper_MaintenanceRedirectsNonAdmins(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	provider := &stubProvider{session: sessionExpiringIn(time.Hour, now)}
	gk, _ := newPipeline(t, pipelineFixture{
		provider: provider,
		settings: &stubSettings{settings: &models.Settings{MaintenanceMode: true}},
		now:      now,
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	gk.Middleware(okHandler(nil)).ServeHTTP(w, r)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/maintenance", w.Header().Get("Location"))
}

func TestGatekeeper_MaintenanceAdminBypass(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	provider := &stubProvider{session: sessionExpiringIn(time.Hour, now)}
	gk, _ := newPipeline(t, pipelineFixture{
		provider: provider,
		settings: &stubSettings{settings: &models.Settings{MaintenanceMode: true}},
		admins:   &stubAdmins{admins: map[string]bool{"user-1": true}},
		now:      now,
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	gk.Middleware(okHandler(nil)).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGatekeeper_APIRequestsCarryRateHeaders(t *testing.T) {
	gk, _ := newPipeline(t, pipelineFixture{limit: 100})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	r.RemoteAddr = "198.51.100.7:4410"
	gk.Middleware(okHandler(nil)).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", w.Header().Get("X-RateLimit-Remaining"))
}

func TestGatekeeper_APIRateLimitDenies(t *testing.T) {
	audit := &recordingAudit{}
	gk, _ := newPipeline(t, pipelineFixture{limit: 2, audit: audit})

	handler := gk.Middleware(okHandler(nil))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
		r.RemoteAddr = "198.51.100.7:4410"
		handler.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	r.RemoteAddr = "198.51.100.7:4410"
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "90", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Too many requests","retryAfter":90}`, w.Body.String())

	events := audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventRateLimitBreach, events[0].EventType)
	assert.Equal(t, "198.51.100.7", events[0].IPAddress)
}

func TestGatekeeper_NonAPIPathsSkipRateLimiting(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	provider := &stubProvider{session: sessionExpiringIn(time.Hour, now)}
	gk, _ := newPipeline(t, pipelineFixture{provider: provider, limit: 1, now: now})

	handler := gk.Middleware(okHandler(nil))

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		r.RemoteAddr = "198.51.100.7:4410"
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func withSessionRequest(path string, session *models.Session) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	return r.WithContext(WithSession(r.Context(), session))
}

func TestRequireAdmin(t *testing.T) {
	session := &models.Session{SubjectID: "user-1"}

	t.Run("no session", func(t *testing.T) {
		mw := RequireAdmin(&stubAdmins{}, nil, nil)
		w := httptest.NewRecorder()
		mw(okHandler(nil)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/settings", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("non-admin audited and rejected", func(t *testing.T) {
		audit := &recordingAudit{}
		mw := RequireAdmin(&stubAdmins{}, audit, &pkghttp.IPConfig{})
		w := httptest.NewRecorder()
		mw(okHandler(nil)).ServeHTTP(w, withSessionRequest("/api/admin/settings", session))

		assert.Equal(t, http.StatusForbidden, w.Code)

		events := audit.Events()
		require.Len(t, events, 1)
		assert.Equal(t, models.EventUnauthorizedAccess, events[0].EventType)
		require.NotNil(t, events[0].AccountID)
		assert.Equal(t, "user-1", *events[0].AccountID)
	})

	t.Run("lookup failure is a server error", func(t *testing.T) {
		mw := RequireAdmin(&stubAdmins{err: errors.New("down")}, nil, nil)
		w := httptest.NewRecorder()
		mw(okHandler(nil)).ServeHTTP(w, withSessionRequest("/api/admin/settings", session))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("admin passes", func(t *testing.T) {
		mw := RequireAdmin(&stubAdmins{admins: map[string]bool{"user-1": true}}, nil, nil)
		w := httptest.NewRecorder()
		mw(okHandler(nil)).ServeHTTP(w, withSessionRequest("/api/admin/settings", session))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
