package identity_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sosiluv/farmpass/internal/config"
	"github.com/sosiluv/farmpass/internal/identity"
	"github.com/sosiluv/farmpass/internal/models"
)

const testJWTSecret = "test-identity-secret-32-chars-long"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string) *identity.Client {
	t.Helper()
	return identity.NewClient(&config.IdentityConfig{
		BaseURL:      baseURL,
		APIKey:       "test-api-key",
		JWTSecret:    testJWTSecret,
		CookiePrefix: "fp-auth",
		Timeout:      2 * time.Second,
	}, testLogger())
}

func signToken(t *testing.T, subject, email string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   subject,
		"email": email,
		"iat":   time.Now().Add(-time.Hour).Unix(),
		"exp":   expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func TestGetSession_NoCookies_ReturnsNil(t *testing.T) {
	client := newTestClient(t, "http://localhost:1")

	req := httptest.NewRequest("GET", "/dashboard", nil)

	session, err := client.GetSession(req)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestGetSession_ParsesTokenClaims(t *testing.T) {
	client := newTestClient(t, "http://localhost:1")

	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)
	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "fp-auth-access-token", Value: signToken(t, "user-1", "farmer@example.com", expiresAt)})
	req.AddCookie(&http.Cookie{Name: "fp-auth-refresh-token", Value: "refresh-abc"})

	session, err := client.GetSession(req)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "user-1", session.SubjectID)
	assert.Equal(t, "farmer@example.com", session.Email)
	assert.Equal(t, "refresh-abc", session.RefreshToken)
	assert.True(t, session.Refreshable)
	assert.WithinDuration(t, expiresAt, session.ExpiresAt, time.Second)
}

func TestGetSession_ExpiredTokenStillParses(t *testing.T) {
	// Claim timing is the session validator's job; an expired token must
	// surface as a session with a past expiry, not as a parse error.
	client := newTestClient(t, "http://localhost:1")

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "fp-auth-access-token", Value: signToken(t, "user-1", "x@y.com", time.Now().Add(-time.Minute))})

	session, err := client.GetSession(req)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.True(t, session.Expired(time.Now()))
}

func TestGetSession_BadSignature_ReturnsError(t *testing.T) {
	client := newTestClient(t, "http://localhost:1")

	claims := jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "fp-auth-access-token", Value: forged})

	session, err := client.GetSession(req)
	assert.Error(t, err)
	assert.Nil(t, session)
}

func TestSignInWithPassword_Success(t *testing.T) {
	accessToken := signToken(t, "user-9", "owner@farm.kr", time.Now().Add(time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "test-api-key", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "owner@farm.kr", body["email"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"refresh_token": "refresh-9",
			"expires_in":    3600,
			"user": map[string]any{
				"id":            "user-9",
				"email":         "owner@farm.kr",
				"created_at":    time.Now().Add(-time.Hour * 24).Format(time.RFC3339),
				"user_metadata": map[string]any{"consent": true},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	session, info, err := client.SignInWithPassword(context.Background(), "owner@farm.kr", "secret-pw")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.NotNil(t, info)
	assert.Equal(t, "user-9", session.SubjectID)
	assert.Equal(t, "refresh-9", session.RefreshToken)
	assert.Equal(t, "user-9", info.ID)
	assert.True(t, info.Consent)
}

func TestSignInWithPassword_InvalidCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, _, err := client.SignInWithPassword(context.Background(), "x@y.com", "wrong")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestRefreshSession_Success(t *testing.T) {
	accessToken := signToken(t, "user-9", "owner@farm.kr", time.Now().Add(time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"refresh_token": "refresh-next",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	session, err := client.RefreshSession(context.Background(), "refresh-prev")
	require.NoError(t, err)
	assert.Equal(t, "refresh-next", session.RefreshToken)
	assert.True(t, session.ExpiresAt.After(time.Now().Add(30*time.Minute)))
}

func TestClearSessionCookies_DeletesAllPrefixedCookies(t *testing.T) {
	client := newTestClient(t, "http://localhost:1")

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "fp-auth-access-token", Value: "a"})
	req.AddCookie(&http.Cookie{Name: "fp-auth-refresh-token", Value: "b"})
	req.AddCookie(&http.Cookie{Name: "fp-auth-token.0", Value: "chunk"})
	req.AddCookie(&http.Cookie{Name: "unrelated", Value: "keep"})

	rec := httptest.NewRecorder()
	client.ClearSessionCookies(rec, req)

	cleared := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		assert.Less(t, c.MaxAge, 0, "cookie %s should be deleted", c.Name)
		cleared[c.Name] = true
	}

	assert.True(t, cleared["fp-auth-access-token"])
	assert.True(t, cleared["fp-auth-refresh-token"])
	assert.True(t, cleared["fp-auth-token.0"])
	assert.False(t, cleared["unrelated"])
}
