package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sosiluv/farmpass/internal/config"
	"github.com/sosiluv/farmpass/internal/models"
)

// Client talks to a GoTrue-style identity service over HTTP and reads the
// session tokens it issues. Access tokens are HS256 JWTs; the signature is
// verified locally, but claim timing is left to the session validator so an
// expired token can still be distinguished from an invalid one.
type Client struct {
	baseURL      string
	apiKey       string
	jwtSecret    []byte
	cookiePrefix string
	cookieCfg    CookieConfig
	http         *http.Client
	parser       *jwt.Parser
	logger       *slog.Logger
}

func NewClient(cfg *config.IdentityConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		jwtSecret:    []byte(cfg.JWTSecret),
		cookiePrefix: cfg.CookiePrefix,
		cookieCfg: CookieConfig{
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
		},
		http: &http.Client{Timeout: cfg.Timeout},
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithoutClaimsValidation(),
		),
		logger: logger,
	}
}

// sessionClaims is the slice of the provider's access-token payload the
// gatekeeper needs.
type sessionClaims struct {
	Email        string `json:"email"`
	UserMetadata struct {
		Consent bool `json:"consent"`
	} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// tokenResponse is the provider's grant response shape (password and
// refresh-token grants share it).
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		CreatedAt    time.Time `json:"created_at"`
		UserMetadata struct {
			Consent bool `json:"consent"`
		} `json:"user_metadata"`
	} `json:"user"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"msg"`
}

// GetSession resolves the session from the request's auth cookies. Absent
// cookies return (nil, nil); a token that fails signature verification is an
// error for the caller's fail-closed handling.
func (c *Client) GetSession(r *http.Request) (*models.Session, error) {
	accessCookie, err := r.Cookie(c.cookiePrefix + "-access-token")
	if err != nil {
		return nil, nil
	}

	refreshToken := ""
	if refreshCookie, err := r.Cookie(c.cookiePrefix + "-refresh-token"); err == nil {
		refreshToken = refreshCookie.Value
	}

	return c.parseSession(accessCookie.Value, refreshToken)
}

func (c *Client) parseSession(accessToken, refreshToken string) (*models.Session, error) {
	claims := &sessionClaims{}
	if _, err := c.parser.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (interface{}, error) {
		return c.jwtSecret, nil
	}); err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("access token missing subject or expiry")
	}

	session := &models.Session{
		SubjectID:    claims.Subject,
		Email:        claims.Email,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    claims.ExpiresAt.Time,
		Refreshable:  refreshToken != "",
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}

	return session, nil
}

// SignInWithPassword runs the provider's password grant.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, *AccountInfo, error) {
	body := map[string]string{"email": email, "password": password}

	var resp tokenResponse
	if err := c.post(ctx, "/token?grant_type=password", "", body, &resp); err != nil {
		return nil, nil, err
	}

	session, err := c.sessionFromGrant(&resp)
	if err != nil {
		return nil, nil, err
	}

	info := &AccountInfo{
		ID:        resp.User.ID,
		Email:     resp.User.Email,
		CreatedAt: resp.User.CreatedAt,
		Consent:   resp.User.UserMetadata.Consent,
	}

	return session, info, nil
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var resp tokenResponse
	if err := c.post(ctx, "/token?grant_type=refresh_token", "", body, &resp); err != nil {
		return nil, err
	}

	return c.sessionFromGrant(&resp)
}

// SignOut revokes the session at the provider. Best effort for callers:
// local cookie clearing happens regardless.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.post(ctx, "/logout", accessToken, nil, nil)
}

func (c *Client) sessionFromGrant(resp *tokenResponse) (*models.Session, error) {
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("provider grant response missing access token")
	}

	session, err := c.parseSession(resp.AccessToken, resp.RefreshToken)
	if err != nil {
		return nil, err
	}

	// Prefer the provider's explicit expiry when present
	if resp.ExpiresAt > 0 {
		session.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	} else if resp.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	return session, nil
}

func (c *Client) post(ctx context.Context, path, bearer string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)

		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity:
			c.logger.Debug("identity provider rejected request",
				slog.Int("status", resp.StatusCode),
				slog.String("error", errResp.Error))
			return models.ErrUnauthorized
		default:
			return fmt.Errorf("identity provider returned status %d: %s", resp.StatusCode, errResp.ErrorDescription)
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
	}

	return nil
}
