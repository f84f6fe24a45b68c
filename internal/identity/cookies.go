package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/sosiluv/farmpass/internal/models"
)

// CookieConfig holds cookie attributes shared by all session cookies.
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

// WriteSessionCookies stores the session tokens in httpOnly cookies under the
// provider's name prefix. Called on login and after a proactive refresh.
func (c *Client) WriteSessionCookies(w http.ResponseWriter, s *models.Session) {
	maxAge := int(time.Until(s.ExpiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}

	setCookie(w, c.cookiePrefix+"-access-token", s.AccessToken, maxAge, c.cookieCfg)
	if s.RefreshToken != "" {
		// Refresh tokens outlive the access token so a refresh is possible
		// after expiry of the access token itself.
		setCookie(w, c.cookiePrefix+"-refresh-token", s.RefreshToken, 30*24*3600, c.cookieCfg)
	}
}

// ClearSessionCookies deletes every cookie on the request whose name carries
// the provider prefix. Iterating the request rather than a fixed list matters:
// providers split large sessions across chunked cookies (prefix-0, prefix-1).
func (c *Client) ClearSessionCookies(w http.ResponseWriter, r *http.Request) {
	for _, cookie := range r.Cookies() {
		if !strings.HasPrefix(cookie.Name, c.cookiePrefix) {
			continue
		}
		expired := &http.Cookie{
			Name:     cookie.Name,
			Value:    "",
			Path:     "/",
			Domain:   c.cookieCfg.Domain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   c.cookieCfg.Secure,
			SameSite: parseSameSite(c.cookieCfg.SameSite),
		}
		http.SetCookie(w, expired)
	}
}

func setCookie(w http.ResponseWriter, name, value string, maxAge int, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(time.Duration(maxAge) * time.Second),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	}
	http.SetCookie(w, cookie)
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
