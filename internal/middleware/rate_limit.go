package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// LoginRateLimitConfig bounds credential-guessing bursts at the login
// endpoint, ahead of the wider per-IP API limit and the per-account lockout.
type LoginRateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultLoginRateLimit allows 10 login attempts per IP per minute.
func DefaultLoginRateLimit() LoginRateLimitConfig {
	return LoginRateLimitConfig{
		Requests: 10,
		Window:   time.Minute,
	}
}

// LoginRateLimit creates a middleware that rate limits login attempts by
// client IP.
func LoginRateLimit(config LoginRateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Too many requests"}`))
		}),
	)
}
