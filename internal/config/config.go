package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Identity   IdentityConfig
	Gatekeeper GatekeeperConfig
	Redis      RedisConfig
	Alerts     AlertConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

// IdentityConfig points at the external identity provider that issues and
// refreshes sessions. The gatekeeper never stores credentials; login is a
// pass-through to the provider's password grant.
type IdentityConfig struct {
	BaseURL      string
	APIKey       string
	JWTSecret    string
	CookiePrefix string
	CookieDomain string
	CookieSecure bool
	Timeout      time.Duration
}

// GatekeeperConfig holds the admission-pipeline and lockout defaults. The
// lockout values are defaults only: live values come from the cached settings
// snapshot and may be changed by admins at runtime.
type GatekeeperConfig struct {
	MaxLoginAttempts     int
	LockoutDuration      time.Duration
	SessionRefreshBuffer time.Duration
	RateLimitRequests    int
	RateLimitWindow      time.Duration
	SettingsCacheTTL     time.Duration
	CleanupInterval      time.Duration
	APIPrefix            string
	AdminPrefix          string
	LoginPath            string
	MaintenancePath      string
	PublicPaths          []string
	PublicPatterns       []string
}

type RedisConfig struct {
	Addr     string // empty disables Redis and uses the in-memory counter store
	Password string
	DB       int
}

type AlertConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
	OpsAddress  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	identityURL := getEnv("IDENTITY_BASE_URL", "")
	if identityURL == "" {
		return nil, fmt.Errorf("IDENTITY_BASE_URL is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "farmpass"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
		},
		Identity: IdentityConfig{
			BaseURL:      strings.TrimRight(identityURL, "/"),
			APIKey:       getEnv("IDENTITY_API_KEY", ""),
			JWTSecret:    getEnv("IDENTITY_JWT_SECRET", ""),
			CookiePrefix: getEnv("IDENTITY_COOKIE_PREFIX", "fp-auth"),
			CookieDomain: getEnv("IDENTITY_COOKIE_DOMAIN", ""),
			CookieSecure: env == "production",
			Timeout:      getEnvAsDuration("IDENTITY_TIMEOUT", 5*time.Second),
		},
		Gatekeeper: GatekeeperConfig{
			MaxLoginAttempts:     getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			LockoutDuration:      getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
			SessionRefreshBuffer: getEnvAsDuration("SESSION_REFRESH_BUFFER", 5*time.Minute),
			RateLimitRequests:    getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			RateLimitWindow:      getEnvAsDuration("RATE_LIMIT_WINDOW", 90*time.Second),
			SettingsCacheTTL:     getEnvAsDuration("SETTINGS_CACHE_TTL", 5*time.Minute),
			CleanupInterval:      getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			APIPrefix:            getEnv("API_PREFIX", "/api"),
			AdminPrefix:          getEnv("ADMIN_PREFIX", "/api/admin"),
			LoginPath:            getEnv("LOGIN_PATH", "/login"),
			MaintenancePath:      getEnv("MAINTENANCE_PATH", "/maintenance"),
			PublicPaths:          defaultPublicPaths(),
			PublicPatterns:       defaultPublicPatterns(),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Alerts: AlertConfig{
			Enabled:     getEnvAsBool("ALERTS_ENABLED", false),
			AWSRegion:   getEnv("ALERTS_AWS_REGION", "ap-northeast-2"),
			FromAddress: getEnv("ALERTS_FROM_ADDRESS", ""),
			OpsAddress:  getEnv("ALERTS_OPS_ADDRESS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if err := validateGatekeeper(&cfg.Gatekeeper); err != nil {
		return nil, err
	}
	if cfg.Alerts.Enabled && (cfg.Alerts.FromAddress == "" || cfg.Alerts.OpsAddress == "") {
		return nil, fmt.Errorf("ALERTS_FROM_ADDRESS and ALERTS_OPS_ADDRESS are required when alerts are enabled")
	}

	return cfg, nil
}

// validateGatekeeper enforces sane admission-pipeline bounds at startup so
// misconfiguration fails fast instead of per-request.
func validateGatekeeper(gk *GatekeeperConfig) error {
	if gk.MaxLoginAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1 (got %d)", gk.MaxLoginAttempts)
	}
	if gk.LockoutDuration < time.Minute {
		return fmt.Errorf("LOCKOUT_DURATION must be at least 1m (got %s)", gk.LockoutDuration)
	}
	if gk.RateLimitRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1 (got %d)", gk.RateLimitRequests)
	}
	if gk.RateLimitWindow < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s (got %s)", gk.RateLimitWindow)
	}
	if !strings.HasPrefix(gk.APIPrefix, "/") {
		return fmt.Errorf("API_PREFIX must start with '/' (got %q)", gk.APIPrefix)
	}
	return nil
}

// defaultPublicPaths lists the exact-prefix rules: a path is public when it
// equals an entry or is a sub-path of one.
func defaultPublicPaths() []string {
	return []string{
		"/login",
		"/register",
		"/maintenance",
		"/health",
		"/static",
		"/favicon.ico",
		"/api/auth/login",
		"/api/auth/logout",
	}
}

// defaultPublicPatterns lists regexp rules for parameterized public routes,
// such as the QR visit-registration surface handed to farm visitors.
func defaultPublicPatterns() []string {
	return []string{
		`^/visit/[A-Za-z0-9-]+$`,
		`^/api/farms/[A-Za-z0-9-]+/visit-session$`,
	}
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		return parseList(originsStr)
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
