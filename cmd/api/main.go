package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sosiluv/farmpass/internal/background"
	"github.com/sosiluv/farmpass/internal/cache"
	"github.com/sosiluv/farmpass/internal/config"
	"github.com/sosiluv/farmpass/internal/database"
	"github.com/sosiluv/farmpass/internal/gatekeeper"
	"github.com/sosiluv/farmpass/internal/handlers"
	"github.com/sosiluv/farmpass/internal/identity"
	"github.com/sosiluv/farmpass/internal/middleware"
	"github.com/sosiluv/farmpass/internal/models"
	"github.com/sosiluv/farmpass/internal/repositories"
	"github.com/sosiluv/farmpass/internal/routes"
	"github.com/sosiluv/farmpass/internal/services"
	pkghttp "github.com/sosiluv/farmpass/pkg/http"
	pkglogger "github.com/sosiluv/farmpass/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	securityRepo := repositories.NewAccountSecurityRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)
	subscriptionRepo := repositories.NewPushSubscriptionRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db, models.Settings{
		MaxLoginAttempts: cfg.Gatekeeper.MaxLoginAttempts,
		LockoutDuration:  cfg.Gatekeeper.LockoutDuration,
	})

	// Caches
	settingsCache := cache.NewSettingsCache(settingsRepo, cfg.Gatekeeper.SettingsCacheTTL, logger)
	adminCache := cache.NewAdminCache(userRepo, cfg.Gatekeeper.SettingsCacheTTL, logger)

	// Audit trail and ops alerts
	auditService := services.NewAuditService(eventRepo, logger)
	defer auditService.Close()

	alertService, err := services.NewAlertService(&cfg.Alerts, logger)
	if err != nil {
		logger.Error("failed to initialize alert service", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Lockout policy
	lockoutService := services.NewLockoutService(
		securityRepo,
		settingsCache,
		auditService,
		alertService,
		cfg.Gatekeeper.MaxLoginAttempts,
		cfg.Gatekeeper.LockoutDuration,
		logger,
	)

	// Identity provider client
	provider := identity.NewClient(&cfg.Identity, logger)

	// Admission pipeline
	classifier, err := gatekeeper.NewPathClassifier(cfg.Gatekeeper.PublicPaths, cfg.Gatekeeper.PublicPatterns)
	if err != nil {
		logger.Error("invalid public path rules", slog.Any("error", err))
		os.Exit(1)
	}

	var counterStore gatekeeper.CounterStore
	var memoryStore *gatekeeper.MemoryCounterStore
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		counterStore = gatekeeper.NewRedisCounterStore(redisClient)
		logger.Info("rate limiting backed by redis", slog.String("addr", cfg.Redis.Addr))
	} else {
		memoryStore = gatekeeper.NewMemoryCounterStore()
		counterStore = memoryStore
		logger.Info("rate limiting backed by in-process counters")
	}

	rateLimiter := gatekeeper.NewRateLimiter(
		counterStore,
		cfg.Gatekeeper.RateLimitRequests,
		cfg.Gatekeeper.RateLimitWindow,
		logger,
		auditService,
	)

	sessionValidator := gatekeeper.NewSessionValidator(
		provider,
		subscriptionRepo,
		cfg.Gatekeeper.SessionRefreshBuffer,
		logger,
	)

	maintenanceGate := gatekeeper.NewMaintenanceGate(
		settingsCache,
		adminCache,
		auditService,
		cfg.Gatekeeper.MaintenancePath,
		logger,
	)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	pipeline := gatekeeper.New(
		sessionValidator,
		classifier,
		maintenanceGate,
		rateLimiter,
		provider,
		auditService,
		ipConfig,
		gatekeeper.Config{
			APIPrefix:       cfg.Gatekeeper.APIPrefix,
			AdminPrefix:     cfg.Gatekeeper.AdminPrefix,
			LoginPath:       cfg.Gatekeeper.LoginPath,
			MaintenancePath: cfg.Gatekeeper.MaintenancePath,
		},
		logger,
	)

	// Handlers
	authHandler := handlers.NewAuthHandler(provider, lockoutService, userRepo, auditLogger, ipConfig, logger)
	adminHandler := handlers.NewAdminHandler(lockoutService, settingsRepo, settingsCache, logger)

	// Background maintenance
	cleanupManager := background.NewCleanupManager(lockoutService, subscriptionRepo, logger, cfg.Gatekeeper.CleanupInterval)

	// Router
	corsConfig := middleware.DefaultCORSConfig(cfg.Server.Env, cfg.Server.AllowedOrigins)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middleware.CORS(corsConfig))
	router.Use(middleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))
	router.Use(pipeline.Middleware)

	routes.RegisterRoutes(router, authHandler, adminHandler, adminCache, auditService, ipConfig)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	if memoryStore != nil {
		memoryStore.Stop()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", slog.Any("error", err))
		}
	}

	logger.Info("server stopped gracefully")
}
