package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/sosiluv/farmpass/internal/gatekeeper"
	"github.com/sosiluv/farmpass/internal/handlers"
	"github.com/sosiluv/farmpass/internal/middleware"
	pkghttp "github.com/sosiluv/farmpass/pkg/http"
)

// RegisterRoutes registers the gatekeeper-owned endpoints. The admission
// pipeline itself is mounted as router-level middleware by the caller; admin
// routes add the role check on top.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	admins gatekeeper.AdminChecker,
	audit gatekeeper.AuditRecorder,
	ipConfig *pkghttp.IPConfig,
) {
	loginLimit := middleware.DefaultLoginRateLimit()

	router.Route("/api/auth", func(r chi.Router) {
		r.With(middleware.LoginRateLimit(loginLimit)).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
	})

	router.Route("/api/admin", func(r chi.Router) {
		r.Use(gatekeeper.RequireAdmin(admins, audit, ipConfig))

		r.Post("/accounts/{id}/unlock", adminHandler.UnlockAccount)
		r.Get("/accounts/{id}/lockout", adminHandler.LockoutStatus)
		r.Put("/settings", adminHandler.UpdateSettings)
	})
}
