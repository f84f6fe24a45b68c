package gatekeeper

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sosiluv/farmpass/internal/models"
	pkghttp "github.com/sosiluv/farmpass/pkg/http"
)

// Config carries the path layout the pipeline routes around.
type Config struct {
	APIPrefix       string
	AdminPrefix     string
	LoginPath       string
	MaintenancePath string
}

// CookieWriter is the slice of the identity provider the pipeline needs for
// its HTTP side effects: re-issuing cookies after a refresh and deleting
// them on forced logout.
type CookieWriter interface {
	WriteSessionCookies(w http.ResponseWriter, s *models.Session)
	ClearSessionCookies(w http.ResponseWriter, r *http.Request)
}

// Gatekeeper is the per-request admission pipeline. Evaluation order is
// fixed: session validation, path classification, maintenance gate, then
// rate limiting for API paths, each able to short-circuit the request.
type Gatekeeper struct {
	sessions    *SessionValidator
	paths       *PathClassifier
	maintenance *MaintenanceGate
	limiter     *RateLimiter
	cookies     CookieWriter
	audit       AuditRecorder
	ipConfig    *pkghttp.IPConfig
	cfg         Config
	logger      *slog.Logger
}

func New(
	sessions *SessionValidator,
	paths *PathClassifier,
	maintenance *MaintenanceGate,
	limiter *RateLimiter,
	cookies CookieWriter,
	audit AuditRecorder,
	ipConfig *pkghttp.IPConfig,
	cfg Config,
	logger *slog.Logger,
) *Gatekeeper {
	if audit == nil {
		audit = NopAuditRecorder{}
	}
	return &Gatekeeper{
		sessions:    sessions,
		paths:       paths,
		maintenance: maintenance,
		limiter:     limiter,
		cookies:     cookies,
		audit:       audit,
		ipConfig:    ipConfig,
		cfg:         cfg,
		logger:      logger,
	}
}

// Middleware runs the admission pipeline ahead of every business handler.
func (g *Gatekeeper) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		validation := g.sessions.Validate(r)
		if validation.Refreshed {
			g.cookies.WriteSessionCookies(w, validation.Session)
		}

		class := g.paths.Classify(path)

		if class == PathProtected {
			switch validation.Result {
			case SessionExpired:
				g.sessions.CleanupExpired(r.Context(), validation.Session)
				g.cookies.ClearSessionCookies(w, r)
				http.Redirect(w, r, g.cfg.LoginPath+"?session_expired=true", http.StatusFound)
				return

			case SessionAnonymous:
				if strings.HasPrefix(path, g.cfg.AdminPrefix) {
					g.audit.Record(r.Context(), models.SecurityEvent{
						EventType: models.EventUnauthorizedAccess,
						IPAddress: pkghttp.ExtractClientIP(r, g.ipConfig),
						Detail:    map[string]string{"path": path},
					})
				}
				http.Redirect(w, r, g.cfg.LoginPath, http.StatusFound)
				return

			case SessionAuthenticated:
				if !g.maintenance.Check(r.Context(), path, validation.Session.SubjectID) {
					http.Redirect(w, r, g.cfg.MaintenancePath, http.StatusFound)
					return
				}
			}
		}

		if strings.HasPrefix(path, g.cfg.APIPrefix) {
			clientIP := pkghttp.ExtractClientIP(r, g.ipConfig)
			decision := g.limiter.Check(r.Context(), clientIP)
			g.limiter.SetHeaders(w, decision)

			if !decision.Allowed {
				event := models.SecurityEvent{
					EventType: models.EventRateLimitBreach,
					IPAddress: clientIP,
					Detail:    map[string]string{"path": path},
				}
				if validation.Session != nil {
					subjectID := validation.Session.SubjectID
					event.AccountID = &subjectID
				}
				g.audit.Record(r.Context(), event)

				pkghttp.WriteRateLimited(w, decision.RetryAfter)
				return
			}
		}

		if validation.Result == SessionAuthenticated {
			r = r.WithContext(WithSession(r.Context(), validation.Session))
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAdmin guards admin routes behind the pipeline: the session must be
// present and hold the admin role. Rejections are audited with the caller's
// address.
func RequireAdmin(admins AdminChecker, audit AuditRecorder, ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	if audit == nil {
		audit = NopAuditRecorder{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r)
			if session == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			isAdmin, err := admins.IsAdmin(r.Context(), session.SubjectID)
			if err != nil {
				pkghttp.WriteInternalError(w, "internal server error")
				return
			}

			if !isAdmin {
				subjectID := session.SubjectID
				audit.Record(r.Context(), models.SecurityEvent{
					EventType: models.EventUnauthorizedAccess,
					AccountID: &subjectID,
					IPAddress: pkghttp.ExtractClientIP(r, ipConfig),
					Detail:    map[string]string{"path": r.URL.Path},
				})
				pkghttp.WriteForbidden(w, "forbidden: insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
