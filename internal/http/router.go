package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/auth"
	"github.com/kidlearn/server/internal/http/handlers"
	"github.com/kidlearn/server/internal/middleware"
	"github.com/kidlearn/server/internal/model"
	"github.com/kidlearn/server/internal/ratelimit"
)

// RouterDeps carries what the router wires together
type RouterDeps struct {
	AuthHandler     *handlers.AuthHandler
	AdminHandler    *handlers.AdminHandler
	JWTService      *auth.JWTService
	Logger          *zap.Logger
	DefaultLanguage string

	// LoginLimiter guards login; OTPLimiter guards the password-reset routes.
	// A nil limiter disables that limit.
	LoginLimiter ratelimit.Limiter
	OTPLimiter   ratelimit.Limiter
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d RouterDeps) *chi.Mux {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Language(d.DefaultLanguage))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, logger, apperr.New(apperr.KindNotFound, "route"))
	})

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	limit := func(l ratelimit.Limiter, scope string) func(http.Handler) http.Handler {
		if l == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.RateLimit(l, middleware.ScopedIPKey(scope), logger)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", d.AuthHandler.HandleRegister)
		r.With(limit(d.LoginLimiter, "login")).Post("/login", d.AuthHandler.HandleLogin)
		r.With(limit(d.OTPLimiter, "forgot")).Post("/forgot-password", d.AuthHandler.HandleForgotPassword)
		r.With(limit(d.OTPLimiter, "verify")).Post("/verify-otp", d.AuthHandler.HandleVerifyOTP)
		r.With(limit(d.OTPLimiter, "reset")).Post("/reset-password", d.AuthHandler.HandleResetPassword)
		r.Post("/refresh", d.AuthHandler.HandleRefresh)

		// Protected routes (require valid JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(d.JWTService, logger))
			r.Use(middleware.Authorize(logger))
			r.Post("/logout", d.AuthHandler.HandleLogout)
			r.Get("/profile", d.AuthHandler.HandleProfile)
			r.Put("/profile", d.AuthHandler.HandleUpdateProfile)
			r.Put("/change-password", d.AuthHandler.HandleChangePassword)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Authenticate(d.JWTService, logger))
		r.Use(middleware.Authorize(logger, model.RoleAdmin))
		r.Get("/trial-accounts", d.AdminHandler.HandleListTrialAccounts)
		r.Get("/trial-stats", d.AdminHandler.HandleTrialStats)
		r.Post("/trial-accounts/{userId}/activate", d.AdminHandler.HandleActivate)
		r.Post("/trial-accounts/{userId}/deactivate", d.AdminHandler.HandleDeactivate)
		r.Post("/trial-accounts/{userId}/extend", d.AdminHandler.HandleExtend)

		r.Get("/users", d.AdminHandler.HandleListUsers)
		r.Post("/users", d.AdminHandler.HandleCreateUser)
		r.Get("/users/{userId}", d.AdminHandler.HandleGetUser)
		r.Put("/users/{userId}", d.AdminHandler.HandleUpdateUser)
		r.Put("/users/{userId}/reset-password", d.AdminHandler.HandleResetUserPassword)
	})

	return r
}
