package middleware

import (
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/ratelimit"
)

// RateLimit rejects requests whose key is over budget. When the limiter
// backend fails the request is let through and the failure logged.
func RateLimit(limiter ratelimit.Limiter, keyFunc func(*http.Request) string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := limiter.Allow(r.Context(), keyFunc(r))
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.Error(err))
			} else if !ok {
				WriteError(w, r, logger, apperr.New(apperr.KindRateLimited, r.URL.Path))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIPKey keys a request by client address; run after chi's RealIP so
// proxy headers are already resolved.
func GetIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// ScopedIPKey keys by route scope and client address, giving each route its own budget
func ScopedIPKey(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + GetIPKey(r)
	}
}
