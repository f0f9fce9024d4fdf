package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/auth"
	"github.com/kidlearn/server/internal/model"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", apperr.New(apperr.KindUnauthorized, "missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", apperr.New(apperr.KindUnauthorized, "invalid authorization header format")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperr.New(apperr.KindUnauthorized, "missing token")
	}
	return token, nil
}

// Authenticate verifies the bearer access token and attaches its claims to the context
func Authenticate(jwtService *auth.JWTService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, r, logger, err)
				return
			}

			claims, err := jwtService.VerifyAccessToken(token)
			if err != nil {
				WriteError(w, r, logger, apperr.New(apperr.KindUnauthorized, err.Error()))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// CheckRole admits claims whose role is in allowed; an empty list admits any identity.
func CheckRole(claims *auth.JWTClaims, allowed ...model.Role) error {
	if claims == nil {
		return apperr.New(apperr.KindUnauthorized, "no identity")
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, role := range allowed {
		if claims.Role == role {
			return nil
		}
	}
	return apperr.New(apperr.KindForbidden, "role "+string(claims.Role)+" not permitted")
}

// Authorize must run after Authenticate
func Authorize(logger *zap.Logger, allowed ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := ClaimsFromContext(r.Context())
			if err := CheckRole(claims, allowed...); err != nil {
				WriteError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
