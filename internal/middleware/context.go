package middleware

import (
	"context"
	"net/http"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/auth"
)

type contextKey string

const (
	claimsKey contextKey = "claims"
	langKey   contextKey = "lang"
)

// WithClaims attaches verified token claims to ctx
func WithClaims(ctx context.Context, claims *auth.JWTClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims attached by Authenticate
func ClaimsFromContext(ctx context.Context) (*auth.JWTClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.JWTClaims)
	return claims, ok && claims != nil
}

// Language resolves the response language from Accept-Language, falling back to def
func Language(def string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := apperr.FromAcceptLanguage(r.Header.Get("Accept-Language"), def)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), langKey, lang)))
		})
	}
}

// LangFromContext returns the language chosen by Language, or Vietnamese
func LangFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(langKey).(string); ok && lang != "" {
		return lang
	}
	return apperr.LangVI
}
