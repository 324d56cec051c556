package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/powerchain/backend/internal/services"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	claimsKey   contextKey = "claims"
)

// TokenValidator checks a bearer token, including revocation.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (services.Claims, error)
}

// AuthMiddleware requires a valid bearer token and places the token's
// address in the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
				return
			}

			claims, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				services.SendLedgerError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, claims.Address)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// IdentityFromContext returns the authenticated address.
func IdentityFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(identityKey).(string)
	return id, ok && id != ""
}

func ClaimsFromContext(ctx context.Context) (services.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(services.Claims)
	return c, ok
}

// WithIdentity attaches an authenticated address to ctx.
func WithIdentity(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, identityKey, address)
}
