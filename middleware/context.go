package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

// ClaimsKey is the context key for JWT claims
const ClaimsKey contextKey = "claims"

// Claims represents JWT claims extracted from the token
type Claims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"`
	Iat int64  `json:"iat"`
}

// GetRequestIDFromContext retrieves the request ID assigned by the router
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}

// GetClaimsFromContext retrieves JWT claims from context
func GetClaimsFromContext(ctx context.Context) *Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds JWT claims to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}
