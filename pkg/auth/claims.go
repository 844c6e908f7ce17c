// Package auth provides JWT-based authentication for the search and indexing
// HTTP surface. It validates bearer tokens issued by an external authorization
// server using JWKS endpoints. Spec scope is a single authenticated principal:
// there is no project/tenant concept, only identity and roles.
package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Claims represents the JWT claims accepted on the /search and /index
// surface. It embeds RegisteredClaims for the standard fields (sub, iss,
// exp) and adds the single-principal's roles.
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
// Returns empty string and false if token is not present.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// ErrNotAuthenticated is returned when claims are required but absent.
var ErrNotAuthenticated = errors.New("authentication required: no claims in context")

// RequireSubject extracts the authenticated principal's subject from context.
func RequireSubject(ctx context.Context) (string, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil || claims.Subject == "" {
		return "", ErrNotAuthenticated
	}
	return claims.Subject, nil
}
