// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// AuthContext holds the authenticated identity extracted from a request.
type AuthContext struct {
	PrincipalID string // identity the verifier resolved the token to
	Scheme      string // "bearer"
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, ok := ctx.Value(authContextKey{}).(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// PrincipalID returns the authenticated principal on ctx, or "" when the
// request was not authenticated.
func PrincipalID(ctx context.Context) string {
	if auth := FromContext(ctx); auth != nil {
		return auth.PrincipalID
	}
	return ""
}
