// ABOUTME: Static bearer token verification for the gateway's protected endpoints
// ABOUTME: Compares presented credentials against the configured secret in constant time

package auth

import (
	"crypto/subtle"
	"errors"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("no secret configured")
)

// StaticPrincipal is the principal ID assigned to callers holding the shared secret.
const StaticPrincipal = "static-bearer"

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (principalID string, err error)
}

// StaticVerifier implements TokenVerifier against a single shared secret
type StaticVerifier struct {
	secret []byte
}

// NewStaticVerifier creates a verifier for the given secret.
// An empty secret yields a verifier that rejects every token.
func NewStaticVerifier(secret string) *StaticVerifier {
	return &StaticVerifier{secret: []byte(secret)}
}

// Verify succeeds iff tokenString exactly matches the configured secret.
func (v *StaticVerifier) Verify(tokenString string) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}
	if subtle.ConstantTimeCompare([]byte(tokenString), v.secret) != 1 {
		return "", ErrInvalidToken
	}
	return StaticPrincipal, nil
}
