// ABOUTME: HTTP middleware for bearer authentication on the MCP endpoints
// ABOUTME: Extracts the token from the Authorization header and adds the principal to context

package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// The scheme is matched case-insensitively. The credential is everything after
// the first space, byte for byte, so padded tokens do not match.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok {
		return "", "invalid authorization header format"
	}
	if !strings.EqualFold(scheme, "bearer") {
		return "", "invalid authentication scheme, bearer authentication required"
	}
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// writeUnauthorized writes a 401 with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// HTTPAuthMiddleware creates an HTTP middleware that validates bearer tokens.
// Requests that fail are rejected with 401 before reaching next.
func HTTPAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logger.Debug("rejected request", "path", r.URL.Path, "reason", errMsg)
				writeUnauthorized(w, errMsg)
				return
			}

			principalID, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("rejected request", "path", r.URL.Path, "reason", err)
				writeUnauthorized(w, "invalid token")
				return
			}

			authCtx := &AuthContext{
				PrincipalID: principalID,
				Scheme:      "bearer",
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}
