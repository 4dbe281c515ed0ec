// Package auth provides the bearer authentication gate for mcp-gateway.
//
// Both protected endpoints (GET /mcp/sse and POST /mcp/jsonrpc) are wrapped
// in HTTPAuthMiddleware. A request passes iff its Authorization header has
// the form
//
//	Authorization: Bearer <token>
//
// (scheme matched case-insensitively) and <token> equals the configured
// secret. Anything else is answered with 401 and a JSON error body before
// any session or dispatch work happens.
//
// The gate is stateless. Handlers downstream can read the resolved identity
// with FromContext.
package auth
