// Package gateway orchestrates the mcp-gateway server components.
//
// # Overview
//
// The Gateway owns the tool registry, the session registry, the RPC
// dispatcher, the optional audit log, and the HTTP server that exposes them.
//
// # HTTP API
//
//	GET  /             banner, no auth
//	GET  /health       {"status":"healthy","sessions":N}, no auth
//	GET  /mcp/sse      event stream, bearer auth
//	POST /mcp/jsonrpc  JSON-RPC 2.0, bearer auth
//
// Every route is wrapped in an allow-all CORS policy. Unauthenticated
// requests to the MCP endpoints get 401 before any session is opened or any
// request is dispatched.
//
// # Lifecycle
//
// Run listens on server.host:server.port, or on the tailnet when
// tailscale.enabled is set, and blocks until its context is canceled.
// Shutdown closes every open stream first so that http.Server.Shutdown does
// not wait on streams that would never end on their own.
//
// AnnounceTools re-sends the list_changed announcement to every live session.
package gateway
