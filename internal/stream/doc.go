// Package stream serves the server-push channel.
//
// Every GET /mcp/sse connection gets its own session from a
// session.Registry. The first event is always list_changed, carrying the
// current tool descriptors; later events are whatever producers enqueue or
// broadcast. The session is removed when the client goes away, the registry
// shuts it down, or a write fails.
package stream
