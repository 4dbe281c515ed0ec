// Package client is a Go client for a running mcp-gateway.
//
// It speaks both channels: JSON-RPC over POST /mcp/jsonrpc for listing and
// calling tools, and SSE over GET /mcp/sse for notifications.
//
//	c := client.New("http://localhost:3001", "test-token")
//
//	descs, err := c.ListTools(ctx)
//	res, err := c.CallTool(ctx, "echo", map[string]string{"message": "hi"})
//
//	s, err := c.Listen(ctx)
//	defer s.Close()
//	for ev, err := range s.Events() {
//		...
//	}
//
// JSON-RPC failures come back as *rpc.Error so callers can branch on Code.
package client
