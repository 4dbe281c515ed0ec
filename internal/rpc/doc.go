// Package rpc implements the request/response channel.
//
// The Dispatcher accepts raw request bodies and always produces a JSON-RPC
// 2.0 response envelope:
//
//	tools/list  result is the ordered tool descriptor array
//	tools/call  result is {"id": <uuid>, "result": <content>}
//
// Failures map onto a fixed set of codes:
//
//	-32600  body is not an object, method missing, or bad jsonrpc tag
//	-32601  unknown method or unknown tool
//	-32603  malformed params, bad arguments, tool failure, panic, or timeout
//
// The request id is echoed unchanged. If the body is a JSON object its id is
// echoed even when the rest of the request is invalid; otherwise the id is null.
//
// Handler adapts the dispatcher to HTTP and always answers 200.
package rpc
