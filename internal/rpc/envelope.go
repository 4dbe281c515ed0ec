// ABOUTME: JSON-RPC 2.0 request/response envelopes and per-method param and result types
// ABOUTME: Responses always carry an id, serialized as null when the request had none

package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/mcp-gateway/internal/tools"
)

// Version is the only accepted value of the jsonrpc field.
const Version = "2.0"

// Method names understood by the dispatcher.
const (
	MethodListTools = "tools/list"
	MethodCallTool  = "tools/call"
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// ListToolsParams are the params of tools/list. Unknown fields are ignored.
type ListToolsParams struct{}

// CallToolParams are the params of tools/call. Unknown fields are ignored.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the result of a successful tools/call.
type CallToolResult struct {
	ID     string        `json:"id"`
	Result tools.Content `json:"result"`
}

func newResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

func newError(id json.RawMessage, rpcErr *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: rpcErr}
}

var errNotObject = errors.New("request body must be a JSON object")

// decodeRequest parses body into a Request. The returned id is whatever
// could be salvaged from a body that parses as a JSON object, even when
// decoding fails afterwards; it is nil otherwise.
func decodeRequest(body []byte) (*Request, json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, nil, errNotObject
	}

	id := fields["id"]
	if isNull(id) {
		id = nil
	}

	req := &Request{ID: id}

	if raw, ok := fields["jsonrpc"]; ok {
		if err := json.Unmarshal(raw, &req.JSONRPC); err != nil || req.JSONRPC != Version {
			return nil, id, fmt.Errorf("jsonrpc must be %q", Version)
		}
	}

	raw, ok := fields["method"]
	if !ok || isNull(raw) {
		return nil, id, errors.New("missing method")
	}
	if err := json.Unmarshal(raw, &req.Method); err != nil {
		return nil, id, errors.New("method must be a string")
	}

	req.Params = fields["params"]
	if isNull(req.Params) {
		req.Params = json.RawMessage(`{}`)
	}

	return req, id, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeParams decodes raw params into v, which must be a pointer to struct.
func decodeParams(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
