// ABOUTME: JSON-RPC error codes and the error object carried in responses
// ABOUTME: Codes are a closed enumeration clients can branch on

package rpc

import "fmt"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

// Standard JSON-RPC error codes.
// ParseError and InvalidParams are defined for completeness; the dispatcher
// reports unparseable bodies as InvalidRequest and bad params as InternalError.
const (
	CodeParseError     ErrorCode = -32700
	CodeInvalidRequest ErrorCode = -32600
	CodeMethodNotFound ErrorCode = -32601
	CodeInvalidParams  ErrorCode = -32602
	CodeInternalError  ErrorCode = -32603
)

func (c ErrorCode) String() string {
	switch c {
	case CodeParseError:
		return "Parse error"
	case CodeInvalidRequest:
		return "Invalid Request"
	case CodeMethodNotFound:
		return "Method not found"
	case CodeInvalidParams:
		return "Invalid params"
	case CodeInternalError:
		return "Internal error"
	default:
		return fmt.Sprintf("error %d", int(c))
	}
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", int(e.Code), e.Message)
}

func invalidRequest(detail string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: CodeInvalidRequest.String(), Data: detail}
}

func toolNotFound(name string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Tool not found: " + name}
}

func methodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found: " + method}
}

func internalError(detail string) *Error {
	return &Error{Code: CodeInternalError, Message: CodeInternalError.String() + ": " + detail}
}
