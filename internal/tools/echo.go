// ABOUTME: Built-in echo tool that returns its message argument as text content.
// ABOUTME: Also exposes Builtin, the default tool set the gateway registers.

package tools

import "context"

// EchoArgs are the arguments accepted by the echo tool.
type EchoArgs struct {
	Message string `json:"message" jsonschema:"description=Message to echo back"`
}

// Echo returns the echo tool.
func Echo() Tool {
	return NewTool("echo", "Echoes back the input message",
		func(_ context.Context, args EchoArgs) (Content, error) {
			return TextContent(args.Message), nil
		})
}

// Builtin returns the tools registered by default.
func Builtin() []Tool {
	return []Tool{Echo()}
}
