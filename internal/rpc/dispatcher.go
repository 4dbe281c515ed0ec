// ABOUTME: Routes parsed JSON-RPC requests to the tool registry and shapes every outcome
// ABOUTME: into a response envelope; no failure escapes Dispatch

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mcp-gateway/internal/audit"
	"github.com/2389/mcp-gateway/internal/auth"
	"github.com/2389/mcp-gateway/internal/tools"
)

// DefaultToolTimeout bounds a single tool invocation when Config.ToolTimeout is zero.
const DefaultToolTimeout = 30 * time.Second

// Config holds the collaborators of a Dispatcher.
type Config struct {
	Tools       *tools.Registry
	ToolTimeout time.Duration
	// Recorder receives every tools/call outcome. Optional.
	Recorder audit.Recorder
	Logger   *slog.Logger
}

// Dispatcher turns request bodies into responses.
type Dispatcher struct {
	tools    *tools.Registry
	timeout  time.Duration
	recorder audit.Recorder
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. Pass a nil logger for default.
func NewDispatcher(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ToolTimeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &Dispatcher{
		tools:    cfg.Tools,
		timeout:  timeout,
		recorder: cfg.Recorder,
		logger:   logger.With("component", "rpc"),
	}
}

// Dispatch handles one request body. It never returns nil.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) (resp *Response) {
	var id json.RawMessage

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("panic during dispatch", "panic", p)
			resp = newError(id, internalError(fmt.Sprint(p)))
		}
	}()

	req, id, err := decodeRequest(body)
	if err != nil {
		d.logger.Debug("invalid request", "error", err)
		return newError(id, invalidRequest(err.Error()))
	}

	d.logger.Debug("rpc request",
		"method", req.Method,
		"id", string(req.ID),
		"principal", auth.PrincipalID(ctx))

	switch req.Method {
	case MethodListTools:
		return d.listTools(req)
	case MethodCallTool:
		return d.callTool(ctx, req)
	default:
		return newError(req.ID, methodNotFound(req.Method))
	}
}

func (d *Dispatcher) listTools(req *Request) *Response {
	var params ListToolsParams
	if err := decodeParams(req.Params, &params); err != nil {
		return newError(req.ID, internalError(err.Error()))
	}
	return newResult(req.ID, d.tools.List())
}

func (d *Dispatcher) callTool(ctx context.Context, req *Request) *Response {
	var params CallToolParams
	if err := decodeParams(req.Params, &params); err != nil {
		return newError(req.ID, internalError(err.Error()))
	}
	if params.Name == "" {
		return newError(req.ID, internalError("tool name is required"))
	}

	entry := &audit.Entry{
		Tool:      params.Name,
		RequestID: string(req.ID),
	}

	if _, ok := d.tools.Resolve(params.Name); !ok {
		entry.Status = audit.StatusNotFound
		d.record(ctx, entry)
		return newError(req.ID, toolNotFound(params.Name))
	}

	start := time.Now()
	content, err := d.invoke(ctx, params.Name, params.Arguments)
	entry.Duration = time.Since(start)

	if err != nil {
		rpcErr := d.toolError(params.Name, err)
		entry.Status = audit.StatusError
		if errors.Is(err, context.DeadlineExceeded) {
			entry.Status = audit.StatusTimeout
		}
		entry.Error = rpcErr.Message
		d.record(ctx, entry)
		return newError(req.ID, rpcErr)
	}

	entry.Status = audit.StatusOK
	d.record(ctx, entry)

	d.logger.Debug("tools/call complete",
		"tool_name", params.Name,
		"duration", entry.Duration)

	return newResult(req.ID, CallToolResult{
		ID:     uuid.New().String(),
		Result: content,
	})
}

type invokeResult struct {
	content tools.Content
	err     error
}

// invoke runs the tool under the dispatcher's timeout. A tool that ignores
// its context is abandoned when the deadline passes.
func (d *Dispatcher) invoke(ctx context.Context, name string, args json.RawMessage) (tools.Content, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resCh := make(chan invokeResult, 1)
	go func() {
		content, err := d.tools.Invoke(ctx, name, args)
		resCh <- invokeResult{content: content, err: err}
	}()

	select {
	case res := <-resCh:
		return res.content, res.err
	case <-ctx.Done():
		return tools.Content{}, ctx.Err()
	}
}

// toolError maps an invocation failure onto a JSON-RPC error.
func (d *Dispatcher) toolError(name string, err error) *Error {
	d.logger.Warn("tool execution failed",
		"tool_name", name,
		"error", err)

	switch {
	case errors.Is(err, tools.ErrToolNotFound):
		return toolNotFound(name)
	case errors.Is(err, context.DeadlineExceeded):
		return internalError("tool execution timed out")
	case errors.Is(err, context.Canceled):
		return internalError("request cancelled")
	default:
		return internalError(err.Error())
	}
}

func (d *Dispatcher) record(ctx context.Context, e *audit.Entry) {
	if d.recorder == nil {
		return
	}
	// The call outcome is already decided; a cancelled request still gets recorded.
	if err := d.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		d.logger.Warn("failed to record tool call",
			"tool_name", e.Tool,
			"error", err)
	}
}
