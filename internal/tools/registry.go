// ABOUTME: Immutable, ordered registry mapping tool names to descriptors and handlers.
// ABOUTME: The single authority the dispatcher and stream announcements consult for tools.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrToolCollision indicates a tool name was registered twice.
var ErrToolCollision = errors.New("tool name collision")

// ErrInvalidArguments indicates the arguments did not satisfy the tool's input schema.
var ErrInvalidArguments = errors.New("invalid arguments")

// ErrToolFailed indicates the tool's handler returned an error or panicked.
var ErrToolFailed = errors.New("tool execution failed")

// Registry holds the tools available to clients.
// It is read-only after NewRegistry returns and is safe for concurrent use without locking.
type Registry struct {
	order []Descriptor
	tools map[string]Tool
}

// NewRegistry builds a registry from tools, preserving their order.
// Returns ErrToolCollision if a name is empty or repeated.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		order: make([]Descriptor, 0, len(tools)),
		tools: make(map[string]Tool, len(tools)),
	}

	for _, tool := range tools {
		name := tool.Descriptor.Name
		if name == "" {
			return nil, fmt.Errorf("%w: empty tool name", ErrToolCollision)
		}
		if tool.Handler == nil {
			return nil, fmt.Errorf("tool %q has no handler", name)
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("%w: tool '%s' already registered", ErrToolCollision, name)
		}
		r.tools[name] = tool
		r.order = append(r.order, tool.Descriptor)
	}

	return r, nil
}

// List returns every descriptor in registration order.
// The returned slice is a copy; callers may modify it.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve looks up a descriptor by name.
func (r *Registry) Resolve(name string) (Descriptor, bool) {
	tool, ok := r.tools[name]
	if !ok {
		return Descriptor{}, false
	}
	return tool.Descriptor, true
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Invoke runs the named tool with args.
// Errors wrap ErrToolNotFound, ErrInvalidArguments, or ErrToolFailed.
// A panicking handler is recovered and reported as ErrToolFailed.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (content Content, err error) {
	tool, ok := r.tools[name]
	if !ok {
		return Content{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	defer func() {
		if p := recover(); p != nil {
			content = Content{}
			err = fmt.Errorf("%w: %s: panic: %v", ErrToolFailed, name, p)
		}
	}()

	content, err = tool.Handler(ctx, args)
	if err != nil {
		if errors.Is(err, ErrInvalidArguments) {
			return Content{}, err
		}
		return Content{}, fmt.Errorf("%w: %s: %w", ErrToolFailed, name, err)
	}
	return content, nil
}
