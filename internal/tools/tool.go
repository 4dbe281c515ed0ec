// ABOUTME: Tool descriptors, content values, and typed tool construction.
// ABOUTME: Input schemas are reflected from Go argument structs with invopop/jsonschema.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// Descriptor is the immutable metadata advertised for a tool.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Content is a typed value returned by a tool invocation.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextContent wraps text as a "text" content value.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// Handler executes a tool against its raw JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (Content, error)

// Tool pairs a descriptor with the handler that implements it.
type Tool struct {
	Descriptor Descriptor
	Handler    Handler
}

// NewTool builds a tool whose arguments decode into A.
// The input schema is reflected from A; fields without omitempty are required.
// Missing required arguments and type mismatches fail with ErrInvalidArguments
// before fn runs. Unknown extra arguments are ignored.
func NewTool[A any](name, description string, fn func(ctx context.Context, args A) (Content, error)) Tool {
	schema := reflectInputSchema[A]()

	raw, err := json.Marshal(schema)
	if err != nil {
		// Reflected schemas are plain data; failing here is a programming error.
		panic(fmt.Sprintf("tools: marshaling schema for %q: %v", name, err))
	}

	required := append([]string(nil), schema.Required...)

	handler := func(ctx context.Context, rawArgs json.RawMessage) (Content, error) {
		args, err := decodeArguments[A](rawArgs, required)
		if err != nil {
			return Content{}, err
		}
		return fn(ctx, args)
	}

	return Tool{
		Descriptor: Descriptor{
			Name:        name,
			Description: description,
			InputSchema: raw,
		},
		Handler: handler,
	}
}

// reflectInputSchema reflects A into an inline object schema.
// Unnamed struct types have no definition to expand, so they reflect inline.
func reflectInputSchema[A any]() *jsonschema.Schema {
	t := reflect.TypeFor[A]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r := &jsonschema.Reflector{
		DoNotReference:            true,           // inline defs
		ExpandedStruct:            t.Name() != "", // put struct at root
		AllowAdditionalProperties: true,
	}
	s := r.ReflectFromType(t)
	s.Version = ""
	s.ID = ""
	return s
}

// decodeArguments validates rawArgs against the required keys and decodes into A.
// Absent or null arguments are treated as an empty object.
func decodeArguments[A any](rawArgs json.RawMessage, required []string) (A, error) {
	var args A

	trimmed := bytes.TrimSpace(rawArgs)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return args, fmt.Errorf("%w: arguments must be an object", ErrInvalidArguments)
	}

	for _, key := range required {
		v, ok := fields[key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return args, fmt.Errorf("%w: missing required argument %q", ErrInvalidArguments, key)
		}
	}

	if err := json.Unmarshal(trimmed, &args); err != nil {
		return args, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return args, nil
}
