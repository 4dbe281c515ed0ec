// Package tools is the capability table the gateway dispatches into.
//
// A Registry is built once from a list of Tools and never changes. Its List
// order is the registration order, which is also the order announced to
// stream clients and returned by tools/list.
//
// Tools are usually declared with NewTool, which reflects the input schema
// from a Go struct:
//
//	type greetArgs struct {
//		Name string `json:"name" jsonschema:"description=Who to greet"`
//	}
//
//	greet := tools.NewTool("greet", "Says hello",
//		func(ctx context.Context, a greetArgs) (tools.Content, error) {
//			return tools.TextContent("hello " + a.Name), nil
//		})
//
// Adding a tool never requires touching the dispatcher.
package tools
