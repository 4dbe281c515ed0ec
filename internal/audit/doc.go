// Package audit records tool invocations.
//
// Each tools/call handled by the dispatcher becomes one row in the
// tool_calls table with its outcome and duration. The log is optional;
// the gateway only opens it when audit.path is configured.
package audit
