// Package config handles configuration loading for mcp-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension) with
// environment variable expansion, then overlaid with MCP_* environment
// variables. Every field has a default, so the gateway starts without a file.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from MCP_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/mcp-gateway/gateway.yaml
//  3. ~/.config/mcp-gateway/gateway.yaml
//
// # Environment Overrides
//
//	MCP_HOST        server.host       (default 0.0.0.0)
//	MCP_PORT        server.port       (default 3001)
//	MCP_API_TOKEN   auth.api_token    (default test-token)
//	MCP_LOG_LEVEL   logging.level     (default info)
//	MCP_LOG_FORMAT  logging.format    (default text)
//	MCP_AUDIT_PATH  audit.path        (default disabled)
//
// # Example
//
//	server:
//	  host: "0.0.0.0"
//	  port: 3001
//
//	auth:
//	  api_token: "${MCP_API_TOKEN}"
//
//	stream:
//	  queue_size: 64
//
//	rpc:
//	  tool_timeout: "30s"
//	  max_body_bytes: 1048576
//
//	audit:
//	  path: "/var/lib/mcp-gateway/calls.db"
//
//	tailscale:
//	  enabled: false
//	  hostname: "mcp-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: false
//	  funnel: false
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
