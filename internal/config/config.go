// ABOUTME: Configuration loading and parsing for mcp-gateway
// ABOUTME: Supports YAML/TOML files with env var expansion, env overrides, and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Built-in defaults, overridable by file or MCP_* environment variables.
const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 3001
	DefaultAPIToken      = "test-token"
	DefaultQueueSize     = 64
	DefaultToolTimeout   = 30 * time.Second
	DefaultMaxBodyBytes  = 1 << 20
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultTailscaleHost = "mcp-gateway"
)

// Config represents the complete mcp-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Stream    StreamConfig    `yaml:"stream" toml:"stream"`
	RPC       RPCConfig       `yaml:"rpc" toml:"rpc"`
	Audit     AuditConfig     `yaml:"audit" toml:"audit"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// AuthConfig holds the static bearer credential
type AuthConfig struct {
	APIToken string `yaml:"api_token" toml:"api_token"`
}

// StreamConfig holds push-channel settings
type StreamConfig struct {
	// QueueSize bounds each session's delivery queue.
	QueueSize int `yaml:"queue_size" toml:"queue_size"`
}

// RPCConfig holds request/response channel settings
type RPCConfig struct {
	ToolTimeout  time.Duration `yaml:"-" toml:"-"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" toml:"max_body_bytes"`

	// Raw string values for unmarshaling
	ToolTimeoutRaw string `yaml:"tool_timeout" toml:"tool_timeout"`
}

// AuditConfig holds the invocation audit log location. Empty disables auditing.
type AuditConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve TLS on :443 with tailnet certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // expose publicly via funnel on :443
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// envOverrides is decoded strictly from the process environment with envdecode,
// so a malformed value is an error. Zero values mean "not set".
type envOverrides struct {
	Host      string `env:"MCP_HOST"`
	Port      int    `env:"MCP_PORT"`
	APIToken  string `env:"MCP_API_TOKEN"`
	LogLevel  string `env:"MCP_LOG_LEVEL"`
	LogFormat string `env:"MCP_LOG_FORMAT"`
	AuditPath string `env:"MCP_AUDIT_PATH"`
}

// Default returns a configuration populated with built-in defaults and
// environment overrides applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := finish(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads the file at path, falling back to Default when the
// path is empty or the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default()
	}
	return Load(path)
}

// finish runs the shared post-decode pipeline.
func finish(cfg *Config) error {
	if err := parseDurations(cfg); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(cfg)

	if err := applyEnv(cfg); err != nil {
		return fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Auth.APIToken == "" {
		cfg.Auth.APIToken = DefaultAPIToken
	}
	if cfg.Stream.QueueSize == 0 {
		cfg.Stream.QueueSize = DefaultQueueSize
	}
	if cfg.RPC.ToolTimeout == 0 {
		cfg.RPC.ToolTimeout = DefaultToolTimeout
	}
	if cfg.RPC.MaxBodyBytes == 0 {
		cfg.RPC.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Tailscale.Hostname == "" {
		cfg.Tailscale.Hostname = DefaultTailscaleHost
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// applyEnv overlays MCP_* environment variables on top of file values.
func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envdecode.StrictDecode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return err
	}

	if env.Host != "" {
		cfg.Server.Host = env.Host
	}
	if env.Port != 0 {
		cfg.Server.Port = env.Port
	}
	if env.APIToken != "" {
		cfg.Auth.APIToken = env.APIToken
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		cfg.Logging.Format = env.LogFormat
	}
	if env.AuditPath != "" {
		cfg.Audit.Path = env.AuditPath
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	if c.Auth.APIToken == "" {
		return fmt.Errorf("auth.api_token is required")
	}

	if c.Stream.QueueSize < 1 {
		return fmt.Errorf("stream.queue_size must be positive")
	}

	if c.RPC.ToolTimeout < 0 {
		return fmt.Errorf("rpc.tool_timeout must not be negative")
	}

	if c.RPC.MaxBodyBytes < 1 {
		return fmt.Errorf("rpc.max_body_bytes must be positive")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.RPC.ToolTimeoutRaw != "" {
		cfg.RPC.ToolTimeout, err = time.ParseDuration(cfg.RPC.ToolTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing tool_timeout %q: %w", cfg.RPC.ToolTimeoutRaw, err)
		}
	}

	return nil
}
