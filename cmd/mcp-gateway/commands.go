// ABOUTME: Client-side subcommands that talk to a running gateway or its audit log
// ABOUTME: Implements init, health, tools, call, listen, and calls

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/2389/mcp-gateway/internal/audit"
	"github.com/2389/mcp-gateway/internal/client"
	"github.com/2389/mcp-gateway/internal/config"
)

// loadClient builds a gateway client from the local config.
// MCP_GATEWAY_URL overrides the address derived from server.host and server.port.
func loadClient() (*client.Client, error) {
	cfg, err := config.LoadOrDefault(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return client.New(gatewayURL(cfg), cfg.Auth.APIToken), nil
}

func gatewayURL(cfg *config.Config) string {
	if u := os.Getenv("MCP_GATEWAY_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	host := cfg.Server.Host
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
}

func runHealth(ctx context.Context) error {
	c, err := loadClient()
	if err != nil {
		return err
	}

	h, err := c.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("%s (%d open sessions)\n", h.Status, h.Sessions)
	return nil
}

func runTools(ctx context.Context) error {
	c, err := loadClient()
	if err != nil {
		return err
	}

	descs, err := c.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("listing tools: %w", err)
	}

	cyan := color.New(color.FgCyan)
	for _, d := range descs {
		cyan.Print(d.Name)
		fmt.Printf("  %s\n", d.Description)
		if len(d.InputSchema) > 0 {
			fmt.Printf("    %s\n", color.HiBlackString(string(d.InputSchema)))
		}
	}
	return nil
}

// parseCallArgs accepts a JSON object, or a bare string that becomes {"message": s}.
func parseCallArgs(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return map[string]any{}, nil
	}
	raw := strings.Join(args, " ")
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		var out map[string]any
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("parsing arguments: %w", err)
		}
		return out, nil
	}
	return map[string]any{"message": raw}, nil
}

func runCall(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: mcp-gateway call TOOL [JSON|MESSAGE]")
	}

	toolArgs, err := parseCallArgs(args[1:])
	if err != nil {
		return err
	}

	c, err := loadClient()
	if err != nil {
		return err
	}

	res, err := c.CallTool(ctx, args[0], toolArgs)
	if err != nil {
		return err
	}

	gray := color.New(color.FgHiBlack)
	gray.Printf("call %s\n", res.ID)
	fmt.Println(res.Result.Text)
	return nil
}

func runListen(ctx context.Context) error {
	c, err := loadClient()
	if err != nil {
		return err
	}

	stream, err := c.Listen(ctx)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer stream.Close()

	green := color.New(color.FgGreen)
	green.Print("▶ ")
	fmt.Printf("session %s\n", stream.SessionID)

	for ev, err := range stream.Events() {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading stream: %w", err)
		}
		fmt.Printf("%s %s\n", color.CyanString(ev.Type), ev.Data)
	}
	return nil
}

func runCalls(ctx context.Context, args []string) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}

	cfg, err := config.LoadOrDefault(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Audit.Path == "" {
		return errors.New("audit.path is not configured")
	}

	log, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		return err
	}
	defer log.Close()

	entries, err := log.Recent(ctx, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTOOL\tSTATUS\tDURATION\tREQUEST\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime),
			e.Tool,
			e.Status,
			e.Duration.Round(time.Microsecond),
			e.RequestID,
			e.Error,
		)
	}
	return w.Flush()
}

// generateToken returns a random URL-safe bearer token.
func generateToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

// initFile is the on-disk shape written by init. Durations stay as strings.
type initFile struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	Auth struct {
		APIToken string `yaml:"api_token"`
	} `yaml:"auth"`
	RPC struct {
		ToolTimeout string `yaml:"tool_timeout"`
	} `yaml:"rpc"`
	Audit struct {
		Path string `yaml:"path,omitempty"`
	} `yaml:"audit"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

func runInit() error {
	configPath := getConfigPath()
	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(configPath); err == nil {
		answer := prompt(reader, fmt.Sprintf("Config exists at %s. Overwrite? (y/N)", configPath), "N")
		if !strings.EqualFold(answer, "y") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	var f initFile
	f.Server.Host = prompt(reader, "Listen host", config.DefaultHost)
	port, err := strconv.Atoi(prompt(reader, "Listen port", strconv.Itoa(config.DefaultPort)))
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	f.Server.Port = port
	f.Auth.APIToken = prompt(reader, "API token", token)
	f.RPC.ToolTimeout = prompt(reader, "Tool timeout", config.DefaultToolTimeout.String())

	defaultAudit := filepath.Join(filepath.Dir(configPath), "calls.db")
	f.Audit.Path = prompt(reader, "Audit log path (\"-\" to disable)", defaultAudit)
	if f.Audit.Path == "-" {
		f.Audit.Path = ""
	}
	f.Logging.Level = config.DefaultLogLevel
	f.Logging.Format = config.DefaultLogFormat

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Round-trip through the loader so a bad answer fails now rather than at serve.
	if _, err := config.Load(configPath); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Wrote %s\n", configPath)
	return nil
}
