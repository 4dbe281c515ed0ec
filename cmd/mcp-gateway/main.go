// ABOUTME: Entry point for the mcp-gateway server and its companion CLI commands
// ABOUTME: Dispatches serve, init, health, tools, call, listen, and calls subcommands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/mcp-gateway/internal/config"
	"github.com/2389/mcp-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                          _
 _ __ ___   ___ _ __         __ _  __ _| |_ _____      ____ _ _   _
| '_ ' _ \ / __| '_ \ _____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| | | | | | (__| |_) |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_| |_| |_|\___| .__/       \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
               |_|          |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: MCP_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/mcp-gateway/gateway.yaml > ~/.config/mcp-gateway/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MCP_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mcp-gateway", "gateway.yaml")
}

func usage() {
	fmt.Println("Usage: mcp-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                  Start the gateway server")
	fmt.Println("  init                   Create a new config file interactively")
	fmt.Println("  health                 Check gateway health")
	fmt.Println("  tools                  List the gateway's tools")
	fmt.Println("  call TOOL [JSON]       Call a tool with JSON arguments")
	fmt.Println("  listen                 Print stream events until interrupted")
	fmt.Println("  calls [LIMIT]          Show recent tool calls from the audit log")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "tools":
		err = runTools(ctx)
	case "call":
		err = runCall(ctx, os.Args[2:])
	case "listen":
		err = runListen(ctx)
	case "calls":
		err = runCalls(ctx, os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.Addr())
	green.Print("    ▶ ")
	fmt.Printf("Token:     %d characters\n", len(cfg.Auth.APIToken))
	if cfg.Auth.APIToken == config.DefaultAPIToken {
		yellow.Println("              using the default token; set MCP_API_TOKEN")
	}
	if cfg.Audit.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Audit:     %s\n", cfg.Audit.Path)
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting mcp-gateway",
		"config", configPath,
		"port", cfg.Server.Port,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	// SIGHUP re-announces the tool list to every open stream.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if _, err := gw.AnnounceTools(); err != nil {
					logger.Error("failed to announce tools", "error", err)
				}
			}
		}
	}()

	return gw.Run(ctx)
}
