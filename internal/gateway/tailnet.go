// ABOUTME: Optional tailnet listener for the gateway built on tsnet
// ABOUTME: Resolves node settings from config and environment, then exposes HTTP, HTTPS, or funnel

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/mcp-gateway/internal/config"
)

// ErrNoTailnetAuthKey is returned when tailscale is enabled without an auth key.
var ErrNoTailnetAuthKey = errors.New("tailscale auth key required: set tailscale.auth_key in config or TS_AUTHKEY environment variable")

// tailnetMode selects what the gateway serves on the tailnet.
type tailnetMode int

const (
	tailnetHTTP   tailnetMode = iota // plain HTTP on :80, tailnet only
	tailnetHTTPS                     // TLS on :443 with tailnet certs
	tailnetFunnel                    // public HTTPS on :443 via funnel
)

func (m tailnetMode) String() string {
	switch m {
	case tailnetHTTPS:
		return "https"
	case tailnetFunnel:
		return "funnel"
	default:
		return "http"
	}
}

// port is the tailnet port the mode listens on.
func (m tailnetMode) port() string {
	if m == tailnetHTTP {
		return ":80"
	}
	return ":443"
}

// tailnetNode is the resolved node configuration, ready for tsnet.
type tailnetNode struct {
	Hostname  string
	StateDir  string
	AuthKey   string
	Ephemeral bool
	Mode      tailnetMode
}

// resolveTailnetNode fills in the state dir and auth key from the environment.
// getenv and homeDir are injected so resolution can be tested without touching
// the real process environment.
func resolveTailnetNode(cfg config.TailscaleConfig, getenv func(string) string, homeDir func() (string, error)) (tailnetNode, error) {
	node := tailnetNode{
		Hostname:  cfg.Hostname,
		StateDir:  cfg.StateDir,
		AuthKey:   cfg.AuthKey,
		Ephemeral: cfg.Ephemeral,
	}

	switch {
	case cfg.Funnel:
		node.Mode = tailnetFunnel
	case cfg.HTTPS:
		node.Mode = tailnetHTTPS
	default:
		node.Mode = tailnetHTTP
	}

	if node.StateDir == "" {
		home, err := homeDir()
		if err != nil {
			return tailnetNode{}, fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir): %w", err)
		}
		node.StateDir = filepath.Join(home, ".local", "share", "mcp-gateway", "tailscale")
	}

	if node.AuthKey == "" {
		node.AuthKey = getenv("TS_AUTHKEY")
	}
	if node.AuthKey == "" {
		return tailnetNode{}, ErrNoTailnetAuthKey
	}

	return node, nil
}

// setupTailscaleListener joins the tailnet and returns the listener for the configured mode.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	node, err := resolveTailnetNode(g.config.Tailscale, os.Getenv, os.UserHomeDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(node.StateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  node.Hostname,
		Dir:       node.StateDir,
		Ephemeral: node.Ephemeral,
		AuthKey:   node.AuthKey,
	}

	g.logger.Info("starting tailscale node",
		"hostname", node.Hostname,
		"state_dir", node.StateDir,
		"ephemeral", node.Ephemeral,
		"mode", node.Mode)

	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailnetStatus(node.Hostname, status)

	ln, err := g.listenTailnet(node.Mode)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, err
	}
	return ln, nil
}

// listenTailnet opens the tsnet listener for mode. The caller closes the node on error.
func (g *Gateway) listenTailnet(mode tailnetMode) (net.Listener, error) {
	if mode == tailnetFunnel {
		ln, err := g.tsnetServer.ListenFunnel("tcp", mode.port())
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	}

	ln, err := g.tsnetServer.Listen("tcp", mode.port())
	if err != nil {
		return nil, fmt.Errorf("listening on tailnet %s: %w", mode.port(), err)
	}
	if mode == tailnetHTTP {
		return ln, nil
	}

	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

func (g *Gateway) logTailnetStatus(hostname string, status *ipnstate.Status) {
	var ip, dnsName string
	if len(status.TailscaleIPs) > 0 {
		ip = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", ip, "dns_name", dnsName)
}
