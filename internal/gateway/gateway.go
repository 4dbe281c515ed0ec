// ABOUTME: Gateway orchestrator that wires auth, tools, sessions, stream, and RPC together
// ABOUTME: Owns the HTTP server lifecycle, optional tailnet listener, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsnet"

	"github.com/2389/mcp-gateway/internal/audit"
	"github.com/2389/mcp-gateway/internal/auth"
	"github.com/2389/mcp-gateway/internal/config"
	"github.com/2389/mcp-gateway/internal/rpc"
	"github.com/2389/mcp-gateway/internal/session"
	"github.com/2389/mcp-gateway/internal/stream"
	"github.com/2389/mcp-gateway/internal/tools"
)

// Gateway orchestrates the mcp-gateway server components.
type Gateway struct {
	config      *config.Config
	tools       *tools.Registry
	sessions    *session.Registry
	dispatcher  *rpc.Dispatcher
	auditLog    *audit.SQLiteLog
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// addr is the bound listener address, set once Run is listening.
	mu   sync.RWMutex
	addr net.Addr
}

// New creates a gateway serving the built-in tools.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	return NewWithTools(cfg, logger, tools.Builtin()...)
}

// NewWithTools creates a gateway serving the given tools.
func NewWithTools(cfg *config.Config, logger *slog.Logger, toolset ...tools.Tool) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Auth.APIToken == "" {
		return nil, fmt.Errorf("creating token verifier: %w", auth.ErrNoSecret)
	}
	verifier := auth.NewStaticVerifier(cfg.Auth.APIToken)

	registry, err := tools.NewRegistry(toolset...)
	if err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}

	gw := &Gateway{
		config: cfg,
		tools:  registry,
		sessions: session.NewRegistry(session.Options{
			QueueSize: cfg.Stream.QueueSize,
			Logger:    logger,
		}),
		logger: logger,
	}

	var recorder audit.Recorder
	if cfg.Audit.Path != "" {
		gw.auditLog, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		recorder = gw.auditLog
	}

	gw.dispatcher = rpc.NewDispatcher(rpc.Config{
		Tools:       registry,
		ToolTimeout: cfg.RPC.ToolTimeout,
		Recorder:    recorder,
		Logger:      logger,
	})

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           gw.routes(verifier),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("gateway configured",
		"tools", registry.Len(),
		"token_length", len(cfg.Auth.APIToken),
		"audit", cfg.Audit.Path != "",
	)

	return gw, nil
}

// Handler returns the gateway's complete HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Sessions returns the gateway's session registry.
func (g *Gateway) Sessions() *session.Registry {
	return g.sessions
}

// Addr returns the listening address, or nil before Run is listening.
func (g *Gateway) Addr() net.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.addr
}

// AnnounceTools pushes a fresh list_changed announcement to every live session.
// Returns the number of sessions that accepted it.
func (g *Gateway) AnnounceTools() (int, error) {
	msg, err := stream.ListChanged(g.tools.List())
	if err != nil {
		return 0, err
	}
	n := g.sessions.Broadcast(msg)
	g.logger.Info("announced tool list", "sessions", n)
	return n, nil
}

// setupTCPListener creates the standard TCP listener.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "addr", g.httpServer.Addr)

	ln, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		g.logger.Warn("server.host and server.port are ignored when tailscale is enabled",
			"addr", g.httpServer.Addr)
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	g.mu.Lock()
	g.addr = ln.Addr()
	g.mu.Unlock()

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the gateway and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout,
// since the Run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown ends every open stream, stops the HTTP server, and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "sessions", g.sessions.Len())

	// Streams never finish on their own, so close them before Shutdown waits on handlers.
	g.sessions.CloseAll()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	if g.auditLog != nil {
		errs = appendCloseError(errs, "audit close", g.auditLog.Close())
	}

	return errors.Join(errs...)
}
