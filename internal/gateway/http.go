// ABOUTME: HTTP routing for the gateway: banner, health, and the two authenticated MCP endpoints
// ABOUTME: The whole mux is wrapped in an allow-all CORS policy

package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/cors"

	"github.com/2389/mcp-gateway/internal/auth"
	"github.com/2389/mcp-gateway/internal/rpc"
	"github.com/2389/mcp-gateway/internal/stream"
)

// Banner is the message served at GET /.
const Banner = "MCP Gateway with SSE Protocol"

// Route paths.
const (
	PathRoot    = "/"
	PathHealth  = "/health"
	PathStream  = "/mcp/sse"
	PathJSONRPC = "/mcp/jsonrpc"
)

// routes builds the gateway's HTTP handler.
func (g *Gateway) routes(verifier auth.TokenVerifier) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", g.handleRoot)
	mux.HandleFunc("GET "+PathHealth, g.handleHealth)

	requireAuth := auth.HTTPAuthMiddleware(verifier, g.logger)

	mux.Handle("GET "+PathStream, requireAuth(stream.NewHandler(stream.Config{
		Sessions: g.sessions,
		Tools:    g.tools,
		Logger:   g.logger,
	})))

	mux.Handle("POST "+PathJSONRPC, requireAuth(rpc.NewHandler(rpc.HandlerConfig{
		Dispatcher:   g.dispatcher,
		MaxBodyBytes: g.config.RPC.MaxBodyBytes,
		Logger:       g.logger,
	})))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{stream.SessionHeader},
		AllowCredentials: false,
	})
	return c.Handler(mux)
}

// handleRoot serves the liveness banner.
func (g *Gateway) handleRoot(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{"message": Banner})
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// handleHealth returns 200 OK while the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, healthResponse{
		Status:   "healthy",
		Sessions: g.sessions.Len(),
	})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("failed to encode response", "error", err)
	}
}
