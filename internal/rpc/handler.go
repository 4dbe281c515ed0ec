// ABOUTME: HTTP adapter for the dispatcher serving POST /mcp/jsonrpc
// ABOUTME: Always answers 200 with a JSON-RPC envelope; failures live in the envelope

package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// DefaultMaxBodyBytes caps request bodies when HandlerConfig.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 1 << 20

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Dispatcher   *Dispatcher
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// Handler serves JSON-RPC over HTTP.
type Handler struct {
	dispatcher *Dispatcher
	maxBytes   int64
	logger     *slog.Logger
}

// NewHandler creates a Handler. Pass a nil logger for default.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		dispatcher: cfg.Dispatcher,
		maxBytes:   maxBytes,
		logger:     logger.With("component", "rpc-http"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		detail := "failed to read request body"
		if errors.As(err, &tooLarge) {
			detail = "request body too large"
		}
		h.logger.Debug("rejecting request body", "error", err)
		h.write(w, newError(nil, invalidRequest(detail)))
		return
	}

	h.write(w, h.dispatcher.Dispatch(r.Context(), body))
}

func (h *Handler) write(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}
