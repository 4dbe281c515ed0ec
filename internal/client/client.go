// ABOUTME: HTTP client for the gateway's JSON-RPC and SSE endpoints
// ABOUTME: Lists and calls tools, opens event streams, and checks health

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/tmaxmax/go-sse"

	"github.com/2389/mcp-gateway/internal/rpc"
	"github.com/2389/mcp-gateway/internal/stream"
	"github.com/2389/mcp-gateway/internal/tools"
)

// ErrUnauthorized indicates the gateway rejected the bearer token.
var ErrUnauthorized = errors.New("unauthorized")

// Client talks to a running gateway.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	nextID     atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the gateway at baseURL authenticating with token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "client")
	return c
}

// Health is the body of GET /health.
type Health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// Health queries the unauthenticated health endpoint.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decoding health: %w", err)
	}
	return &h, nil
}

// response mirrors rpc.Response with the result left undecoded.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpc.Error      `json:"error"`
	ID      json.RawMessage `json:"id"`
}

// Call sends one JSON-RPC request and decodes its result into out.
// A JSON-RPC error is returned as *rpc.Error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	id := strconv.FormatInt(c.nextID.Add(1), 10)

	var rawParams json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding params: %w", err)
		}
		rawParams = b
	}

	idJSON, _ := json.Marshal(id)
	body, err := json.Marshal(rpc.Request{
		JSONRPC: rpc.Version,
		Method:  method,
		Params:  rawParams,
		ID:      idJSON,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mcp/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	c.logger.Debug("sending request", "method", method, "id", id)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if r.Error != nil {
		return r.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	return nil
}

// ListTools returns the gateway's tool descriptors in registry order.
func (c *Client) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	var descs []tools.Descriptor
	if err := c.Call(ctx, rpc.MethodListTools, nil, &descs); err != nil {
		return nil, err
	}
	return descs, nil
}

// CallTool invokes the named tool with args, which are encoded as JSON.
func (c *Client) CallTool(ctx context.Context, name string, args any) (*rpc.CallToolResult, error) {
	params := struct {
		Name      string `json:"name"`
		Arguments any    `json:"arguments,omitempty"`
	}{Name: name, Arguments: args}

	var result rpc.CallToolResult
	if err := c.Call(ctx, rpc.MethodCallTool, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Event is one event received on the stream.
type Event struct {
	Type string
	Data json.RawMessage
}

// Tools decodes the descriptors carried by a list_changed event.
func (e Event) Tools() ([]tools.Descriptor, error) {
	if e.Type != stream.EventListChanged {
		return nil, fmt.Errorf("event %q does not carry tools", e.Type)
	}
	var payload struct {
		Tools []tools.Descriptor `json:"tools"`
	}
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		return nil, fmt.Errorf("decoding list_changed: %w", err)
	}
	return payload.Tools, nil
}

// Stream is an open event stream. Close it to end the session.
type Stream struct {
	SessionID string
	body      io.ReadCloser
}

// Listen opens the event stream. The connection lives until ctx ends or
// the returned Stream is closed.
func (c *Client) Listen(ctx context.Context) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/mcp/sse", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to stream: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	sessionID := resp.Header.Get(stream.SessionHeader)
	c.logger.Debug("stream connected", "session_id", sessionID)

	return &Stream{SessionID: sessionID, body: resp.Body}, nil
}

// Events yields events until the stream ends. A read error is yielded once
// and ends the sequence.
func (s *Stream) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for ev, err := range sse.Read(s.body, nil) {
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(Event{Type: ev.Type, Data: json.RawMessage(ev.Data)}, nil) {
				return
			}
		}
	}
}

// Close ends the stream.
func (s *Stream) Close() error {
	return s.body.Close()
}

func checkStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, body.Error)
		}
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}
