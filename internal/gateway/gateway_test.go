// ABOUTME: End-to-end tests for the gateway through its real HTTP stack
// ABOUTME: Covers routes, auth on both MCP endpoints, streaming, RPC, CORS, auditing, and shutdown

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-gateway/internal/audit"
	"github.com/2389/mcp-gateway/internal/config"
	"github.com/2389/mcp-gateway/internal/stream"
)

const testToken = "test-secret"

// testConfig creates a minimal config for testing on an available port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: port},
		Auth:   config.AuthConfig{APIToken: testToken},
		RPC:    config.RPCConfig{ToolTimeout: time.Second},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer serves the gateway's handler from an httptest server.
func newTestServer(t *testing.T, cfg *config.Config) (*Gateway, *httptest.Server) {
	t.Helper()
	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		gw.Sessions().CloseAll()
		srv.Close()
	})
	return gw, srv
}

func postRPC(t *testing.T, baseURL, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, baseURL+PathJSONRPC, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestGatewayNew(t *testing.T) {
	gw, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	assert.NotNil(t, gw.Handler())
	assert.Nil(t, gw.Addr())
	assert.Equal(t, 0, gw.Sessions().Len())
}

func TestGatewayNew_RequiresToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.APIToken = ""

	_, err := New(cfg, testLogger())
	require.Error(t, err)
}

func TestGatewayRunAndShutdown(t *testing.T) {
	gw, err := New(testConfig(t), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	require.Eventually(t, func() bool { return gw.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + gw.Addr().String() + PathHealth)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestGatewayShutdown_EndsOpenStreams(t *testing.T) {
	gw, err := New(testConfig(t), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- gw.Run(ctx) }()
	require.Eventually(t, func() bool { return gw.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://"+gw.Addr().String()+PathStream, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool { return gw.Sessions().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
		assert.Less(t, time.Since(start), 4*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown blocked on open stream")
	}
	assert.Equal(t, 0, gw.Sessions().Len())
}

func TestRootBanner(t *testing.T) {
	_, srv := newTestServer(t, testConfig(t))

	resp, err := http.Get(srv.URL + PathRoot)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, Banner, body["message"])
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestServer(t, testConfig(t))

	resp, err := http.Get(srv.URL + PathHealth)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body healthResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 0, body.Sessions)
}

func TestUnknownPath(t *testing.T) {
	_, srv := newTestServer(t, testConfig(t))

	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuth_BothEndpoints(t *testing.T) {
	gw, srv := newTestServer(t, testConfig(t))

	headers := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong token", "Bearer wrong"},
		{"wrong scheme", "Basic " + testToken},
		{"no scheme", testToken},
		{"empty token", "Bearer "},
		{"token prefix", "Bearer " + testToken[:4]},
		{"double space", "Bearer  " + testToken},
	}

	for _, h := range headers {
		t.Run("jsonrpc/"+h.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, srv.URL+PathJSONRPC,
				strings.NewReader(`{"jsonrpc":"2.0","method":"tools/list","id":"1"}`))
			require.NoError(t, err)
			if h.header != "" {
				req.Header.Set("Authorization", h.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})

		t.Run("sse/"+h.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+PathStream, nil)
			require.NoError(t, err)
			if h.header != "" {
				req.Header.Set("Authorization", h.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, 0, gw.Sessions().Len(), "no session opened for rejected stream")
		})
	}

	t.Run("jsonrpc/valid lowercase scheme", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+PathJSONRPC,
			strings.NewReader(`{"jsonrpc":"2.0","method":"tools/list","id":"1"}`))
		require.NoError(t, err)
		req.Header.Set("Authorization", "bearer "+testToken)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRPC_ListAndCall(t *testing.T) {
	_, srv := newTestServer(t, testConfig(t))

	resp := postRPC(t, srv.URL, testToken, `{"jsonrpc":"2.0","method":"tools/list","id":"1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Result []struct {
			Name string `json:"name"`
		} `json:"result"`
		ID string `json:"id"`
	}
	decodeBody(t, resp, &list)
	assert.Equal(t, "1", list.ID)
	require.Len(t, list.Result, 1)
	assert.Equal(t, "echo", list.Result[0].Name)

	resp = postRPC(t, srv.URL, testToken,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}},"id":"2"}`)
	var call struct {
		Result struct {
			ID     string `json:"id"`
			Result struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"result"`
		} `json:"result"`
		ID string `json:"id"`
	}
	decodeBody(t, resp, &call)
	assert.Equal(t, "2", call.ID)
	assert.Equal(t, "hi", call.Result.Result.Text)
	assert.NotEmpty(t, call.Result.ID)
}

func TestRPC_ErrorsKeepStatusOK(t *testing.T) {
	_, srv := newTestServer(t, testConfig(t))

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantID   string
	}{
		{"unknown tool", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"nope"},"id":"3"}`, -32601, `"3"`},
		{"missing method", `{"jsonrpc":"2.0","id":"4"}`, -32600, `"4"`},
		{"missing method no id", `{"jsonrpc":"2.0"}`, -32600, `null`},
		{"bad arguments", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo"},"id":5}`, -32603, `5`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postRPC(t, srv.URL, testToken, tt.body)
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			var body struct {
				Error struct {
					Code    int    `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
				ID json.RawMessage `json:"id"`
			}
			decodeBody(t, resp, &body)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.JSONEq(t, tt.wantID, string(body.ID))
		})
	}
}

func TestRPC_WrongMethodNotAllowed(t *testing.T) {
	_, srv := newTestServer(t, testConfig(t))

	req, err := http.NewRequest(http.MethodGet, srv.URL+PathJSONRPC, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// readEvent reads one SSE event from r, returning its type and data.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if data != "" {
				return event, data
			}
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestStream_AnnouncesAndCleansUp(t *testing.T) {
	gw, srv := newTestServer(t, testConfig(t))

	ctx, cancel := context.WithCancel(t.Context())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+PathStream, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(stream.SessionHeader))

	reader := bufio.NewReader(resp.Body)
	event, data := readEvent(t, reader)
	assert.Equal(t, "list_changed", event)
	assert.Contains(t, data, `"echo"`)
	assert.Equal(t, 1, gw.Sessions().Len())

	// Health reports the live session.
	hresp, err := http.Get(srv.URL + PathHealth)
	require.NoError(t, err)
	var health healthResponse
	decodeBody(t, hresp, &health)
	hresp.Body.Close()
	assert.Equal(t, 1, health.Sessions)

	n, err := gw.AnnounceTools()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	event, _ = readEvent(t, reader)
	assert.Equal(t, "list_changed", event)

	cancel()
	assert.Eventually(t, func() bool { return gw.Sessions().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCORS_Preflight(t *testing.T) {
	_, srv := newTestServer(t, testConfig(t))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+PathJSONRPC, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Less(t, resp.StatusCode, 300)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORS_SimpleRequest(t *testing.T) {
	_, srv := newTestServer(t, testConfig(t))

	req, err := http.NewRequest(http.MethodGet, srv.URL+PathHealth, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAudit_RecordsCalls(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Path = filepath.Join(t.TempDir(), "calls.db")

	gw, srv := newTestServer(t, cfg)

	for i := range 3 {
		postRPC(t, srv.URL, testToken,
			`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{"message":"m"}},"id":`+strconv.Itoa(i)+`}`)
	}
	postRPC(t, srv.URL, testToken, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"nope"},"id":"x"}`)

	entries, err := gw.auditLog.Recent(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, audit.StatusNotFound, entries[0].Status)
	assert.Equal(t, `"x"`, entries[0].RequestID)
	assert.Equal(t, audit.StatusOK, entries[1].Status)

	require.NoError(t, gw.Shutdown(context.Background()))
}
