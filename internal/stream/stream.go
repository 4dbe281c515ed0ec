// ABOUTME: SSE endpoint that binds one HTTP connection to one session for its lifetime
// ABOUTME: Walks Connecting, Open, Draining, Closed and always releases the session on exit

package stream

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tmaxmax/go-sse"

	"github.com/2389/mcp-gateway/internal/auth"
	"github.com/2389/mcp-gateway/internal/session"
	"github.com/2389/mcp-gateway/internal/tools"
)

// SessionHeader carries the allocated session ID on the stream response.
const SessionHeader = "X-Session-Id"

// EventListChanged is the event type of the capability announcement.
const EventListChanged = "list_changed"

// listChangedPayload is the data of a list_changed event.
type listChangedPayload struct {
	Type  string             `json:"type"`
	Tools []tools.Descriptor `json:"tools"`
}

// ListChanged builds the capability announcement for the given descriptors.
func ListChanged(descriptors []tools.Descriptor) (session.Message, error) {
	if descriptors == nil {
		descriptors = []tools.Descriptor{}
	}
	return session.NewMessage(EventListChanged, listChangedPayload{
		Type:  EventListChanged,
		Tools: descriptors,
	})
}

// Config holds the collaborators of a stream Handler.
type Config struct {
	Sessions *session.Registry
	Tools    *tools.Registry
	Logger   *slog.Logger
}

// Handler serves GET /mcp/sse.
type Handler struct {
	sessions *session.Registry
	tools    *tools.Registry
	logger   *slog.Logger
}

// NewHandler creates a stream handler. Pass a nil logger for default.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions: cfg.Sessions,
		tools:    cfg.Tools,
		logger:   logger.With("component", "stream"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess := h.sessions.Open()
	logger := h.logger.With("session_id", sess.ID, "principal", auth.PrincipalID(ctx))
	defer func() {
		h.sessions.Close(sess.ID)
		logger.Info("stream closed")
	}()

	logger.Debug("stream connecting", "remote_addr", r.RemoteAddr)

	// Must be set before the upgrade flushes headers.
	w.Header().Set(SessionHeader, sess.ID)

	conn, err := sse.Upgrade(w, r)
	if err != nil {
		logger.Error("failed to upgrade stream", "error", err)
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	announce, err := ListChanged(h.tools.List())
	if err != nil {
		logger.Error("failed to build announcement", "error", err)
		return
	}
	if err := h.sessions.Enqueue(ctx, sess.ID, announce); err != nil {
		logger.Debug("failed to queue announcement", "error", err)
		return
	}

	msgs, err := h.sessions.Drain(ctx, sess.ID)
	if err != nil {
		logger.Error("failed to drain session", "error", err)
		return
	}

	logger.Info("stream open")

	for msg := range msgs {
		if err := writeMessage(conn, msg); err != nil {
			logger.Debug("stream write failed", "error", err)
			return
		}
		logger.Debug("stream draining", "event", msg.Event)
	}
}

// writeMessage encodes msg as one SSE event and flushes it to the client.
func writeMessage(conn *sse.Session, msg session.Message) error {
	ev := &sse.Message{Type: sse.Type(msg.Event)}
	ev.AppendData(string(msg.Data))

	if err := conn.Send(ev); err != nil {
		return fmt.Errorf("sending %s event: %w", msg.Event, err)
	}
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("flushing %s event: %w", msg.Event, err)
	}
	return nil
}
