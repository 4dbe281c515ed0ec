// ABOUTME: A single push-channel session with a bounded FIFO delivery queue
// ABOUTME: Liveness is a done channel that is closed exactly once

package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Message is one outbound notification queued for a session.
type Message struct {
	Event string
	Data  []byte
}

// NewMessage builds a message whose data is v encoded as JSON.
func NewMessage(event string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s message: %w", event, err)
	}
	return Message{Event: event, Data: data}, nil
}

// Session is a live push channel owned by a Registry.
type Session struct {
	ID       string
	OpenedAt time.Time

	queue     chan Message
	done      chan struct{}
	closeOnce sync.Once
	draining  atomic.Bool
}

func newSession(id string, queueSize int) *Session {
	return &Session{
		ID:       id,
		OpenedAt: time.Now(),
		queue:    make(chan Message, queueSize),
		done:     make(chan struct{}),
	}
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued, undelivered messages.
func (s *Session) Pending() int {
	return len(s.queue)
}

// close marks the session dead. The queue channel is never closed so that
// concurrent senders cannot panic; they observe done instead.
func (s *Session) close() bool {
	closed := false
	s.closeOnce.Do(func() {
		close(s.done)
		closed = true
	})
	return closed
}
