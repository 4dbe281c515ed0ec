// ABOUTME: Concurrency-safe registry of live sessions keyed by UUID
// ABOUTME: Provides open/close, backpressured enqueue, fan-out broadcast, and draining

package session

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultQueueSize bounds each session's queue when Options.QueueSize is zero.
const DefaultQueueSize = 64

var (
	// ErrSessionNotFound indicates the ID was never issued by this registry.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed indicates the session existed but has been closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrAlreadyDraining indicates Drain was already called for the session.
	ErrAlreadyDraining = errors.New("session already draining")
)

// Options configures a Registry.
type Options struct {
	QueueSize int
	Logger    *slog.Logger
}

// Registry tracks every live session.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	retired   map[string]struct{}
	queueSize int
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. Pass a nil logger for default.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Registry{
		sessions:  make(map[string]*Session),
		retired:   make(map[string]struct{}),
		queueSize: queueSize,
		logger:    logger.With("component", "sessions"),
	}
}

// Open allocates a new session with a fresh identifier.
// Identifiers of live or retired sessions are never handed out again.
func (r *Registry) Open() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for {
		id = uuid.New().String()
		if _, live := r.sessions[id]; live {
			continue
		}
		if _, gone := r.retired[id]; gone {
			continue
		}
		break
	}

	s := newSession(id, r.queueSize)
	r.sessions[id] = s

	r.logger.Debug("session opened", "session_id", id, "live", len(r.sessions))
	return s
}

// Get returns the live session with the given ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close removes the session and ends its drain. Closing an unknown or
// already closed session is a no-op.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		r.retired[id] = struct{}{}
	}
	live := len(r.sessions)
	r.mu.Unlock()

	if ok && s.close() {
		r.logger.Debug("session closed",
			"session_id", id,
			"dropped", s.Pending(),
			"live", live)
	}
}

// CloseAll closes every live session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	closing := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		closing = append(closing, s)
		delete(r.sessions, id)
		r.retired[id] = struct{}{}
	}
	r.mu.Unlock()

	for _, s := range closing {
		s.close()
	}
	if len(closing) > 0 {
		r.logger.Info("closed all sessions", "count", len(closing))
	}
}

// lookup resolves id, distinguishing never-issued IDs from retired ones.
func (r *Registry) lookup(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	if _, gone := r.retired[id]; gone {
		return nil, ErrSessionClosed
	}
	return nil, ErrSessionNotFound
}

// Enqueue appends msg to the session's queue. When the queue is full it
// blocks until space frees up, the session closes, or ctx ends.
func (r *Registry) Enqueue(ctx context.Context, id string, msg Message) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}

	if s.Closed() {
		return ErrSessionClosed
	}

	select {
	case s.queue <- msg:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Broadcast offers msg to every live session without blocking.
// Sessions whose queues are full are skipped. Returns how many accepted it.
func (r *Registry) Broadcast(msg Message) int {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Closed() {
			continue
		}
		select {
		case s.queue <- msg:
			delivered++
		default:
			r.logger.Warn("dropped message for slow session",
				"session_id", s.ID,
				"event", msg.Event)
		}
	}
	return delivered
}

// Drain returns a single-use sequence of the session's messages in FIFO
// order. The sequence blocks while the queue is empty and ends when the
// session closes or ctx ends. Nothing is yielded after close.
func (r *Registry) Drain(ctx context.Context, id string) (iter.Seq[Message], error) {
	s, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if !s.draining.CompareAndSwap(false, true) {
		return nil, ErrAlreadyDraining
	}

	return func(yield func(Message) bool) {
		for {
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				return
			case msg := <-s.queue:
				if s.Closed() {
					return
				}
				if !yield(msg) {
					return
				}
			}
		}
	}, nil
}
