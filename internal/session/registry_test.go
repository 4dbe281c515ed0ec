// ABOUTME: Tests for the session registry
// ABOUTME: Covers FIFO delivery, isolation, idempotent close, backpressure, broadcast, and drain termination

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(n int) Message {
	return Message{Event: "test", Data: []byte(fmt.Sprintf(`{"n":%d}`, n))}
}

// drainInto ranges over the session's drain in a goroutine and forwards
// every message to the returned channel, which is closed when the drain ends.
func drainInto(t *testing.T, ctx context.Context, r *Registry, id string) <-chan Message {
	t.Helper()
	seq, err := r.Drain(ctx, id)
	require.NoError(t, err)

	out := make(chan Message, 128)
	go func() {
		defer close(out)
		for m := range seq {
			out <- m
		}
	}()
	return out
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "drain ended early")
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func waitEnded(t *testing.T, ch <-chan Message) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("drain did not end")
		}
	}
}

func TestOpen_DistinctIDs(t *testing.T) {
	r := NewRegistry(Options{})

	seen := make(map[string]struct{})
	for range 100 {
		s := r.Open()
		require.NotEmpty(t, s.ID)
		_, dup := seen[s.ID]
		require.False(t, dup, "duplicate id %s", s.ID)
		seen[s.ID] = struct{}{}
	}
	assert.Equal(t, 100, r.Len())
}

func TestOpen_ConcurrentDistinctIDs(t *testing.T) {
	r := NewRegistry(Options{})

	var mu sync.Mutex
	seen := make(map[string]struct{})
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := r.Open()
			mu.Lock()
			seen[s.ID] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
	assert.Equal(t, 50, r.Len())
}

func TestEnqueueDrain_FIFO(t *testing.T) {
	r := NewRegistry(Options{})
	s := r.Open()
	ctx := t.Context()

	for i := range 10 {
		require.NoError(t, r.Enqueue(ctx, s.ID, msg(i)))
	}

	out := drainInto(t, ctx, r, s.ID)
	for i := range 10 {
		assert.Equal(t, msg(i), receive(t, out))
	}
}

func TestDrain_BlocksUntilEnqueue(t *testing.T) {
	r := NewRegistry(Options{})
	s := r.Open()
	ctx := t.Context()

	out := drainInto(t, ctx, r, s.ID)

	select {
	case <-out:
		t.Fatal("received message from empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, r.Enqueue(ctx, s.ID, msg(1)))
	assert.Equal(t, msg(1), receive(t, out))
}

func TestSessions_Isolated(t *testing.T) {
	r := NewRegistry(Options{})
	a := r.Open()
	b := r.Open()
	ctx := t.Context()

	require.NoError(t, r.Enqueue(ctx, a.ID, msg(1)))

	outB := drainInto(t, ctx, r, b.ID)
	select {
	case m := <-outB:
		t.Fatalf("session b received %v", m)
	case <-time.After(20 * time.Millisecond):
	}

	outA := drainInto(t, ctx, r, a.ID)
	assert.Equal(t, msg(1), receive(t, outA))
}

func TestClose_Idempotent(t *testing.T) {
	r := NewRegistry(Options{})
	s := r.Open()

	r.Close(s.ID)
	r.Close(s.ID)
	r.Close("never-issued")

	assert.True(t, s.Closed())
	assert.Equal(t, 0, r.Len())
	_, ok := r.Get(s.ID)
	assert.False(t, ok)
}

func TestClose_EndsDrain(t *testing.T) {
	r := NewRegistry(Options{})
	s := r.Open()

	out := drainInto(t, t.Context(), r, s.ID)
	r.Close(s.ID)

	waitEnded(t, out)
}

func TestClose_NoDeliveryAfterClose(t *testing.T) {
	r := NewRegistry(Options{})
	s := r.Open()
	ctx := t.Context()

	seq, err := r.Drain(ctx, s.ID)
	require.NoError(t, err)

	require.NoError(t, r.Enqueue(ctx, s.ID, msg(1)))
	r.Close(s.ID)

	var got []Message
	for m := range seq {
		got = append(got, m)
	}
	assert.Empty(t, got)
}

func TestDrain_EndsOnContextCancel(t *testing.T) {
	r := NewRegistry(Options{})
	s := r.Open()

	ctx, cancel := context.WithCancel(t.Context())
	out := drainInto(t, ctx, r, s.ID)
	cancel()

	waitEnded(t, out)
	assert.False(t, s.Closed(), "cancelling the drain does not close the session")
}

func TestDrain_SecondCallFails(t *testing.T) {
	r := NewRegistry(Options{})
	s := r.Open()

	_, err := r.Drain(t.Context(), s.ID)
	require.NoError(t, err)

	_, err = r.Drain(t.Context(), s.ID)
	assert.True(t, errors.Is(err, ErrAlreadyDraining))
}

func TestDrain_UnknownSession(t *testing.T) {
	r := NewRegistry(Options{})

	_, err := r.Drain(t.Context(), "missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestEnqueue_Errors(t *testing.T) {
	r := NewRegistry(Options{})
	s := r.Open()
	r.Close(s.ID)

	err := r.Enqueue(t.Context(), s.ID, msg(1))
	assert.True(t, errors.Is(err, ErrSessionClosed))

	err = r.Enqueue(t.Context(), "missing", msg(1))
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestEnqueue_BackpressureHonoursContext(t *testing.T) {
	r := NewRegistry(Options{QueueSize: 2})
	s := r.Open()

	require.NoError(t, r.Enqueue(t.Context(), s.ID, msg(1)))
	require.NoError(t, r.Enqueue(t.Context(), s.ID, msg(2)))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	err := r.Enqueue(ctx, s.ID, msg(3))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 2, s.Pending())
}

func TestEnqueue_BlockedUntilSpace(t *testing.T) {
	r := NewRegistry(Options{QueueSize: 1})
	s := r.Open()
	ctx := t.Context()

	require.NoError(t, r.Enqueue(ctx, s.ID, msg(1)))

	done := make(chan error, 1)
	go func() { done <- r.Enqueue(ctx, s.ID, msg(2)) }()

	select {
	case <-done:
		t.Fatal("enqueue did not block on full queue")
	case <-time.After(20 * time.Millisecond):
	}

	out := drainInto(t, ctx, r, s.ID)
	assert.Equal(t, msg(1), receive(t, out))
	require.NoError(t, <-done)
	assert.Equal(t, msg(2), receive(t, out))
}

func TestEnqueue_BlockedThenClosed(t *testing.T) {
	r := NewRegistry(Options{QueueSize: 1})
	s := r.Open()

	require.NoError(t, r.Enqueue(t.Context(), s.ID, msg(1)))

	done := make(chan error, 1)
	go func() { done <- r.Enqueue(t.Context(), s.ID, msg(2)) }()

	time.Sleep(10 * time.Millisecond)
	r.Close(s.ID)

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrSessionClosed))
	case <-time.After(time.Second):
		t.Fatal("blocked enqueue did not observe close")
	}
}

func TestBroadcast(t *testing.T) {
	r := NewRegistry(Options{QueueSize: 1})
	a := r.Open()
	b := r.Open()
	closed := r.Open()
	r.Close(closed.ID)

	// Fill b so the broadcast is dropped for it.
	require.NoError(t, r.Enqueue(t.Context(), b.ID, msg(0)))

	n := r.Broadcast(msg(9))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, a.Pending())
	assert.Equal(t, 1, b.Pending())

	out := drainInto(t, t.Context(), r, a.ID)
	assert.Equal(t, msg(9), receive(t, out))
}

func TestCloseAll(t *testing.T) {
	r := NewRegistry(Options{})
	a := r.Open()
	b := r.Open()

	outA := drainInto(t, t.Context(), r, a.ID)
	outB := drainInto(t, t.Context(), r, b.ID)

	r.CloseAll()

	waitEnded(t, outA)
	waitEnded(t, outB)
	assert.Equal(t, 0, r.Len())
	assert.True(t, errors.Is(r.Enqueue(t.Context(), a.ID, msg(1)), ErrSessionClosed))
}

func TestNewMessage(t *testing.T) {
	m, err := NewMessage("list_changed", map[string]string{"type": "list_changed"})
	require.NoError(t, err)
	assert.Equal(t, "list_changed", m.Event)
	assert.JSONEq(t, `{"type":"list_changed"}`, string(m.Data))

	_, err = NewMessage("bad", make(chan int))
	assert.Error(t, err)
}
