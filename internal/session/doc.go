// Package session owns the live push-channel sessions.
//
// Each session has a UUID, a bounded FIFO queue, and a done channel. The
// Registry is the only place sessions are created and removed; handlers
// receive it by injection rather than reaching for global state.
//
// Producers call Enqueue (blocking, with backpressure) or Broadcast
// (non-blocking, drops for full queues). Exactly one consumer per session
// calls Drain and ranges over the result:
//
//	sess := sessions.Open()
//	defer sessions.Close(sess.ID)
//
//	msgs, err := sessions.Drain(ctx, sess.ID)
//	if err != nil {
//		return err
//	}
//	for msg := range msgs {
//		write(msg)
//	}
package session
