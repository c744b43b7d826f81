package stream

import (
	"context"
	"errors"

	"github.com/switchboard-dev/switchboard/internal/transport"
	"github.com/switchboard-dev/switchboard/internal/types"
)

// Func receives one chunk. It is invoked exactly once per chunk, in
// order, on a single goroutine per session.
type Func func(types.StreamChunk)

// Deliver pumps transport events through fn until the final chunk, a
// failure, or cancellation.
//
// Ordering contract: chunk indices are 0..N-1, IsFinal is true on exactly
// the last chunk, TotalChunks is 0 (unknown) until the final chunk, and
// nothing is delivered after the final chunk. Each chunk is delivered
// before the next event is consumed.
//
// Cancellation is observed between chunks and is not an error; a
// mid-stream transport failure transitions the session to Failed and is
// reported once as CodeStreamingFailed, never interleaved with a partial
// final chunk.
func Deliver(ctx context.Context, sess *Session, events <-chan transport.StreamEvent, fn Func) error {
	sess.setState(StateDelivering)

	var index uint32
	for {
		if sess.Cancelled() {
			sess.setState(StateCancelled)
			return nil
		}

		select {
		case <-ctx.Done():
			if sess.Cancelled() || errors.Is(ctx.Err(), context.Canceled) {
				sess.setState(StateCancelled)
				return nil
			}
			sess.setState(StateFailed)
			return types.Wrap(types.CodeStreamingFailed, "stream deadline exceeded", ctx.Err())

		case ev, ok := <-events:
			if !ok {
				// Producer went away without a done marker.
				sess.setState(StateFailed)
				return types.E(types.CodeStreamingFailed, "stream ended unexpectedly")
			}
			if ev.Err != nil {
				sess.setState(StateFailed)
				if types.CodeOf(ev.Err) == types.CodeStreamingFailed {
					return ev.Err
				}
				return types.Wrap(types.CodeStreamingFailed, "mid-stream transport failure", ev.Err)
			}
			if ev.Done {
				fn(types.StreamChunk{
					Content:     ev.Content,
					IsFinal:     true,
					ChunkIndex:  index,
					TotalChunks: index + 1,
				})
				sess.setState(StateClosed)
				return nil
			}
			fn(types.StreamChunk{
				Content:    ev.Content,
				ChunkIndex: index,
			})
			index++
		}
	}
}
