// Package stream implements the streaming multiplexer: it turns a
// transport's chunk sequence into strictly ordered callback deliveries,
// one session per in-flight streaming call.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is a session's lifecycle position.
type State int

const (
	StateOpen State = iota
	StateDelivering
	StateClosed
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDelivering:
		return "delivering"
	case StateClosed:
		return "closed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is one in-flight streaming call. Its chunk index is strictly
// increasing and the final chunk is delivered exactly once; after that
// the session is closed and no further chunks are delivered.
type Session struct {
	id uint64

	mu    sync.Mutex
	state State

	cancelled atomic.Bool
	cancel    context.CancelFunc
}

var nextSessionID atomic.Uint64

// NewSession opens a session bound to the given cancel function.
func NewSession(cancel context.CancelFunc) *Session {
	return &Session{
		id:     nextSessionID.Add(1),
		state:  StateOpen,
		cancel: cancel,
	}
}

// ID returns the session's process-unique id.
func (s *Session) ID() uint64 { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Cancel requests cooperative cancellation. The delivery loop observes
// the flag between chunks; chunks already delivered are not rolled back.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
}

// Cancelled reports whether cancellation was requested.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}
