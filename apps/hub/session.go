package main

import (
	"context"
	"sync"

	"github.com/osetrov/messenger/pkg/model"
)

// Session is one live connection's state machine: Connected, joined to zero
// or more chat groups, then Disconnected. Commands arrive on an inbound
// channel and events leave on the send channel, so the whole machine runs
// without a network in tests.
type Session struct {
	UserID string
	ConnID string

	hub *Hub

	// joined is guarded by hub.mu.
	joined map[string]struct{}

	mu     sync.Mutex
	closed bool
	send   chan model.Event
	done   chan struct{}
}

func (h *Hub) NewSession(ctx context.Context, userID, connID string) *Session {
	s := &Session{
		UserID: userID,
		ConnID: connID,
		hub:    h,
		joined: make(map[string]struct{}),
		send:   make(chan model.Event, 64),
		done:   make(chan struct{}),
	}
	h.register(ctx, s)
	return s
}

// Run executes commands until the context ends, inbound closes, or the hub
// drops the session, then releases presence entries and group memberships
// before returning. No command started by the session survives its
// termination.
func (s *Session) Run(ctx context.Context, inbound <-chan model.Command) {
	defer s.hub.unregister(s)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case cmd, ok := <-inbound:
			if !ok {
				return
			}
			s.hub.dispatch(ctx, s, cmd)
		}
	}
}

// Events is the outbound stream; it is closed when the session ends.
func (s *Session) Events() <-chan model.Event {
	return s.send
}

// trySend delivers without blocking. It reports false for a full or closed
// session, and the hub drops such sessions.
func (s *Session) trySend(ev model.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- ev:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
	close(s.done)
}
