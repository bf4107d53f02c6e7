package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/osetrov/messenger/pkg/model"
)

// Loopback is the single-instance bus: one dispatch goroutine delivers
// published events to the handler in publish order.
type Loopback struct {
	events chan model.Event
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewLoopback(handler Handler) *Loopback {
	b := &Loopback{
		events: make(chan model.Event, 256),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(b.done)
		for ev := range b.events {
			handler(ev)
		}
	}()
	return b
}

func (b *Loopback) Publish(ctx context.Context, ev model.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("bus closed")
	}
	select {
	case b.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Loopback) Close() error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	b.mu.Unlock()
	<-b.done
	return nil
}
