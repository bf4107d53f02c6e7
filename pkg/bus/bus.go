// Package bus moves fanout events between hub instances. Every instance
// publishes to one topic and consumes the whole topic, then delivers to its
// own local connections.
package bus

import (
	"context"

	"github.com/osetrov/messenger/pkg/model"
)

type Bus interface {
	Publish(ctx context.Context, ev model.Event) error
	Close() error
}

// Handler receives every event published on the bus, in publish order.
type Handler func(ev model.Event)
