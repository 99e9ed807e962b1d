package eventing

import (
	"context"
	"sync"
)

// Handler consumes envelopes published on the bus.
type Handler func(ctx context.Context, env Envelope)

// Bus is a lightweight in-process fan-out bus. Application services
// publish envelopes; the gateway (and optional bridge) subscribe.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus constructs a new bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all published envelopes.
func (b *Bus) Subscribe(handler Handler) {
	if b == nil || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
}

// Publish delivers the envelope to every subscriber. Delivery is
// synchronous in subscription order; handlers must not block.
func (b *Bus) Publish(ctx context.Context, env Envelope) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if handler != nil {
			handler(ctx, env)
		}
	}
}
