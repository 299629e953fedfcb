package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/stocksentry/stocksentry/pkg/types"
)

const subscriberBuffer = 64

// MemoryBus is an in-process Bus for single-node deployments and tests.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[string][]chan types.BusEvent
	closed bool
	logger *slog.Logger
}

// NewMemory creates an in-process event bus.
func NewMemory(logger *slog.Logger) *MemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBus{
		subs:   make(map[string][]chan types.BusEvent),
		logger: logger,
	}
}

// Publish delivers the event to every subscriber of its name. Slow
// subscribers that have filled their buffer lose the event; the dispatcher
// treats the bus as at-most-once and never blocks a publisher.
func (b *MemoryBus) Publish(_ context.Context, event types.BusEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	for _, ch := range b.subs[event.Name] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("dropping event for slow subscriber", "event", event.Name)
		}
	}
	return nil
}

// Subscribe registers interest in a named event.
func (b *MemoryBus) Subscribe(name string) (<-chan types.BusEvent, func()) {
	ch := make(chan types.BusEvent, subscriberBuffer)

	b.mu.Lock()
	b.subs[name] = append(b.subs[name], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[name]
		for i, c := range chans {
			if c == ch {
				b.subs[name] = append(chans[:i], chans[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// Close drops all subscriptions.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for name, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
		delete(b.subs, name)
	}
	return nil
}
